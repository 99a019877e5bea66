// Package gateway connects users to the agent: an interactive console and a
// Telegram bot. Each gateway also serves as the confirmation surface for the
// requests it carries.
package gateway

import (
	"context"
	"strings"
)

// Messenger is a conversation channel the agent can be reached through.
type Messenger interface {
	// Start runs the receive loop until ctx is done or the channel closes.
	Start(ctx context.Context) error
	// Send delivers text to a chat.
	Send(chatID string, text string) error
	// Stop releases the channel.
	Stop() error
}

// isYes reports whether an answer confirms.
func isYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}
