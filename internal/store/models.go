package store

import "time"

// Message roles as stored.
const (
	RoleHuman  = "human"
	RoleAI     = "ai"
	RoleSystem = "system"
)

// JournalEntry records one executed, declined or skipped action.
type JournalEntry struct {
	ID         int64
	ChatID     string
	PlanID     string
	Kind       string
	Action     string
	Succeeded  bool
	ErrorKind  string
	Output     string
	DurationMs int64
	CreatedAt  time.Time
}
