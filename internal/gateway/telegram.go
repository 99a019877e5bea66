package gateway

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/rahul/helmsman/internal/agent"
)

// DefaultConfirmTimeout is how long a chat has to answer a confirmation.
const DefaultConfirmTimeout = 2 * time.Minute

// Telegram caps messages at 4096 characters.
const maxMessageLen = 4000

// Bot is the part of the Telegram client the gateway uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type TelegramGateway struct {
	Bot            Bot
	Brain          agent.Brain
	ConfirmTimeout time.Duration

	logger *zap.Logger

	mu sync.Mutex
	// busy marks chats with a request in flight.
	busy map[int64]bool
	// pending holds the answer channel of a chat waiting on a confirmation.
	pending map[int64]chan string
	wg      sync.WaitGroup
}

func NewTelegramGateway(token string, brain agent.Brain, confirmTimeout time.Duration, logger *zap.Logger) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	gw := newTelegramGateway(bot, brain, confirmTimeout, logger)
	gw.logger.Info("Authorized", zap.String("account", bot.Self.UserName))
	return gw, nil
}

func newTelegramGateway(bot Bot, brain agent.Brain, confirmTimeout time.Duration, logger *zap.Logger) *TelegramGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if confirmTimeout <= 0 {
		confirmTimeout = DefaultConfirmTimeout
	}
	return &TelegramGateway{
		Bot:            bot,
		Brain:          brain,
		ConfirmTimeout: confirmTimeout,
		logger:         logger.Named("telegram"),
		busy:           make(map[int64]bool),
		pending:        make(map[int64]chan string),
	}
}

// Start receives updates until ctx is done. Each request runs in its own
// goroutine so that the chat's next message can answer a confirmation.
func (tg *TelegramGateway) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := tg.Bot.GetUpdatesChan(u)

	defer tg.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			tg.handle(ctx, update.Message)
		}
	}
}

func (tg *TelegramGateway) handle(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	user := ""
	if msg.From != nil {
		user = msg.From.UserName
	}
	tg.logger.Info("Message received", zap.Int64("chat_id", chatID), zap.String("user", user))

	if tg.deliver(chatID, msg.Text) {
		return
	}

	tg.mu.Lock()
	if tg.busy[chatID] {
		tg.mu.Unlock()
		tg.reply(chatID, "Still working on your previous request.")
		return
	}
	tg.busy[chatID] = true
	tg.mu.Unlock()

	tg.wg.Add(1)
	go func() {
		defer tg.wg.Done()
		defer func() {
			tg.mu.Lock()
			delete(tg.busy, chatID)
			tg.mu.Unlock()
		}()

		surface := &chatSurface{gw: tg, chatID: chatID}
		response, err := tg.Brain.Think(ctx, strconv.FormatInt(chatID, 10), msg.Text, surface)
		if err != nil {
			tg.logger.Error("Request failed", zap.Int64("chat_id", chatID), zap.Error(err))
			response = "I'm having trouble thinking right now..."
		}
		tg.reply(chatID, response)
	}()
}

// deliver hands text to a confirmation waiting in chatID.
func (tg *TelegramGateway) deliver(chatID int64, text string) bool {
	tg.mu.Lock()
	ch, ok := tg.pending[chatID]
	tg.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- text:
	default:
	}
	return true
}

// expect registers chatID as waiting on a confirmation. It must run before
// the prompt goes out, since the answer may arrive as soon as it is sent.
func (tg *TelegramGateway) expect(chatID int64) (<-chan string, func()) {
	ch := make(chan string, 1)
	tg.mu.Lock()
	tg.pending[chatID] = ch
	tg.mu.Unlock()
	return ch, func() {
		tg.mu.Lock()
		delete(tg.pending, chatID)
		tg.mu.Unlock()
	}
}

func (tg *TelegramGateway) await(ctx context.Context, ch <-chan string) (string, bool) {
	timer := time.NewTimer(tg.ConfirmTimeout)
	defer timer.Stop()
	select {
	case answer := <-ch:
		return answer, true
	case <-timer.C:
		return "", false
	case <-ctx.Done():
		return "", false
	}
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}
	for _, part := range chunk(text, maxMessageLen) {
		if _, err := tg.Bot.Send(tgbotapi.NewMessage(id, part)); err != nil {
			return err
		}
	}
	return nil
}

func (tg *TelegramGateway) reply(chatID int64, text string) {
	if err := tg.Send(strconv.FormatInt(chatID, 10), text); err != nil {
		tg.logger.Warn("Send failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}

// chatSurface shows plans and asks confirmations in one chat.
type chatSurface struct {
	gw     *TelegramGateway
	chatID int64
}

func (s *chatSurface) ShowPlan(_ context.Context, lines []string) error {
	return s.gw.Send(strconv.FormatInt(s.chatID, 10), "Planned actions:\n"+strings.Join(lines, "\n"))
}

func (s *chatSurface) Confirm(ctx context.Context, prompt string) (bool, error) {
	ch, release := s.gw.expect(s.chatID)
	defer release()
	if err := s.gw.Send(strconv.FormatInt(s.chatID, 10), prompt+" (yes/no)"); err != nil {
		return false, err
	}
	answer, ok := s.gw.await(ctx, ch)
	if !ok {
		s.gw.reply(s.chatID, "No answer, declined.")
		return false, nil
	}
	return isYes(answer), nil
}

func chunk(text string, n int) []string {
	if text == "" {
		return []string{"(empty reply)"}
	}
	var parts []string
	for len(text) > n {
		cut := strings.LastIndexByte(text[:n], '\n')
		if cut <= 0 {
			cut = n
			for cut > 1 && !utf8.RuneStart(text[cut]) {
				cut--
			}
		}
		parts = append(parts, text[:cut])
		text = strings.TrimPrefix(text[cut:], "\n")
	}
	return append(parts, text)
}
