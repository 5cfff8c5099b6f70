// Package notify reports scheduler activity to an operator over Telegram and
// lets the operator pause, resume and retune schedules.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"signal_bot/internal/model"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// ScheduleStore is the schedule persistence behind operator commands.
type ScheduleStore interface {
	ListSchedules(ctx context.Context) ([]model.ScheduledSignal, error)
	GetSchedule(ctx context.Context, id int64) (*model.ScheduledSignal, error)
	SetScheduleActive(ctx context.Context, id int64, active bool) error
	SetScheduleFrequency(ctx context.Context, id int64, hours float64) error
}

// Telegram sends tick reports to one operator chat and answers its commands.
type Telegram struct {
	api    telegramAPI
	store  ScheduleStore
	chatID int64
	log    *slog.Logger

	mu   sync.Mutex
	last *model.TickResult
}

// NewTelegram connects to the Bot API with the given token.
func NewTelegram(token string, chatID int64, store ScheduleStore, log *slog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return newTelegram(api, chatID, store, log), nil
}

func newTelegram(api telegramAPI, chatID int64, store ScheduleStore, log *slog.Logger) *Telegram {
	return &Telegram{api: api, store: store, chatID: chatID, log: log}
}

// Report sends the tick summary. Ticks that found nothing due are remembered
// for /status but not sent.
func (t *Telegram) Report(_ context.Context, res model.TickResult) {
	t.mu.Lock()
	t.last = &res
	t.mu.Unlock()

	if res.SignalsFound == 0 {
		return
	}
	t.send(FormatTickReport(res))
}

// Run answers operator commands until ctx is cancelled. Messages from any chat
// other than the operator chat are ignored.
func (t *Telegram) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := t.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			t.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if update.Message.Chat == nil || update.Message.Chat.ID != t.chatID {
				continue
			}
			t.handleCommand(ctx, update.Message.Command(), strings.TrimSpace(update.Message.CommandArguments()))
		}
	}
}

func (t *Telegram) handleCommand(ctx context.Context, cmd, args string) {
	t.log.Debug("command", "cmd", cmd, "args", args, "chat_id", t.chatID)

	switch cmd {
	case "start", "help":
		t.send(helpText)
	case "status":
		t.handleStatus()
	case "schedules":
		t.handleSchedules(ctx)
	case "info":
		t.handleInfo(ctx, args)
	case "pause":
		t.handleSetActive(ctx, args, false)
	case "resume":
		t.handleSetActive(ctx, args, true)
	case "frequency":
		t.handleFrequency(ctx, args)
	default:
		t.send("Unknown command. Use /help for a list of commands.")
	}
}

func (t *Telegram) send(text string) {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := t.api.Send(msg); err != nil {
		t.log.Error("send message", "chat_id", t.chatID, "error", err)
	}
}
