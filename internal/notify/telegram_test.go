package notify

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/go-cmp/cmp"

	"signal_bot/internal/model"
	"signal_bot/internal/storage"
)

type sentMsg struct {
	ChatID int64
	Text   string
}

type mockAPI struct {
	mu      sync.Mutex
	sent    []sentMsg
	updates tgbotapi.UpdatesChannel
}

func (m *mockAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		m.mu.Lock()
		m.sent = append(m.sent, sentMsg{ChatID: msg.ChatID, Text: msg.Text})
		m.mu.Unlock()
	}
	return tgbotapi.Message{}, nil
}

func (m *mockAPI) GetUpdatesChan(_ tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return m.updates
}

func (m *mockAPI) StopReceivingUpdates() {}

func (m *mockAPI) texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	for i, s := range m.sent {
		out[i] = s.Text
	}
	return out
}

func (m *mockAPI) lastText() string {
	texts := m.texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

var tickAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func addSchedule(t *testing.T, store *storage.SQLite) model.ScheduledSignal {
	t.Helper()
	ctx := context.Background()
	sig := model.Signal{UserID: "u1", Name: "AI watch", Topic: "technology", Keywords: []string{"ai", "ml"}, Status: model.SignalActive}
	if err := store.CreateSignal(ctx, &sig); err != nil {
		t.Fatalf("create signal: %v", err)
	}
	sch := model.ScheduledSignal{SignalID: sig.ID, StartTime: tickAt, FrequencyHours: 2, IsActive: true, NextRun: tickAt}
	if err := store.CreateSchedule(ctx, &sch); err != nil {
		t.Fatalf("create schedule: %v", err)
	}
	return sch
}

func newTestTelegram(t *testing.T) (*Telegram, *mockAPI, *storage.SQLite) {
	t.Helper()
	api := &mockAPI{}
	store := newTestStore(t)
	return newTelegram(api, 42, store, slog.New(slog.NewTextHandler(io.Discard, nil))), api, store
}

func TestReport(t *testing.T) {
	tests := []struct {
		name     string
		res      model.TickResult
		wantSent int
	}{
		{name: "idle tick is not sent", res: model.TickResult{Timestamp: tickAt}},
		{name: "busy tick is sent", res: model.TickResult{SignalsFound: 1, Processed: 1, Timestamp: tickAt}, wantSent: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tg, api, _ := newTestTelegram(t)
			tg.Report(context.Background(), tt.res)

			if diff := cmp.Diff(tt.wantSent, len(api.texts())); diff != "" {
				t.Errorf("sent count mismatch (-want +got):\n%s", diff)
			}
			for _, m := range api.sent {
				if m.ChatID != 42 {
					t.Errorf("chat id = %d, want 42", m.ChatID)
				}
			}
		})
	}
}

func TestHandleStatus(t *testing.T) {
	ctx := context.Background()
	tg, api, _ := newTestTelegram(t)

	tg.handleCommand(ctx, "status", "")
	tg.Report(ctx, model.TickResult{Timestamp: tickAt})
	tg.handleCommand(ctx, "status", "")
	tg.handleCommand(ctx, "nope", "")

	want := []string{
		"No tick has run yet.",
		FormatTickReport(model.TickResult{Timestamp: tickAt}),
		"Unknown command. Use /help for a list of commands.",
	}
	if diff := cmp.Diff(want, api.texts()); diff != "" {
		t.Errorf("replies mismatch (-want +got):\n%s", diff)
	}
}

func TestHandlePauseResume(t *testing.T) {
	ctx := context.Background()
	tg, api, store := newTestTelegram(t)
	sch := addSchedule(t, store)
	if _, err := store.RecordScheduleFailure(ctx, sch.ID, 0); err != nil {
		t.Fatalf("record failure: %v", err)
	}

	tg.handleCommand(ctx, "pause", "1")
	if diff := cmp.Diff("Schedule #1 paused.", api.lastText()); diff != "" {
		t.Errorf("reply mismatch (-want +got):\n%s", diff)
	}
	got, err := store.GetSchedule(ctx, sch.ID)
	if err != nil {
		t.Fatalf("get schedule: %v", err)
	}
	if got.IsActive {
		t.Error("schedule should be paused")
	}

	tg.handleCommand(ctx, "resume", "1")
	got, err = store.GetSchedule(ctx, sch.ID)
	if err != nil {
		t.Fatalf("get schedule: %v", err)
	}
	if !got.IsActive || got.ConsecutiveFailures != 0 {
		t.Errorf("schedule = %+v, want active without failures", got)
	}

	tg.handleCommand(ctx, "pause", "99")
	if diff := cmp.Diff("Schedule #99 not found.", api.lastText()); diff != "" {
		t.Errorf("reply mismatch (-want +got):\n%s", diff)
	}
	tg.handleCommand(ctx, "resume", "")
	if diff := cmp.Diff("Usage: /resume <id>", api.lastText()); diff != "" {
		t.Errorf("reply mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleFrequency(t *testing.T) {
	ctx := context.Background()
	tg, api, store := newTestTelegram(t)
	sch := addSchedule(t, store)

	tg.handleCommand(ctx, "frequency", "1 0.5")
	if diff := cmp.Diff("Schedule #1 now runs every 0.5h.", api.lastText()); diff != "" {
		t.Errorf("reply mismatch (-want +got):\n%s", diff)
	}
	got, err := store.GetSchedule(ctx, sch.ID)
	if err != nil {
		t.Fatalf("get schedule: %v", err)
	}
	if diff := cmp.Diff(0.5, got.FrequencyHours); diff != "" {
		t.Errorf("frequency mismatch (-want +got):\n%s", diff)
	}

	tg.handleCommand(ctx, "frequency", "1 0.1")
	if diff := cmp.Diff("Error: frequency must be between 0.25 and 720 hours", api.lastText()); diff != "" {
		t.Errorf("reply mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleSchedulesAndInfo(t *testing.T) {
	ctx := context.Background()
	tg, api, store := newTestTelegram(t)

	tg.handleCommand(ctx, "schedules", "")
	if diff := cmp.Diff("There are no schedules.", api.lastText()); diff != "" {
		t.Errorf("reply mismatch (-want +got):\n%s", diff)
	}

	addSchedule(t, store)
	tg.handleCommand(ctx, "schedules", "")
	want := "Schedules:\n\n#1 AI watch  r/technology  (every 2h) [active]\n   next run 2026-03-01T12:00:00Z\n"
	if diff := cmp.Diff(want, api.lastText()); diff != "" {
		t.Errorf("list mismatch (-want +got):\n%s", diff)
	}

	tg.handleCommand(ctx, "info", "1")
	want = "Schedule #1\n" +
		"Signal: AI watch (#1, active)\n" +
		"User: u1\n" +
		"Topic: r/technology\n" +
		"Keywords: ai, ml\n" +
		"Frequency: every 2h\n" +
		"Status: active\n" +
		"Last run: never\n" +
		"Next run: 2026-03-01T12:00:00Z"
	if diff := cmp.Diff(want, api.lastText()); diff != "" {
		t.Errorf("info mismatch (-want +got):\n%s", diff)
	}
}

func TestRunIgnoresOtherChats(t *testing.T) {
	updates := make(chan tgbotapi.Update, 2)
	tg, api, _ := newTestTelegram(t)
	api.updates = updates

	command := func(chatID int64) tgbotapi.Update {
		return tgbotapi.Update{Message: &tgbotapi.Message{
			Text:     "/help",
			Chat:     &tgbotapi.Chat{ID: chatID},
			Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 5}},
		}}
	}
	updates <- command(7)
	updates <- command(42)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tg.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for len(api.texts()) == 0 {
		select {
		case <-deadline:
			t.Fatal("no reply sent")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	if diff := cmp.Diff([]string{helpText}, api.texts()); diff != "" {
		t.Errorf("replies mismatch (-want +got):\n%s", diff)
	}
}
