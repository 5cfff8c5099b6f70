package notify

import (
	"context"
	"errors"
	"fmt"

	"signal_bot/internal/storage"
)

const helpText = `Scheduled signal processor.

/status - last tick summary
/schedules - list all schedules
/info <id> - schedule details
/pause <id> - stop running a schedule
/resume <id> - run a schedule again and clear its failures
/frequency <id> <hours> - set how often a schedule runs (min 0.25)`

func (t *Telegram) handleStatus() {
	t.mu.Lock()
	last := t.last
	t.mu.Unlock()
	if last == nil {
		t.send("No tick has run yet.")
		return
	}
	t.send(FormatTickReport(*last))
}

func (t *Telegram) handleSchedules(ctx context.Context) {
	list, err := t.store.ListSchedules(ctx)
	if err != nil {
		t.send(fmt.Sprintf("Error: %v", err))
		return
	}
	t.send(FormatScheduleList(list))
}

func (t *Telegram) handleInfo(ctx context.Context, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		t.send("Usage: /info <id>")
		return
	}
	sch, err := t.store.GetSchedule(ctx, id)
	if err != nil {
		t.send(notFoundOr(id, err))
		return
	}
	t.send(FormatScheduleInfo(sch))
}

func (t *Telegram) handleSetActive(ctx context.Context, args string, active bool) {
	id, err := ParseIDArg(args)
	if err != nil {
		if active {
			t.send("Usage: /resume <id>")
		} else {
			t.send("Usage: /pause <id>")
		}
		return
	}
	if err := t.store.SetScheduleActive(ctx, id, active); err != nil {
		t.send(notFoundOr(id, err))
		return
	}

	verb := "paused"
	if active {
		verb = "resumed"
	}
	t.log.Info("schedule "+verb+" by operator", "schedule_id", id)
	t.send(fmt.Sprintf("Schedule #%d %s.", id, verb))
}

func (t *Telegram) handleFrequency(ctx context.Context, args string) {
	id, hours, err := ParseFrequencyArgs(args)
	if err != nil {
		t.send(fmt.Sprintf("Error: %v", err))
		return
	}
	if err := t.store.SetScheduleFrequency(ctx, id, hours); err != nil {
		t.send(notFoundOr(id, err))
		return
	}
	t.log.Info("schedule frequency changed by operator", "schedule_id", id, "hours", hours)
	t.send(fmt.Sprintf("Schedule #%d now runs every %s.", id, formatHours(hours)))
}

func notFoundOr(id int64, err error) string {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Sprintf("Schedule #%d not found.", id)
	}
	return fmt.Sprintf("Error: %v", err)
}
