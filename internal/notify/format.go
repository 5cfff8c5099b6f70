package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"signal_bot/internal/model"
)

const (
	statusActive = "active"
	statusPaused = "paused"
)

// FormatTickReport formats a tick summary for an operator.
func FormatTickReport(res model.TickResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tick at %s\n\n", res.Timestamp.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Due signals: %d\n", res.SignalsFound)
	fmt.Fprintf(&b, "Processed: %d\n", res.Processed)
	fmt.Fprintf(&b, "Published: %d\n", res.SuccessfulPublishes)
	fmt.Fprintf(&b, "Errors: %d", res.Errors)
	return b.String()
}

// FormatScheduleList formats schedules for display.
func FormatScheduleList(list []model.ScheduledSignal) string {
	if len(list) == 0 {
		return "There are no schedules."
	}
	var b strings.Builder
	b.WriteString("Schedules:\n")
	for _, s := range list {
		fmt.Fprintf(&b, "\n#%d %s  r/%s  (every %s) [%s]\n",
			s.ID, s.Signal.Name, s.Signal.Topic, formatHours(s.FrequencyHours), scheduleStatus(s))
		fmt.Fprintf(&b, "   next run %s\n", s.NextRun.UTC().Format(time.RFC3339))
	}
	return b.String()
}

// FormatScheduleInfo formats detailed information about a single schedule.
func FormatScheduleInfo(s *model.ScheduledSignal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Schedule #%d\n", s.ID)
	fmt.Fprintf(&b, "Signal: %s (#%d, %s)\n", s.Signal.Name, s.SignalID, s.Signal.Status)
	fmt.Fprintf(&b, "User: %s\n", s.Signal.UserID)
	fmt.Fprintf(&b, "Topic: r/%s\n", s.Signal.Topic)
	if len(s.Signal.Keywords) == 0 {
		b.WriteString("Keywords: any\n")
	} else {
		fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(s.Signal.Keywords, ", "))
	}
	fmt.Fprintf(&b, "Frequency: every %s\n", formatHours(s.FrequencyHours))
	fmt.Fprintf(&b, "Status: %s\n", scheduleStatus(*s))
	if s.LastRun != nil {
		fmt.Fprintf(&b, "Last run: %s\n", s.LastRun.UTC().Format(time.RFC3339))
	} else {
		b.WriteString("Last run: never\n")
	}
	fmt.Fprintf(&b, "Next run: %s", s.NextRun.UTC().Format(time.RFC3339))
	if s.ConsecutiveFailures > 0 {
		fmt.Fprintf(&b, "\nFailures in a row: %d", s.ConsecutiveFailures)
	}
	return b.String()
}

func scheduleStatus(s model.ScheduledSignal) string {
	if s.IsActive {
		return statusActive
	}
	return statusPaused
}

func formatHours(h float64) string {
	return strconv.FormatFloat(h, 'f', -1, 64) + "h"
}
