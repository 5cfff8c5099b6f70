package notify

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"signal_bot/internal/model"
)

func TestFormatTickReport(t *testing.T) {
	got := FormatTickReport(model.TickResult{
		SignalsFound: 3, Processed: 2, Errors: 1, SuccessfulPublishes: 1, Timestamp: tickAt,
	})
	want := "Tick at 2026-03-01T12:00:00Z\n\nDue signals: 3\nProcessed: 2\nPublished: 1\nErrors: 1"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatScheduleInfoFailures(t *testing.T) {
	last := tickAt.Add(-2 * time.Hour)
	got := FormatScheduleInfo(&model.ScheduledSignal{
		ID: 3, SignalID: 5, FrequencyHours: 1.5, LastRun: &last, NextRun: tickAt, ConsecutiveFailures: 2,
		Signal: model.Signal{Name: "x", UserID: "u", Topic: "go", Status: model.SignalActive},
	})
	want := "Schedule #3\n" +
		"Signal: x (#5, active)\n" +
		"User: u\n" +
		"Topic: r/go\n" +
		"Keywords: any\n" +
		"Frequency: every 1.5h\n" +
		"Status: paused\n" +
		"Last run: 2026-03-01T10:00:00Z\n" +
		"Next run: 2026-03-01T12:00:00Z\n" +
		"Failures in a row: 2"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("info mismatch (-want +got):\n%s", diff)
	}
}

func TestParseFrequencyArgs(t *testing.T) {
	tests := []struct {
		name      string
		args      string
		wantID    int64
		wantHours float64
		wantErr   bool
	}{
		{name: "valid", args: "3 1.5", wantID: 3, wantHours: 1.5},
		{name: "minimum", args: "3 0.25", wantID: 3, wantHours: 0.25},
		{name: "below minimum", args: "3 0.2", wantErr: true},
		{name: "too large", args: "3 1000", wantErr: true},
		{name: "missing hours", args: "3", wantErr: true},
		{name: "bad id", args: "x 2", wantErr: true},
		{name: "bad hours", args: "3 often", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, hours, err := ParseFrequencyArgs(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.wantID, id); diff != "" {
				t.Errorf("id mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantHours, hours); diff != "" {
				t.Errorf("hours mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseIDArg(t *testing.T) {
	tests := []struct {
		args    string
		want    int64
		wantErr bool
	}{
		{args: "5", want: 5},
		{args: "  12 extra", want: 12},
		{args: "", wantErr: true},
		{args: "abc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.args, func(t *testing.T) {
			got, err := ParseIDArg(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("id mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
