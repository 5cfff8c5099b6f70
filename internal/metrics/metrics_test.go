package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"signal_bot/internal/model"
)

func TestObserveTick(t *testing.T) {
	m := New()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	m.ObserveTick(model.TickResult{Processed: 3, Timestamp: ts}, 2*time.Second)
	m.ObserveTick(model.TickResult{Processed: 1, Timestamp: ts.Add(time.Minute)}, time.Second)

	if diff := cmp.Diff(2.0, testutil.ToFloat64(m.Ticks)); diff != "" {
		t.Errorf("ticks mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(4.0, testutil.ToFloat64(m.SchedulesProcessed)); diff != "" {
		t.Errorf("processed mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(float64(ts.Add(time.Minute).Unix()), testutil.ToFloat64(m.LastTick)); diff != "" {
		t.Errorf("last tick mismatch (-want +got):\n%s", diff)
	}
}

func TestObserveLabels(t *testing.T) {
	m := New()
	m.ObserveError("generate")
	m.ObserveError("generate")
	m.ObservePublish("rate_limited")

	if diff := cmp.Diff(2.0, testutil.ToFloat64(m.ScheduleErrors.WithLabelValues("generate"))); diff != "" {
		t.Errorf("errors mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(1.0, testutil.ToFloat64(m.Publishes.WithLabelValues("rate_limited"))); diff != "" {
		t.Errorf("publishes mismatch (-want +got):\n%s", diff)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObservePublish("published")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `signal_publishes_total{result="published"} 1`) {
		t.Errorf("metrics output missing publish counter:\n%s", body)
	}
}
