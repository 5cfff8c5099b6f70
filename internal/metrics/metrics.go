// Package metrics exposes Prometheus collectors for the scheduler.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"signal_bot/internal/model"
)

// Metrics holds the scheduler collectors and the registry they live on.
type Metrics struct {
	Registry *prometheus.Registry

	Ticks              prometheus.Counter
	SchedulesProcessed prometheus.Counter
	ScheduleErrors     *prometheus.CounterVec
	Publishes          *prometheus.CounterVec
	LastTick           prometheus.Gauge
	TickDuration       prometheus.Histogram
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signal_ticks_total",
			Help: "Number of scheduler ticks run.",
		}),
		SchedulesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signal_schedules_processed_total",
			Help: "Number of schedules processed.",
		}),
		ScheduleErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_schedule_errors_total",
			Help: "Number of failed schedule runs by stage.",
		}, []string{"stage"}),
		Publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_publishes_total",
			Help: "Number of publish attempts by result.",
		}, []string{"result"}),
		LastTick: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signal_last_tick_timestamp_seconds",
			Help: "Unix time of the last completed tick.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signal_tick_duration_seconds",
			Help:    "Wall time of scheduler ticks.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Ticks, m.SchedulesProcessed, m.ScheduleErrors, m.Publishes, m.LastTick, m.TickDuration,
	)
	return m
}

// ObserveTick records the aggregate result of one tick.
func (m *Metrics) ObserveTick(res model.TickResult, took time.Duration) {
	m.Ticks.Inc()
	m.SchedulesProcessed.Add(float64(res.Processed))
	m.LastTick.Set(float64(res.Timestamp.Unix()))
	m.TickDuration.Observe(took.Seconds())
}

// ObserveError counts a failed schedule run at the given stage.
func (m *Metrics) ObserveError(stage string) {
	m.ScheduleErrors.WithLabelValues(stage).Inc()
}

// ObservePublish counts a publish result such as "published" or "rate_limited".
func (m *Metrics) ObservePublish(result string) {
	m.Publishes.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
