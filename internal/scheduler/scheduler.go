// Package scheduler drives due signal schedules through the processor.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"signal_bot/internal/metrics"
	"signal_bot/internal/model"
	"signal_bot/internal/processor"
)

// Processor handles a single due schedule.
type Processor interface {
	Run(ctx context.Context, sch model.ScheduledSignal) processor.Outcome
}

// Store is the schedule persistence the scheduler needs.
type Store interface {
	ListDueSchedules(ctx context.Context, now time.Time) ([]model.ScheduledSignal, error)
	RescheduleSignal(ctx context.Context, id int64, lastRun, nextRun time.Time) error
	RecordScheduleFailure(ctx context.Context, id int64, maxFailures int) (bool, error)
	ResetScheduleFailures(ctx context.Context, id int64) error
}

// Reporter receives the summary of every tick.
type Reporter interface {
	Report(ctx context.Context, res model.TickResult)
}

// Options configures a Scheduler. Zero values are valid.
type Options struct {
	// Tick is the loop interval; zero means one minute.
	Tick time.Duration
	// MaxConsecutiveFailures deactivates a schedule after that many failed
	// runs in a row. Zero disables deactivation.
	MaxConsecutiveFailures int
	Metrics                *metrics.Metrics
	Reporter               Reporter
	// Now defaults to time.Now.
	Now func() time.Time
}

// Scheduler periodically selects due schedules and processes them one by one.
type Scheduler struct {
	store       Store
	proc        Processor
	log         *slog.Logger
	tick        time.Duration
	maxFailures int
	metrics     *metrics.Metrics
	reporter    Reporter
	now         func() time.Time
}

// New creates a Scheduler.
func New(store Store, proc Processor, log *slog.Logger, opts Options) *Scheduler {
	s := &Scheduler{
		store:       store,
		proc:        proc,
		log:         log,
		tick:        opts.Tick,
		maxFailures: opts.MaxConsecutiveFailures,
		metrics:     opts.Metrics,
		reporter:    opts.Reporter,
		now:         opts.Now,
	}
	if s.tick <= 0 {
		s.tick = time.Minute
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Run starts the scheduler loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.Tick(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// SelectDue keeps the first schedule of each user, preserving order.
func SelectDue(schedules []model.ScheduledSignal) []model.ScheduledSignal {
	seen := make(map[string]bool, len(schedules))
	var out []model.ScheduledSignal
	for _, sch := range schedules {
		if seen[sch.Signal.UserID] {
			continue
		}
		seen[sch.Signal.UserID] = true
		out = append(out, sch)
	}
	return out
}

// Tick processes every selected due schedule once and returns the summary.
func (s *Scheduler) Tick(ctx context.Context) model.TickResult {
	start := time.Now()
	now := s.now().UTC().Truncate(time.Second)
	res := model.TickResult{Timestamp: now}

	due, err := s.store.ListDueSchedules(ctx, now)
	if err != nil {
		s.log.Error("list due schedules", "error", err)
		res.Errors++
		s.finish(ctx, res, start)
		return res
	}
	res.SignalsFound = len(due)

	selected := SelectDue(due)
	if len(due) > 0 {
		s.log.Info("due schedules", "found", len(due), "selected", len(selected))
	}

	for _, sch := range selected {
		if ctx.Err() != nil {
			s.log.Warn("tick interrupted", "remaining", len(selected)-res.Processed)
			break
		}
		out := s.proc.Run(ctx, sch)
		res.Processed++
		s.record(&res, out)
		s.afterRun(ctx, sch, out, now)
	}

	s.log.Info("tick complete",
		"found", res.SignalsFound,
		"processed", res.Processed,
		"published", res.SuccessfulPublishes,
		"errors", res.Errors,
	)
	s.finish(ctx, res, start)
	return res
}

func (s *Scheduler) record(res *model.TickResult, out processor.Outcome) {
	switch {
	case out.Published:
		res.SuccessfulPublishes++
		s.observePublish("published")
	case out.RateLimited:
		res.Errors++
		s.observePublish("rate_limited")
	case out.Failed():
		res.Errors++
		if s.metrics != nil {
			s.metrics.ObserveError(out.Stage.String())
		}
		if out.Stage >= processor.StagePublish {
			s.observePublish("failed")
		}
	}
}

func (s *Scheduler) observePublish(result string) {
	if s.metrics != nil {
		s.metrics.ObservePublish(result)
	}
}

// afterRun advances the schedule whatever the outcome and tracks the failure streak.
func (s *Scheduler) afterRun(ctx context.Context, sch model.ScheduledSignal, out processor.Outcome, now time.Time) {
	log := s.log.With("schedule_id", sch.ID, "signal_id", sch.SignalID)

	// Writes use a fresh context so a shutdown mid-run still advances the schedule.
	wctx := context.WithoutCancel(ctx)

	next := now.Add(sch.Interval())
	if err := s.store.RescheduleSignal(wctx, sch.ID, now, next); err != nil {
		log.Error("reschedule", "error", err)
		if s.metrics != nil {
			s.metrics.ObserveError("reschedule")
		}
	} else {
		log.Debug("rescheduled", "next_run", next)
	}

	switch {
	case out.RateLimited:
	case out.Failed():
		deactivated, err := s.store.RecordScheduleFailure(wctx, sch.ID, s.maxFailures)
		if err != nil {
			log.Error("record failure", "error", err)
			return
		}
		if deactivated {
			log.Warn("schedule deactivated after repeated failures", "max_failures", s.maxFailures)
		}
	case sch.ConsecutiveFailures > 0:
		if err := s.store.ResetScheduleFailures(wctx, sch.ID); err != nil {
			log.Error("reset failures", "error", err)
		}
	}
}

func (s *Scheduler) finish(ctx context.Context, res model.TickResult, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveTick(res, time.Since(start))
	}
	if s.reporter != nil {
		s.reporter.Report(ctx, res)
	}
}
