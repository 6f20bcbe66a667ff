package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/notexe/memo/internal/reminder"
)

// DefaultInterval is the pause between the end of one tick and the start of the next.
const DefaultInterval = 60 * time.Second

// DueLister finds reminders whose trigger time has passed.
type DueLister interface {
	ListDue(ctx context.Context, now time.Time) ([]reminder.Reminder, error)
}

// Transitioner moves a reminder to due. reminder.Engine implements it.
type Transitioner interface {
	Now() time.Time
	MarkDue(ctx context.Context, r reminder.Reminder) (*reminder.Reminder, error)
}

// TickResult summarises one pass over the due reminders.
type TickResult struct {
	Found   int
	Marked  int
	Skipped int
	Failed  int
}

// Options configures a Scheduler.
type Options struct {
	Interval time.Duration
	Notifier DueNotifier
	Logger   *zap.Logger
	Metrics  *Metrics
}

// Scheduler periodically promotes scheduled reminders to due.
type Scheduler struct {
	lister   DueLister
	engine   Transitioner
	interval time.Duration
	notifier DueNotifier
	logger   *zap.Logger
	metrics  *Metrics
}

// New creates a Scheduler. A zero interval means DefaultInterval.
func New(lister DueLister, engine Transitioner, opts Options) *Scheduler {
	s := &Scheduler{
		lister:   lister,
		engine:   engine,
		interval: opts.Interval,
		notifier: opts.Notifier,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
	if s.interval == 0 {
		s.interval = DefaultInterval
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Run ticks once immediately and then once per interval until ctx is
// cancelled. The next tick is armed only after the previous one returns,
// so ticks never overlap. Tick failures are logged and the loop carries on.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval < 0 {
		return fmt.Errorf("scheduler interval must be positive, got %s", s.interval)
	}

	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler shutting down")
			return nil
		case <-timer.C:
			if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("tick failed", zap.Error(err))
			}
			timer.Reset(s.interval)
		}
	}
}

// Tick marks every reminder that is due at the current time. A failure on one
// reminder does not stop the others; a failure to list aborts the tick.
func (s *Scheduler) Tick(ctx context.Context) (result TickResult, err error) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("tick panicked: %v", p)
		}
		s.observeTick(start, err)
	}()

	now := s.engine.Now()
	due, err := s.lister.ListDue(ctx, now)
	if err != nil {
		return result, fmt.Errorf("list due reminders: %w", err)
	}
	result.Found = len(due)

	for _, r := range due {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		marked, err := s.engine.MarkDue(ctx, r)
		switch {
		case errors.Is(err, reminder.ErrInvalidTransition):
			// Deleted or changed since it was listed.
			result.Skipped++
			s.countTransition("skipped")
			s.logger.Debug("reminder no longer scheduled", zap.Int64("id", r.ID))
			continue
		case err != nil:
			result.Failed++
			s.countTransition("error")
			s.logger.Error("failed to mark reminder due", zap.Int64("id", r.ID), zap.Error(err))
			continue
		}

		result.Marked++
		s.countTransition("ok")
		s.notify(ctx, *marked)
	}

	if result.Found > 0 {
		s.logger.Info("tick complete",
			zap.Int("found", result.Found),
			zap.Int("marked", result.Marked),
			zap.Int("skipped", result.Skipped),
			zap.Int("failed", result.Failed))
	}
	return result, nil
}

func (s *Scheduler) notify(ctx context.Context, r reminder.Reminder) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyDue(ctx, r); err != nil {
		s.logger.Warn("due notification failed", zap.Int64("id", r.ID), zap.Error(err))
	}
}

func (s *Scheduler) observeTick(start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.TickDuration.Observe(time.Since(start).Seconds())
	result := "ok"
	if err != nil {
		result = "error"
	}
	s.metrics.TicksTotal.WithLabelValues(result).Inc()
}

func (s *Scheduler) countTransition(result string) {
	if s.metrics != nil {
		s.metrics.TransitionsTotal.WithLabelValues(result).Inc()
	}
}
