package client

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/notexe/memo/internal/reminder"
)

// Poller defaults.
const (
	DefaultPollInterval = 30 * time.Second
	DefaultBackoffBase  = 30 * time.Second
	DefaultBackoffCap   = 300 * time.Second
)

// ReminderLister is the part of APIClient the poller needs.
type ReminderLister interface {
	ListReminders(ctx context.Context) ([]reminder.Reminder, error)
}

// PollerConfig controls the polling cadence.
type PollerConfig struct {
	Interval    time.Duration
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// Poller watches the reminder list and announces each due reminder once.
type Poller struct {
	lister    ReminderLister
	tracker   Tracker
	announcer Announcer
	interval  time.Duration
	logger    *zap.Logger
	sleep     func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	backoff  *backoff.ExponentialBackOff
	failures int
	delay    time.Duration
}

// NewPoller creates a poller. Zero config values take the defaults.
func NewPoller(lister ReminderLister, tracker Tracker, announcer Announcer, cfg PollerConfig, logger *zap.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = DefaultBackoffCap
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.BackoffBase
	b.MaxInterval = cfg.BackoffCap
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()

	return &Poller{
		lister:    lister,
		tracker:   tracker,
		announcer: announcer,
		interval:  cfg.Interval,
		logger:    logger,
		sleep:     sleepCtx,
		backoff:   b,
		delay:     cfg.Interval,
	}
}

// WithSleep replaces the wait between polls.
func (p *Poller) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Poller {
	p.sleep = sleep
	return p
}

// Poll runs one iteration and returns how many reminders were announced.
// Each due id is marked seen before it is announced, so a reminder is never
// announced twice even if announcing fails.
func (p *Poller) Poll(ctx context.Context) (int, error) {
	reminders, err := p.lister.ListReminders(ctx)
	if err != nil {
		p.recordFailure(err)
		return 0, err
	}
	p.recordSuccess()

	announced := 0
	for _, r := range reminders {
		if r.Status != reminder.StatusDue || !p.tracker.IsNew(r.ID) {
			continue
		}
		p.tracker.MarkSeen(r.ID)
		announced++

		if err := p.announcer.Announce(ctx, r); err != nil {
			p.logger.Warn("announcement failed", zap.Int64("id", r.ID), zap.Error(err))
		}
	}
	return announced, nil
}

// NextDelay is how long to wait before the next poll: the base interval after
// a success, otherwise the backoff for the current failure streak.
func (p *Poller) NextDelay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.delay
}

// Failures is the current streak of failed polls.
func (p *Poller) Failures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures
}

func (p *Poller) recordFailure(err error) {
	p.mu.Lock()
	p.failures++
	p.delay = p.backoff.NextBackOff()
	failures, delay := p.failures, p.delay
	p.mu.Unlock()

	p.logger.Warn("poll failed",
		zap.Error(err),
		zap.Int("failures", failures),
		zap.Duration("retry_in", delay))
}

func (p *Poller) recordSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.logger.Info("poll recovered", zap.Int("after_failures", p.failures))
	}
	p.failures = 0
	p.backoff.Reset()
	p.delay = p.interval
}

// Run polls until ctx is cancelled. It never returns early on a failed poll.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller started", zap.Duration("interval", p.interval))
	for {
		if _, err := p.Poll(ctx); err != nil && ctx.Err() != nil {
			return nil
		}
		if err := p.sleep(ctx, p.NextDelay()); err != nil {
			return nil
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
