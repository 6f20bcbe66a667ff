// Package supervisor keeps long-running loops alive.
package supervisor

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// Defaults for the restart backoff.
const (
	DefaultInitialDelay = time.Second
	DefaultMaxDelay     = time.Minute
)

type options struct {
	initial time.Duration
	max     time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

// Option configures Run.
type Option func(*options)

// WithBackoff sets the first and the largest restart delay.
func WithBackoff(initial, max time.Duration) Option {
	return func(o *options) {
		o.initial = initial
		o.max = max
	}
}

// WithSleep replaces the wait between restarts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *options) { o.sleep = sleep }
}

// Run calls fn until it returns nil or ctx is cancelled. When fn returns an
// error or panics it is restarted after an exponential backoff. A run that
// lasted longer than the maximum delay resets the backoff.
func Run(ctx context.Context, name string, logger *zap.Logger, fn func(ctx context.Context) error, opts ...Option) error {
	o := options{
		initial: DefaultInitialDelay,
		max:     DefaultMaxDelay,
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("task", name))

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.initial
	b.MaxInterval = o.max
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()

	for restarts := 0; ; restarts++ {
		started := time.Now()
		err := runSafe(ctx, fn)

		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			logger.Info("task finished")
			return nil
		}

		if time.Since(started) > o.max {
			b.Reset()
		}
		delay := b.NextBackOff()
		logger.Error("task failed, restarting",
			zap.Error(err),
			zap.Int("restarts", restarts+1),
			zap.Duration("delay", delay))

		if err := o.sleep(ctx, delay); err != nil {
			return nil
		}
	}
}

func runSafe(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v\n%s", p, debug.Stack())
		}
	}()
	return fn(ctx)
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
