package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked once per cycle with the cycle's start time.
type TickFunc func(ctx context.Context, started time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	// Interval is the target period between cycle starts.
	Interval time.Duration
	// MinWait is the shortest pause after a cycle, even when it overran Interval.
	MinWait      time.Duration
	StartupDelay time.Duration
}

// Scheduler paces a single-goroutine loop against a fixed time budget.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	if opts.MinWait < 0 {
		opts.MinWait = 0
	}
	return &Scheduler{
		opts:   opts,
		logger: logger.With().Str("component", "scheduler").Logger(),
		now:    time.Now,
	}
}

// WaitAfter returns the pause that follows a cycle that took elapsed.
func (s *Scheduler) WaitAfter(elapsed time.Duration) time.Duration {
	return max(s.opts.MinWait, s.opts.Interval-elapsed)
}

// Run blocks, invoking tick back to back with the computed pause in between,
// until ctx is cancelled. Tick errors are logged and do not stop the loop.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		if err := sleep(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	for cycle := 1; ; cycle++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		started := s.now()
		if err := tick(ctx, started); err != nil {
			s.logger.Error().Err(err).Int("cycle", cycle).Msg("tick execution failed")
		}
		elapsed := s.now().Sub(started)

		wait := s.WaitAfter(elapsed)
		s.logger.Debug().Int("cycle", cycle).Dur("elapsed", elapsed).Dur("wait", wait).Msg("waiting for next cycle")

		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
