package usecase

import (
	"context"
	"log/slog"
	"time"

	"PaperWatcher/internal/ports"
)

// Cycle is one scheduled unit of work.
type Cycle func(ctx context.Context, trigger time.Time) error

// Scheduler wires the ticker driver with the watch cycle.
type Scheduler struct {
	driver ports.Scheduler
	cycle  Cycle
	logger *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring cycles.
func NewScheduler(driver ports.Scheduler, cycle Cycle, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, cycle: cycle, logger: logger}
}

// Start registers the cycle with the provided scheduler. Cycle errors are logged and
// the schedule keeps running.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.cycle == nil {
		return nil
	}

	job := func(trigger time.Time) {
		started := time.Now()
		if err := s.cycle(ctx, trigger); err != nil {
			s.logger.Error("scheduled cycle failed", "trigger", trigger.Format(time.RFC3339), "error", err)
			return
		}
		s.logger.Info("scheduled cycle finished", "elapsed", time.Since(started).Round(time.Millisecond))
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
