// Package scheduler drives the engine's periodic loops. Each registered task runs
// once immediately and then on a fixed interval. A run that is still going when the
// next tick arrives makes that tick get skipped rather than queued.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Task is one cycle of a periodic loop
type Task interface {
	Name() string
	RunOnce(ctx context.Context) error
}

// Scheduler owns the gocron scheduler and the jobs registered on it
type Scheduler struct {
	cron   gocron.Scheduler
	logger *slog.Logger
}

// New creates a scheduler. Nothing runs until Start.
func New(logger *slog.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &Scheduler{
		cron:   s,
		logger: logger,
	}, nil
}

// Register schedules task every interval. ctx is handed to every cycle, so
// cancelling it aborts in-flight work.
func (s *Scheduler) Register(ctx context.Context, task Task, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("invalid interval %s for %s", interval, task.Name())
	}

	_, err := s.cron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			s.run(ctx, task)
		}),
		gocron.WithName(task.Name()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", task.Name(), err)
	}

	s.logger.Info("Registered periodic task", "task", task.Name(), "interval", interval.String())
	return nil
}

func (s *Scheduler) run(ctx context.Context, task Task) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	err := task.RunOnce(ctx)
	switch {
	case err == nil:
		s.logger.Debug("Cycle finished", "task", task.Name(), "duration", time.Since(start).String())
	case errors.Is(err, ErrCycleInProgress):
		s.logger.Warn("Cycle skipped, previous one still running", "task", task.Name())
	case errors.Is(err, context.Canceled):
		s.logger.Info("Cycle cancelled", "task", task.Name())
	default:
		s.logger.Error("Cycle failed", "task", task.Name(), "error", err)
	}
}

// Start begins running the registered tasks
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started")
}

// Shutdown stops scheduling new cycles and waits for running ones to return
func (s *Scheduler) Shutdown() error {
	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("failed to shut down scheduler: %w", err)
	}
	s.logger.Info("Scheduler stopped")
	return nil
}
