package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"BillsScanner/internal/logging"
	"BillsScanner/internal/ports"
)

// Scheduler wires the cron-like driver with the pipeline use case.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	logger   *slog.Logger
	// running guards against overlapping runs; checkpoints assume a single writer.
	running sync.Mutex
}

// NewScheduler returns a helper to start/stop recurring jobs.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, logger *slog.Logger) *Scheduler {
	return &Scheduler{driver: driver, pipeline: pipeline, logger: logging.OrDiscard(logger)}
}

// Start registers the pipeline with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	return s.driver.Start(ctx, func(trigger time.Time) {
		s.runOnce(ctx, trigger)
	})
}

func (s *Scheduler) runOnce(ctx context.Context, trigger time.Time) {
	if !s.running.TryLock() {
		s.logger.Warn("previous run still in progress, skipping", "trigger", trigger)
		return
	}
	defer s.running.Unlock()

	s.logger.Info("scheduled run started", "trigger", trigger)
	if _, err := s.pipeline.Run(ctx, trigger); err != nil {
		s.logger.Error("scheduled run finished with errors", "error", err)
		return
	}
	s.logger.Info("scheduled run finished")
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
