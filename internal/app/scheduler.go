/**
 * @description
 * Cron scheduler for the checkout reconciliation job.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultReconcileSchedule = "@every 5m"
	reconcileJobTimeout      = 2 * time.Minute
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron       *cron.Cron
	reconciler *Reconciler
	schedule   string
	logger     *slog.Logger
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(reconciler *Reconciler, schedule string, logger *slog.Logger) *Scheduler {
	if schedule == "" {
		schedule = DefaultReconcileSchedule
	}
	logger = logger.With("component", "scheduler")
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &Scheduler{
		cron:       c,
		reconciler: reconciler,
		schedule:   schedule,
		logger:     logger,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.ReconcileCheckouts); err != nil {
		s.logger.Error("failed to schedule checkout reconcile job", "error", err)
		return err
	}
	s.logger.Info("scheduled checkout reconcile job", "schedule", s.schedule)
	s.cron.Start()
	return nil
}

// ReconcileCheckouts runs one reconciliation pass.
func (s *Scheduler) ReconcileCheckouts() {
	ctx, cancel := context.WithTimeout(context.Background(), reconcileJobTimeout)
	defer cancel()

	if _, err := s.reconciler.Run(ctx); err != nil {
		s.logger.Error("checkout reconcile job failed", "error", err)
	}
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
