/**
 * @description
 * Cron scheduler setup for the ledger service's housekeeping jobs.
 */
package app

import (
	"context"
	"log/slog"

	"github.com/moneypay/ledger-service/internal/config"
	"github.com/robfig/cron/v3"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
	config config.Config
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the jobs and starts the cron scheduler. The pending-expiry
// job is only registered when a TTL is configured.
func (s *Scheduler) Start() {
	if s.config.PendingTTL() > 0 {
		if _, err := s.cron.AddFunc(s.config.PendingExpirySchedule, s.jobs.ExpirePendingItems); err != nil {
			s.logger.Error("failed to schedule pending expiry job", "error", err)
		} else {
			s.logger.Info("scheduled pending expiry job", "schedule", s.config.PendingExpirySchedule, "ttl", s.config.PendingTTL().String())
		}
	} else {
		s.logger.Info("pending expiry disabled", "env", "PENDING_TTL_HOURS")
	}

	if _, err := s.cron.AddFunc(s.config.OutboxPurgeSchedule, s.jobs.PurgePublishedOutbox); err != nil {
		s.logger.Error("failed to schedule outbox purge job", "error", err)
	} else {
		s.logger.Info("scheduled outbox purge job", "schedule", s.config.OutboxPurgeSchedule)
	}

	s.cron.Start()
}

// Entries reports how many jobs are registered.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
