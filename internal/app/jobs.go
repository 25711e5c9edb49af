/**
 * @description
 * Scheduled job implementations for the ledger service.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/moneypay/ledger-service/internal/config"
)

// PendingExpirer closes stale pending items.
type PendingExpirer interface {
	ExpirePending(ctx context.Context, ttl time.Duration) (ExpiryReport, error)
}

// OutboxPurger deletes published outbox rows.
type OutboxPurger interface {
	PurgePublishedOutbox(ctx context.Context, olderThan time.Time) (int64, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	expirer PendingExpirer
	outbox  OutboxPurger
	logger  *slog.Logger
	config  config.Config
	now     func() time.Time
}

// NewJobs creates a new Jobs runner.
func NewJobs(expirer PendingExpirer, outbox OutboxPurger, logger *slog.Logger, cfg config.Config) *Jobs {
	return &Jobs{
		expirer: expirer,
		outbox:  outbox,
		logger:  logger,
		config:  cfg,
		now:     time.Now,
	}
}

// ExpirePendingItems cancels pending withdrawal requests and state pushes
// older than the configured TTL.
func (j *Jobs) ExpirePendingItems() {
	j.logger.Info("starting pending expiry job")
	ctx := context.Background()

	report, err := j.expirer.ExpirePending(ctx, j.config.PendingTTL())
	if err != nil {
		j.logger.Error("failed to expire pending items", "error", err)
		return
	}

	j.logger.Info("pending expiry job finished",
		"requests_expired", report.Requests,
		"state_pushes_expired", report.StatePushes,
		"failures", report.Failures,
	)
}

// PurgePublishedOutbox removes published outbox rows past the retention window.
func (j *Jobs) PurgePublishedOutbox() {
	j.logger.Info("starting outbox purge job")
	ctx := context.Background()

	cutoff := j.now().Add(-j.config.OutboxRetention())
	deleted, err := j.outbox.PurgePublishedOutbox(ctx, cutoff)
	if err != nil {
		j.logger.Error("failed to purge outbox", "error", err)
		return
	}

	j.logger.Info("outbox purge job finished", "deleted", deleted)
}
