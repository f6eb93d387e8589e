package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"auditor/internal/monitoring"
	"auditor/internal/storage"
)

// CleanupStore is the retention side of persistence.
type CleanupStore interface {
	DeleteSupersededDetails(ctx context.Context) (checks, pages int64, err error)
	DeleteExpiredEphemeral(ctx context.Context, olderThan time.Duration) (int64, error)
	SweepOrphanQueues(ctx context.Context) (int64, error)
}

// Cleaner keeps the dataset bounded. Both policies are idempotent and safe to
// re-run from either the cleanup endpoint or the cron schedule.
type Cleaner struct {
	store     CleanupStore
	metrics   *monitoring.Metrics
	logger    *zap.Logger
	retention time.Duration // max age of ephemeral audits
}

func NewCleaner(store CleanupStore, m *monitoring.Metrics, l *zap.Logger, retention time.Duration) *Cleaner {
	return &Cleaner{store: store, metrics: m, logger: l, retention: retention}
}

// Run performs one full retention sweep and returns what it removed.
func (c *Cleaner) Run(ctx context.Context) (*storage.CleanupCounts, error) {
	counts := &storage.CleanupCounts{}

	checksDeleted, pagesDeleted, err := c.store.DeleteSupersededDetails(ctx)
	if err != nil {
		return nil, err
	}
	counts.ChecksDeleted = checksDeleted
	counts.PagesDeleted = pagesDeleted

	auditsDeleted, err := c.store.DeleteExpiredEphemeral(ctx, c.retention)
	if err != nil {
		return nil, err
	}
	counts.AuditsDeleted = auditsDeleted

	queueDeleted, err := c.store.SweepOrphanQueues(ctx)
	if err != nil {
		return nil, err
	}
	counts.QueueEntriesDeleted = queueDeleted

	c.metrics.CleanupDeleted.WithLabelValues("checks").Add(float64(checksDeleted))
	c.metrics.CleanupDeleted.WithLabelValues("pages").Add(float64(pagesDeleted))
	c.metrics.CleanupDeleted.WithLabelValues("audits").Add(float64(auditsDeleted))
	c.metrics.CleanupDeleted.WithLabelValues("queue_entries").Add(float64(queueDeleted))

	c.logger.Info("cleanup sweep finished",
		zap.Int64("checks_deleted", checksDeleted),
		zap.Int64("pages_deleted", pagesDeleted),
		zap.Int64("audits_deleted", auditsDeleted),
		zap.Int64("queue_entries_deleted", queueDeleted))
	return counts, nil
}
