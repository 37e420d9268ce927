package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/sentinel/internal/logger"
)

const (
	// DefaultHistoryRetention is how long aggregate results are kept
	DefaultHistoryRetention = 7 * 24 * time.Hour
)

// HistoryPruner drops audit entries older than a cutoff.
type HistoryPruner interface {
	PruneResults(ctx context.Context, cutoff time.Time) (int, error)
}

// HistoryCollector handles cleanup of old health check results
type HistoryCollector struct {
	store     HistoryPruner
	logger    logger.Logger
	retention time.Duration
	now       func() time.Time
}

// NewHistoryCollector creates a new history collector
func NewHistoryCollector(store HistoryPruner, log logger.Logger, retention time.Duration) *HistoryCollector {
	if retention <= 0 {
		retention = DefaultHistoryRetention
	}
	return &HistoryCollector{
		store:     store,
		logger:    log,
		retention: retention,
		now:       time.Now,
	}
}

// Collect removes results older than the retention window.
func (c *HistoryCollector) Collect(ctx context.Context) error {
	cutoff := c.now().Add(-c.retention)

	deleted, err := c.store.PruneResults(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune health history: %w", err)
	}

	if deleted > 0 {
		c.logger.Info("health history pruned",
			logger.Int("deleted", deleted),
			logger.Time("cutoff", cutoff))
	} else {
		c.logger.Debug("no health history to prune")
	}
	return nil
}
