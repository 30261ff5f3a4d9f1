package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/lumbung-erp/lumbung-erp/internal/shared"
)

// IdempotencyCleaner prunes processed idempotency keys past retention.
type IdempotencyCleaner struct {
	store     *shared.IdempotencyStore
	retention time.Duration
	logger    *slog.Logger
}

// NewIdempotencyCleaner constructs the cleaner.
func NewIdempotencyCleaner(store *shared.IdempotencyStore, retention time.Duration, logger *slog.Logger) *IdempotencyCleaner {
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &IdempotencyCleaner{store: store, retention: retention, logger: logger}
}

// HandleTask runs one cleanup pass.
func (c *IdempotencyCleaner) HandleTask(ctx context.Context, t *asynq.Task) error {
	if err := c.store.Cleanup(ctx, c.retention); err != nil {
		return err
	}
	c.logger.Info("idempotency keys pruned",
		slog.String("job", TaskIdempotencyCleanup),
		slog.Duration("retention", c.retention))
	return nil
}
