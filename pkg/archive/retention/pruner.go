// Package retention deletes archived transcripts once they are older than
// the configured retention period.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/relay/pkg/archive"
)

// Config contains configuration for the retention pruner.
type Config struct {
	// RetentionDays is the number of days to keep transcripts.
	// 0 keeps them forever.
	RetentionDays int

	// PruneSchedule is a standard cron expression, e.g. "0 3 * * *".
	// Empty disables scheduled pruning.
	PruneSchedule string
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays: 30,
		PruneSchedule: "0 3 * * *",
	}
}

// Pruner enforces the retention period on a transcript store.
type Pruner struct {
	storage archive.Storage
	config  *Config
	now     func() time.Time
	logger  *slog.Logger
}

// NewPruner creates a new retention pruner.
func NewPruner(storage archive.Storage, config *Config) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}
	return &Pruner{
		storage: storage,
		config:  config,
		now:     time.Now,
		logger:  slog.Default().With("component", "archive.retention"),
	}
}

// Prune deletes transcripts older than the retention period and returns how
// many were deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	if p.config.RetentionDays <= 0 {
		p.logger.Debug("retention disabled, nothing pruned")
		return 0, nil
	}

	cutoff := p.now().AddDate(0, 0, -p.config.RetentionDays)
	deleted, err := p.storage.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune transcripts before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	if deleted > 0 {
		p.logger.Info("pruned transcripts",
			"deleted_count", deleted,
			"retention_days", p.config.RetentionDays,
		)
	}
	return deleted, nil
}
