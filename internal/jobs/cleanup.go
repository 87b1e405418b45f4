package jobs

import (
	"log/slog"

	"insightify/internal/collector"
	"insightify/internal/config"
)

// CleanupJob applies the data retention window across all analytics stores.
type CleanupJob struct {
	collector *collector.Collector
	logger    *slog.Logger
	cfg       *config.Config
}

func NewCleanupJob(c *collector.Collector, logger *slog.Logger, cfg *config.Config) *CleanupJob {
	return &CleanupJob{
		collector: c,
		logger:    logger,
		cfg:       cfg,
	}
}

// Run deletes pageviews, events, sessions and heatmap data older than the
// configured retention period.
func (j *CleanupJob) Run() error {
	retentionDays := j.cfg.DataRetentionDays

	deleted, err := j.collector.CleanOldData(retentionDays)
	if err != nil {
		j.logger.Error("Retention cleanup failed",
			slog.Int64("deleted_before_failure", deleted),
			slog.Any("error", err))
		return err
	}

	if deleted > 0 {
		j.logger.Info("Retention cleanup finished",
			slog.Int64("deleted_count", deleted),
			slog.Int("retention_days", retentionDays))
	}
	return nil
}
