package jobs

import (
	"context"
	"log/slog"
	"time"

	"analytiq/internal/config"
	"analytiq/internal/database"
	"analytiq/internal/events"
)

// CleanupJob purges event rows older than the retention period. Rollups are
// kept; only the raw and specialized event tables shrink.
type CleanupJob struct {
	dbManager *database.DBManager
	logger    *slog.Logger
	cfg       *config.Config
}

func NewCleanupJob(dbManager *database.DBManager, logger *slog.Logger, cfg *config.Config) *CleanupJob {
	return &CleanupJob{
		dbManager: dbManager,
		logger:    logger,
		cfg:       cfg,
	}
}

// Run removes events older than the retention period. This supports GDPR
// data minimization and keeps the database from growing without bound.
func (j *CleanupJob) Run() error {
	retentionDays := j.cfg.EventRetentionDays
	if retentionDays <= 0 {
		j.logger.Debug("Event retention disabled, skipping cleanup")
		return nil
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	j.logger.Info("Starting cleanup of old events",
		slog.Int("retention_days", retentionDays),
		slog.Time("cutoff", cutoff))

	store := events.NewStore(j.dbManager.GetConnection())
	deleted, err := store.PurgeEventsBefore(context.Background(), cutoff)
	if err != nil {
		j.logger.Error("Failed to purge old events", slog.Any("error", err))
		return err
	}

	if deleted == 0 {
		j.logger.Debug("No old events to clean up")
		return nil
	}

	j.logger.Info("Cleaned up old events",
		slog.Int64("deleted_count", deleted),
		slog.Int("retention_days", retentionDays))
	return nil
}
