package jobs

import (
	"context"
	"log/slog"
	"time"

	"analytiq/internal/dashboard"
	"analytiq/internal/database"
	"analytiq/internal/sites"
)

// SnapshotJob refreshes the realtime dashboard snapshot of every site.
type SnapshotJob struct {
	dbManager *database.DBManager
	logger    *slog.Logger
}

func NewSnapshotJob(dbManager *database.DBManager, logger *slog.Logger) *SnapshotJob {
	return &SnapshotJob{dbManager: dbManager, logger: logger}
}

func (j *SnapshotJob) Run() error {
	db := j.dbManager.GetConnection()
	siteIDs, err := sites.ListSiteIDs(db)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, siteID := range siteIDs {
		if _, err := dashboard.Refresh(context.Background(), db, siteID, now); err != nil {
			j.logger.Error("Failed to refresh dashboard snapshot",
				slog.String("site_id", siteID),
				slog.Any("error", err))
		}
	}
	return nil
}
