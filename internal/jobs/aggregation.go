package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"analytiq/internal/database"
	"analytiq/internal/events"
	"analytiq/internal/pkg/async"
	"analytiq/internal/rollup"
	"analytiq/internal/sites"
)

// aggregationWorkers bounds how many sites are aggregated concurrently.
// SQLite serializes writes anyway, so a small pool is enough to overlap
// the read-heavy parts.
const aggregationWorkers = 4

// AggregationJob recomputes today's rollup for every registered site. A
// per-site lock keeps overlapping runs from aggregating the same site twice;
// a site still locked from the previous run is skipped, not queued.
type AggregationJob struct {
	dbManager *database.DBManager
	logger    *slog.Logger
	geo       rollup.GeoResolver

	mu        sync.Mutex
	siteLocks map[string]*sync.Mutex
}

func NewAggregationJob(dbManager *database.DBManager, logger *slog.Logger, geo rollup.GeoResolver) *AggregationJob {
	return &AggregationJob{
		dbManager: dbManager,
		logger:    logger,
		geo:       geo,
		siteLocks: make(map[string]*sync.Mutex),
	}
}

func (j *AggregationJob) lockFor(siteID string) *sync.Mutex {
	j.mu.Lock()
	defer j.mu.Unlock()
	lock, ok := j.siteLocks[siteID]
	if !ok {
		lock = &sync.Mutex{}
		j.siteLocks[siteID] = lock
	}
	return lock
}

// Run aggregates all sites through a bounded worker pool. A failing site is
// logged and does not stop the rest of the run.
func (j *AggregationJob) Run() error {
	db := j.dbManager.GetConnection()
	siteIDs, err := sites.ListSiteIDs(db)
	if err != nil {
		return err
	}

	store := events.NewStore(db)
	aggregator := rollup.NewAggregator(store, j.geo, j.logger)

	start := time.Now()
	tasks := make([]async.Task, 0, len(siteIDs))
	for _, siteID := range siteIDs {
		siteID := siteID
		tasks = append(tasks, async.Task{
			Name: siteID,
			Execute: func(ctx context.Context) (any, error) {
				lock := j.lockFor(siteID)
				if !lock.TryLock() {
					j.logger.Debug("Skipping site, aggregation already in progress", slog.String("site_id", siteID))
					return rollup.Diagnostics{}, nil
				}
				defer lock.Unlock()
				return aggregator.AggregateDay(ctx, siteID)
			},
		})
	}

	pool := async.NewPool(aggregationWorkers)
	results := pool.Execute(context.Background(), tasks)

	var failures int
	for _, siteID := range siteIDs {
		result, ok := results[siteID]
		if !ok {
			continue
		}
		if result.Err != nil {
			failures++
			j.logger.Error("Failed to aggregate site",
				slog.String("site_id", siteID),
				slog.Any("error", result.Err))
			continue
		}
		if diag, ok := result.Data.(rollup.Diagnostics); ok && diag.Skipped() > 0 {
			j.logger.Warn("Aggregation skipped malformed events",
				slog.String("site_id", siteID),
				slog.Int("bad_payload", diag.SkippedBadPayload),
				slog.Int("bad_timestamp", diag.SkippedBadTimestamp))
		}
	}

	j.logger.Info("Aggregation run completed",
		slog.Int("sites", len(siteIDs)),
		slog.Int("failures", failures),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}
