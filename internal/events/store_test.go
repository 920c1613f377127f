package events_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analytiq/internal/events"
	"analytiq/internal/testsupport"
)

func TestRawEventsForDay(t *testing.T) {
	dbManager, _, site := testsupport.SetupTestDBManagerWithSite(t, "store-test")
	db := dbManager.GetConnection()
	store := events.NewStore(db)
	ctx := context.Background()

	// Out of insertion order on purpose, the store must sort by timestamp.
	testsupport.CreateRawEvent(t, db, site.SiteID, "ev-2", "v1", "s1", events.EventTypePageView,
		"2026-08-10T14:00:00Z", map[string]any{"url": "https://x.com/b"})
	testsupport.CreateRawEvent(t, db, site.SiteID, "ev-1", "v1", "s1", events.EventTypePageView,
		"2026-08-10T09:00:00Z", map[string]any{"url": "https://x.com/a"})
	testsupport.CreateRawEvent(t, db, site.SiteID, "ev-3", "v2", "s2", events.EventTypeClick,
		"2026-08-10T14:00:00Z", map[string]any{"page": "/b"})
	// Different day and different site must not leak in.
	testsupport.CreateRawEvent(t, db, site.SiteID, "ev-4", "v1", "s3", events.EventTypePageView,
		"2026-08-11T09:00:00Z", map[string]any{"url": "https://x.com/a"})
	testsupport.CreateTestSite(t, db, "other-site")
	testsupport.CreateRawEvent(t, db, "other-site", "ev-5", "v9", "s9", events.EventTypePageView,
		"2026-08-10T09:00:00Z", map[string]any{"url": "https://y.com"})

	rows, err := store.RawEventsForDay(ctx, site.SiteID, "2026-08-10")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "ev-1", rows[0].EventID)
	assert.Equal(t, "ev-2", rows[1].EventID)
	assert.Equal(t, "ev-3", rows[2].EventID, "timestamp ties keep ingestion order")
}

func TestScanRawEventsInRange(t *testing.T) {
	dbManager, _, site := testsupport.SetupTestDBManagerWithSite(t, "scan-test")
	db := dbManager.GetConnection()
	store := events.NewStore(db)
	ctx := context.Background()

	for i, ts := range []string{
		"2026-08-10T09:00:00Z",
		"2026-08-11T09:00:00Z",
		"2026-08-12T09:00:00Z",
		"2026-08-13T09:00:00Z",
	} {
		testsupport.CreateRawEvent(t, db, site.SiteID, fmt.Sprintf("ev-%d", i), "v1", "s1",
			events.EventTypePageView, ts, map[string]any{"url": "https://x.com"})
	}

	var seen []string
	err := store.ScanRawEventsInRange(ctx, site.SiteID, "2026-08-11", "2026-08-12", 1, func(batch []events.RawEvent) error {
		for _, ev := range batch {
			seen = append(seen, ev.TS)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"2026-08-11T09:00:00Z", "2026-08-12T09:00:00Z"}, seen)
}

func TestPurgeEventsBefore(t *testing.T) {
	dbManager, _, site := testsupport.SetupTestDBManagerWithSite(t, "purge-test")
	db := dbManager.GetConnection()
	store := events.NewStore(db)
	ctx := context.Background()

	testsupport.CreateRawEvent(t, db, site.SiteID, "old-1", "v1", "s1", events.EventTypePageView,
		"2026-07-01T09:00:00Z", map[string]any{"url": "https://x.com"})
	testsupport.CreateRawEvent(t, db, site.SiteID, "new-1", "v1", "s2", events.EventTypePageView,
		"2026-08-10T09:00:00Z", map[string]any{"url": "https://x.com"})
	require.NoError(t, store.InsertSearchEvent(ctx, &events.SearchEvent{
		EventID: "search-old", SiteID: site.SiteID, TS: "2026-07-01T10:00:00Z", SearchTerm: "pricing",
	}))

	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	purged, err := store.PurgeEventsBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged)

	rows, err := store.RawEventsForDay(ctx, site.SiteID, "2026-08-10")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	old, err := store.RawEventsForDay(ctx, site.SiteID, "2026-07-01")
	require.NoError(t, err)
	assert.Empty(t, old)

	searches, err := store.SearchEventsForDay(ctx, site.SiteID, "2026-07-01")
	require.NoError(t, err)
	assert.Empty(t, searches)
}
