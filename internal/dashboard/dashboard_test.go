package dashboard_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analytiq/internal/dashboard"
	"analytiq/internal/events"
	"analytiq/internal/testsupport"
)

func TestRefreshCountsTotalsAndLastHour(t *testing.T) {
	dbManager, _, site := testsupport.SetupTestDBManagerWithSite(t, "snapshot-test")
	db := dbManager.GetConnection()
	ctx := context.Background()

	now := time.Date(2026, 8, 10, 15, 0, 0, 0, time.UTC)

	// Two visitors hours ago, one of them active again within the last hour.
	testsupport.CreatePageViewEvent(t, db, site.SiteID, "ev-1", "v1", "s1",
		"https://x.com/", now.Add(-5*time.Hour), testsupport.PageViewOptions{})
	testsupport.CreatePageViewEvent(t, db, site.SiteID, "ev-2", "v2", "s2",
		"https://x.com/pricing", now.Add(-3*time.Hour), testsupport.PageViewOptions{})
	testsupport.CreatePageViewEvent(t, db, site.SiteID, "ev-3", "v1", "s3",
		"https://x.com/docs", now.Add(-20*time.Minute), testsupport.PageViewOptions{})
	// A click in the last hour counts toward visitors but not pageviews.
	testsupport.CreateRawEvent(t, db, site.SiteID, "ev-4", "v3", "s4", events.EventTypeClick,
		now.Add(-10*time.Minute).Format(time.RFC3339), map[string]any{"page": "/docs"})

	snap, err := dashboard.Refresh(ctx, db, site.SiteID, now)
	require.NoError(t, err)

	assert.Equal(t, 3, snap.TotalVisitors)
	assert.Equal(t, 3, snap.TotalPageviews)
	assert.Equal(t, 2, snap.VisitorsLastHour)
	assert.Equal(t, 1, snap.PageviewsLastHour)
	assert.Equal(t, now, snap.GeneratedAt)
}

func TestRefreshReplacesPreviousSnapshot(t *testing.T) {
	dbManager, _, site := testsupport.SetupTestDBManagerWithSite(t, "snapshot-replace")
	db := dbManager.GetConnection()
	ctx := context.Background()

	now := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	testsupport.CreatePageViewEvent(t, db, site.SiteID, "ev-1", "v1", "s1",
		"https://x.com/", now.Add(-time.Minute), testsupport.PageViewOptions{})

	_, err := dashboard.Refresh(ctx, db, site.SiteID, now)
	require.NoError(t, err)

	testsupport.CreatePageViewEvent(t, db, site.SiteID, "ev-2", "v2", "s2",
		"https://x.com/pricing", now.Add(time.Minute), testsupport.PageViewOptions{})

	_, err = dashboard.Refresh(ctx, db, site.SiteID, now.Add(5*time.Minute))
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&dashboard.Snapshot{}).Where("site_id = ?", site.SiteID).Count(&count).Error)
	assert.Equal(t, int64(1), count, "refresh upserts, it never stacks rows")

	snap, err := dashboard.Get(ctx, db, site.SiteID)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 2, snap.TotalVisitors)
	assert.Equal(t, 2, snap.TotalPageviews)
}

func TestGetWithoutSnapshot(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	snap, err := dashboard.Get(context.Background(), db, "never-refreshed")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestSnapshotsAreScopedPerSite(t *testing.T) {
	dbManager, _, site := testsupport.SetupTestDBManagerWithSite(t, "snapshot-a")
	db := dbManager.GetConnection()
	other := testsupport.CreateTestSite(t, db, "snapshot-b")
	ctx := context.Background()

	now := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		testsupport.CreatePageViewEvent(t, db, site.SiteID, fmt.Sprintf("a-%d", i), fmt.Sprintf("v%d", i), "s1",
			"https://a.com/", now.Add(-time.Minute), testsupport.PageViewOptions{})
	}
	testsupport.CreatePageViewEvent(t, db, other.SiteID, "b-0", "v0", "s1",
		"https://b.com/", now.Add(-time.Minute), testsupport.PageViewOptions{})

	snapA, err := dashboard.Refresh(ctx, db, site.SiteID, now)
	require.NoError(t, err)
	snapB, err := dashboard.Refresh(ctx, db, other.SiteID, now)
	require.NoError(t, err)

	assert.Equal(t, 3, snapA.TotalVisitors)
	assert.Equal(t, 1, snapB.TotalVisitors)
}
