package trend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analytiq/internal/events"
	"analytiq/internal/testsupport"
)

func day(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02", value)
	require.NoError(t, err)
	return ts
}

func TestGranularityFor(t *testing.T) {
	tests := []struct {
		name  string
		start string
		end   string
		want  Granularity
	}{
		{name: "single day", start: "2026-08-10", end: "2026-08-10", want: GranularityHalfDay},
		{name: "three days", start: "2026-08-10", end: "2026-08-12", want: GranularityHalfDay},
		{name: "four days", start: "2026-08-10", end: "2026-08-13", want: GranularityDaily},
		{name: "thirty days", start: "2026-08-01", end: "2026-08-30", want: GranularityDaily},
		{name: "thirty one days", start: "2026-08-01", end: "2026-08-31", want: GranularityWeekly},
		{name: "45 days", start: "2026-07-01", end: "2026-08-14", want: GranularityWeekly},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, GranularityFor(day(t, tc.start), day(t, tc.end)))
		})
	}
}

func TestBucketKeys(t *testing.T) {
	t.Run("half day buckets cover both halves of every day", func(t *testing.T) {
		keys := bucketKeys(GranularityHalfDay, day(t, "2026-08-10"), day(t, "2026-08-11"))
		assert.Equal(t, []string{
			"2026-08-10 12AM", "2026-08-10 12PM",
			"2026-08-11 12AM", "2026-08-11 12PM",
		}, keys)
	})

	t.Run("weekly buckets align on Monday", func(t *testing.T) {
		// 2026-08-12 is a Wednesday; its week starts 2026-08-10
		keys := bucketKeys(GranularityWeekly, day(t, "2026-08-12"), day(t, "2026-08-25"))
		assert.Equal(t, []string{
			"Week of 2026-08-10",
			"Week of 2026-08-17",
			"Week of 2026-08-24",
		}, keys)
	})

	t.Run("daily buckets are consecutive", func(t *testing.T) {
		keys := bucketKeys(GranularityDaily, day(t, "2026-08-30"), day(t, "2026-09-02"))
		assert.Equal(t, []string{"2026-08-30", "2026-08-31", "2026-09-01", "2026-09-02"}, keys)
	})
}

func TestComputeDailySeries(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.CreateTestSite(t, db, "site-1")
	store := events.NewStore(db)

	// two visitors on the 10th, nothing on the 11th, one on the 12th
	testsupport.CreatePageViewEvent(t, db, "site-1", "e1", "v1", "s1", "https://x.com/", day(t, "2026-08-10").Add(9*time.Hour), testsupport.PageViewOptions{})
	testsupport.CreatePageViewEvent(t, db, "site-1", "e2", "v2", "s2", "https://x.com/", day(t, "2026-08-10").Add(15*time.Hour), testsupport.PageViewOptions{})
	testsupport.CreatePageViewEvent(t, db, "site-1", "e3", "v1", "s3", "https://x.com/blog", day(t, "2026-08-12").Add(11*time.Hour), testsupport.PageViewOptions{})

	series, err := Compute(context.Background(), store, "site-1", day(t, "2026-08-09"), day(t, "2026-08-13"), 0)
	require.NoError(t, err)
	assert.Equal(t, GranularityDaily, series.Granularity)
	require.Len(t, series.Points, 5)

	assert.Equal(t, Point{Period: "2026-08-09"}, series.Points[0])
	assert.Equal(t, Point{Period: "2026-08-10", Visitors: 2, Pageviews: 2}, series.Points[1])
	assert.Equal(t, Point{Period: "2026-08-11"}, series.Points[2], "gap day stays at zero")
	assert.Equal(t, Point{Period: "2026-08-12", Visitors: 1, Pageviews: 1}, series.Points[3])
	assert.Equal(t, Point{Period: "2026-08-13"}, series.Points[4])
}

func TestComputeHalfDaySeries(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.CreateTestSite(t, db, "site-1")
	store := events.NewStore(db)

	testsupport.CreatePageViewEvent(t, db, "site-1", "e1", "v1", "s1", "https://x.com/", day(t, "2026-08-10").Add(8*time.Hour), testsupport.PageViewOptions{})
	testsupport.CreatePageViewEvent(t, db, "site-1", "e2", "v1", "s1", "https://x.com/a", day(t, "2026-08-10").Add(14*time.Hour), testsupport.PageViewOptions{})

	// non-pageview events count toward visitors but not pageviews
	testsupport.CreateRawEvent(t, db, "site-1", "e3", "v2", "s2", events.EventTypeClick,
		day(t, "2026-08-10").Add(14*time.Hour).Format(time.RFC3339), map[string]any{"page": "/a"})

	series, err := Compute(context.Background(), store, "site-1", day(t, "2026-08-10"), day(t, "2026-08-10"), 0)
	require.NoError(t, err)
	assert.Equal(t, GranularityHalfDay, series.Granularity)
	require.Len(t, series.Points, 2)

	assert.Equal(t, Point{Period: "2026-08-10 12AM", Visitors: 1, Pageviews: 1}, series.Points[0])
	assert.Equal(t, Point{Period: "2026-08-10 12PM", Visitors: 2, Pageviews: 1}, series.Points[1])
}

func TestComputeWeeklySeries(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.CreateTestSite(t, db, "site-1")
	store := events.NewStore(db)

	// 45-day range produces weekly buckets; events land in their Monday week
	testsupport.CreatePageViewEvent(t, db, "site-1", "e1", "v1", "s1", "https://x.com/", day(t, "2026-07-07").Add(10*time.Hour), testsupport.PageViewOptions{})
	testsupport.CreatePageViewEvent(t, db, "site-1", "e2", "v2", "s2", "https://x.com/", day(t, "2026-08-12").Add(10*time.Hour), testsupport.PageViewOptions{})

	series, err := Compute(context.Background(), store, "site-1", day(t, "2026-07-01"), day(t, "2026-08-14"), 0)
	require.NoError(t, err)
	assert.Equal(t, GranularityWeekly, series.Granularity)
	require.Len(t, series.Points, 7)

	// 2026-07-01 is a Wednesday, so the first bucket starts Monday 2026-06-29
	assert.Equal(t, "Week of 2026-06-29", series.Points[0].Period)

	byPeriod := make(map[string]Point)
	for _, p := range series.Points {
		byPeriod[p.Period] = p
	}
	assert.Equal(t, 1, byPeriod["Week of 2026-07-06"].Visitors)
	assert.Equal(t, 1, byPeriod["Week of 2026-08-10"].Visitors)
}

func TestComputeSkipsUnparseableTimestamps(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.CreateTestSite(t, db, "site-1")
	store := events.NewStore(db)

	testsupport.CreateRawEvent(t, db, "site-1", "e1", "v1", "s1", events.EventTypePageView,
		"2026-08-10T09:00:00Z", map[string]any{"url": "https://x.com/"})
	testsupport.CreateRawEvent(t, db, "site-1", "e2", "v2", "s2", events.EventTypePageView,
		"not-a-timestamp", map[string]any{"url": "https://x.com/"})

	series, err := Compute(context.Background(), store, "site-1", day(t, "2026-08-10"), day(t, "2026-08-16"), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, series.Points[0].Visitors)
	assert.Equal(t, 1, series.Points[0].Pageviews)
}

func TestComputeRejectsInvertedRange(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	store := events.NewStore(db)

	_, err := Compute(context.Background(), store, "site-1", day(t, "2026-08-10"), day(t, "2026-08-01"), 0)
	require.Error(t, err)
}
