package reports_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analytiq/internal/events"
	"analytiq/internal/pkg/counter"
	"analytiq/internal/reports"
	"analytiq/internal/rollup"
	"analytiq/internal/sites"
	"analytiq/internal/testsupport"
	"analytiq/internal/trend"
)

func day(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02", value)
	require.NoError(t, err)
	return ts
}

func TestBuildReportCombinesDays(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.CreateTestSite(t, db, "site-1")
	store := events.NewStore(db)
	ctx := context.Background()

	day1 := &rollup.DailyRollup{
		SiteID: "site-1", Day: "2026-08-10",
		TotalVisitors: 6, UniqueVisitors: 6, TotalPageviews: 9,
		AvgSessionDurationSec: 120, AvgPagesPerSession: 1.5,
		BounceRatePercent: 50,
		TrafficSources:    map[string]int{"organic": 3, "direct": 1},
		Devices:           map[string]int{"desktop": 4},
		Browsers:          map[string]int{"Chrome": 4},
		Pages: map[string]rollup.PageRollup{
			"/":        {Views: 6, UniqueVisitors: 4, BounceRatePercent: 50, ExitRatePercent: 40},
			"/pricing": {Views: 3, UniqueVisitors: 2},
		},
		HourlyVisitors: map[string]int{"10:00": 5},
		GeoSamples: []rollup.GeoSample{
			{Country: "Germany", City: "Berlin"},
			{Country: "Germany", City: "Munich"},
		},
	}
	day2 := &rollup.DailyRollup{
		SiteID: "site-1", Day: "2026-08-11",
		TotalVisitors: 4, UniqueVisitors: 4, TotalPageviews: 5,
		AvgSessionDurationSec: 60, AvgPagesPerSession: 2.5,
		BounceRatePercent: 25,
		TrafficSources:    map[string]int{"organic": 2, "social": 1},
		Devices:           map[string]int{"desktop": 2, "mobile": 2},
		Browsers:          map[string]int{"Firefox": 2},
		Pages: map[string]rollup.PageRollup{
			"/":     {Views: 2, UniqueVisitors: 2, BounceRatePercent: 30, ExitRatePercent: 20},
			"/blog": {Views: 3, UniqueVisitors: 3},
		},
		HourlyVisitors: map[string]int{"10:00": 2, "11:00": 1},
		GeoSamples:     []rollup.GeoSample{{Country: "France", City: "Paris"}},
	}
	require.NoError(t, rollup.UpsertDailyRollup(ctx, db, day1))
	require.NoError(t, rollup.UpsertDailyRollup(ctx, db, day2))

	combiner := reports.NewCombiner(store, testsupport.GetLogger())
	report, err := combiner.BuildReport(ctx, "site-1", day(t, "2026-08-10"), day(t, "2026-08-11"))
	require.NoError(t, err)

	assert.Equal(t, 2, report.DaysWithData)
	assert.Equal(t, 10, report.Summary.TotalVisitors)
	assert.Equal(t, 14, report.Summary.TotalPageviews)

	// bounce rate back-calculated from per-day counts: (3 + 1) / 10 = 40%
	assert.Equal(t, 40.0, report.Summary.BounceRatePercent)

	assert.Equal(t, 90.0, report.Summary.AvgSessionDurationSec)
	assert.Equal(t, 2.0, report.Summary.AvgPagesPerSession)

	assert.Equal(t, map[string]int{"organic": 5, "direct": 1, "social": 1}, report.TrafficSources)
	assert.Equal(t, map[string]int{"desktop": 6, "mobile": 2}, report.Devices)
	assert.Equal(t, map[string]int{"Chrome": 4, "Firefox": 2}, report.Browsers)
	assert.Equal(t, map[string]int{"10:00": 7, "11:00": 1}, report.HourlyVisitors)
	assert.Equal(t, map[string]int{"Germany": 2, "France": 1}, report.Countries)

	// top lists rank by count, ties by first-seen order
	assert.Equal(t, []counter.Entry{
		{Key: "organic", Count: 5},
		{Key: "direct", Count: 1},
		{Key: "social", Count: 1},
	}, report.Top.TrafficSources)
	assert.Equal(t, []counter.Entry{
		{Key: "desktop", Count: 6},
		{Key: "mobile", Count: 2},
	}, report.Top.Devices)
	assert.Equal(t, []counter.Entry{
		{Key: "Chrome", Count: 4},
		{Key: "Firefox", Count: 2},
	}, report.Top.Browsers)

	require.NotEmpty(t, report.TopPages)
	top := report.TopPages[0]
	assert.Equal(t, "/", top.Path)
	assert.Equal(t, 8, top.Views)
	assert.Equal(t, 6, top.UniqueVisitors, "per-day cardinalities sum, they cannot be de-duplicated")
	// cross-day rates converge on the average of the two most recent days
	assert.Equal(t, 40.0, top.BounceRatePercent)
	assert.Equal(t, 30.0, top.ExitRatePercent)

	// remaining pages ranked by views, ties by first-seen order
	assert.Equal(t, "/pricing", report.TopPages[1].Path)
	assert.Equal(t, "/blog", report.TopPages[2].Path)

	require.NotNil(t, report.Trend)
	assert.Equal(t, trend.GranularityHalfDay, report.Trend.Granularity)
}

func TestBuildReportEmptyRange(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.CreateTestSite(t, db, "site-1")
	store := events.NewStore(db)

	combiner := reports.NewCombiner(store, testsupport.GetLogger())
	report, err := combiner.BuildReport(context.Background(), "site-1", day(t, "2026-08-10"), day(t, "2026-08-12"))
	require.NoError(t, err)

	assert.Equal(t, 0, report.DaysWithData)
	assert.Equal(t, 0, report.Summary.TotalVisitors)
	assert.Equal(t, 0.0, report.Summary.BounceRatePercent)
	assert.Empty(t, report.TopPages)
}

func TestBuildReportUnknownSite(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	store := events.NewStore(db)

	combiner := reports.NewCombiner(store, testsupport.GetLogger())
	_, err := combiner.BuildReport(context.Background(), "ghost", day(t, "2026-08-10"), day(t, "2026-08-11"))
	require.Error(t, err)
	assert.True(t, sites.IsNotFound(err))
}

func TestBuildReportVisitorTypes(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.CreateTestSite(t, db, "site-1")
	store := events.NewStore(db)
	ctx := context.Background()

	require.NoError(t, rollup.UpsertDailyRollup(ctx, db, &rollup.DailyRollup{
		SiteID: "site-1", Day: "2026-08-10", TotalVisitors: 3, TotalPageviews: 4,
	}))

	ts := day(t, "2026-08-10").Add(10 * time.Hour).Format(time.RFC3339)
	testsupport.CreateRawEvent(t, db, "site-1", "e1", "v1", "s1", events.EventTypePageView, ts,
		map[string]any{"url": "https://x.com/", "is_new_visitor": true})
	testsupport.CreateRawEvent(t, db, "site-1", "e2", "v2", "s2", events.EventTypePageView, ts,
		map[string]any{"url": "https://x.com/", "is_returning_visitor": true})
	// second event of v2 must not double-count
	testsupport.CreateRawEvent(t, db, "site-1", "e3", "v2", "s2", events.EventTypePageView, ts,
		map[string]any{"url": "https://x.com/blog", "is_returning_visitor": true})
	// unflagged visitor stays out of both counts
	testsupport.CreateRawEvent(t, db, "site-1", "e4", "v3", "s3", events.EventTypePageView, ts,
		map[string]any{"url": "https://x.com/"})
	// a visitor whose payload never parses is not classified either
	bad := events.RawEvent{
		EventID: "e5", SiteID: "site-1", TS: ts,
		EventType: events.EventTypePageView, Payload: "{not json", VisitorID: "v4", SessionID: "s4",
	}
	require.NoError(t, db.Create(&bad).Error)

	combiner := reports.NewCombiner(store, testsupport.GetLogger())
	report, err := combiner.BuildReport(ctx, "site-1", day(t, "2026-08-10"), day(t, "2026-08-10"))
	require.NoError(t, err)

	assert.Equal(t, 1, report.VisitorTypes.New)
	assert.Equal(t, 1, report.VisitorTypes.Returning)
	assert.Equal(t, 50.0, report.VisitorTypes.NewPercent)
	assert.Equal(t, 50.0, report.VisitorTypes.ReturningPercent)
}

func TestBuildReportJourneyCapKeepsContinuations(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.CreateTestSite(t, db, "site-1")
	store := events.NewStore(db)
	ctx := context.Background()

	day1Journeys := make(map[string][]rollup.JourneyStep, 50)
	for i := 0; i < 50; i++ {
		visitorID := fmt.Sprintf("v%02d", i)
		day1Journeys[visitorID] = []rollup.JourneyStep{{Page: "/", SessionID: visitorID}}
	}
	require.NoError(t, rollup.UpsertDailyRollup(ctx, db, &rollup.DailyRollup{
		SiteID: "site-1", Day: "2026-08-10", TotalVisitors: 50, TotalPageviews: 50,
		UserJourneys: day1Journeys,
	}))
	require.NoError(t, rollup.UpsertDailyRollup(ctx, db, &rollup.DailyRollup{
		SiteID: "site-1", Day: "2026-08-11", TotalVisitors: 2, TotalPageviews: 2,
		UserJourneys: map[string][]rollup.JourneyStep{
			"v00": {{Page: "/pricing", SessionID: "v00-b"}},
			"v99": {{Page: "/", SessionID: "v99"}},
		},
	}))

	combiner := reports.NewCombiner(store, testsupport.GetLogger())
	report, err := combiner.BuildReport(ctx, "site-1", day(t, "2026-08-10"), day(t, "2026-08-11"))
	require.NoError(t, err)

	assert.Len(t, report.UserJourneys, 50)
	assert.Len(t, report.UserJourneys["v00"], 2, "a tracked visitor keeps accumulating steps past the cap")
	assert.NotContains(t, report.UserJourneys, "v99")
}

func TestBuildReportDeadlineReturnsPartial(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.CreateTestSite(t, db, "site-1")
	store := events.NewStore(db)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, rollup.UpsertDailyRollup(context.Background(), db, &rollup.DailyRollup{
		SiteID: "site-1", Day: "2026-08-10", TotalVisitors: 1, TotalPageviews: 1,
	}))

	combiner := reports.NewCombiner(store, testsupport.GetLogger())
	report, err := combiner.BuildReport(ctx, "site-1", day(t, "2026-08-10"), day(t, "2026-08-10"))
	require.ErrorIs(t, err, reports.ErrPartialReport)
	require.NotNil(t, report)
	assert.True(t, report.Partial)
}
