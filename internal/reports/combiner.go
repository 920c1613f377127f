package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"analytiq/internal/events"
	"analytiq/internal/pkg/counter"
	"analytiq/internal/rollup"
	"analytiq/internal/sites"
	"analytiq/internal/trend"
)

// ErrPartialReport marks a report that was cut short by the caller's
// deadline. The returned report still carries everything combined so far.
var ErrPartialReport = errors.New("report truncated by deadline")

// Combiner builds multi-day reports from persisted daily rollups.
type Combiner struct {
	store  *events.Store
	logger *slog.Logger
}

func NewCombiner(store *events.Store, logger *slog.Logger) *Combiner {
	return &Combiner{store: store, logger: logger}
}

// mergedPage accumulates one path across days. Per-day unique visitor counts
// are already collapsed to cardinalities, so their union can only be
// approximated by summing.
type mergedPage struct {
	views        int
	visitors     int
	loadWeighted float64
	loadViews    int
	timeSamples  []float64
	scrollDepths []float64
	clicks       int
	bounceRate   float64
	exitRate     float64
	rateSeen     bool
}

// BuildReport combines all rollups of the inclusive date range into one
// report. A range with no aggregated days yields an empty report, not an
// error. When the context deadline expires mid-combine the report built so
// far is returned flagged Partial together with ErrPartialReport.
func (c *Combiner) BuildReport(ctx context.Context, siteID string, start, end time.Time) (*Report, error) {
	startDay := dayString(start)
	endDay := dayString(end)
	if endDay < startDay {
		return nil, fmt.Errorf("invalid report range: end %s before start %s", endDay, startDay)
	}

	report := &Report{
		SiteID:    siteID,
		StartDate: startDay,
		EndDate:   endDay,
	}

	if _, err := sites.GetSiteOrNotFound(c.store.DB().WithContext(ctx), siteID); err != nil {
		if ctx.Err() != nil {
			report.Partial = true
			return report, ErrPartialReport
		}
		return nil, err
	}

	rollups, err := rollup.RollupsInRange(ctx, c.store.DB(), siteID, startDay, endDay)
	if err != nil {
		if ctx.Err() != nil {
			report.Partial = true
			return report, ErrPartialReport
		}
		return nil, err
	}
	report.DaysWithData = len(rollups)

	trafficSources := counter.New()
	devices := counter.New()
	browsers := counter.New()
	oses := counter.New()
	campaigns := counter.New()
	screens := counter.New()
	searchTerms := counter.New()
	customEvents := counter.New()
	countries := counter.New()
	entryPages := counter.New()
	exitPages := counter.New()

	hourly := make(map[string]int)
	pages := make(map[string]*mergedPage)
	var pageOrder []string

	var totalBounces float64
	var durations, pagesPerSession []float64
	var downlink, rtt []float64
	var perfDays []rollup.PerformanceSummary
	var engDays []rollup.EngagementSummary

	var geoSamples []rollup.GeoSample
	var timeline []rollup.TimelineEntry
	var referrers []rollup.ReferrerDetail
	journeys := make(map[string][]rollup.JourneyStep)

	clickHeatmap := make(map[string]map[string]int)
	scrollTracking := make(map[string][]float64)
	loadPerformance := make(map[string][]float64)
	pageBounce := make(map[string]float64)
	pageExit := make(map[string]float64)

	for i := range rollups {
		if err := ctx.Err(); err != nil {
			c.logger.Warn("report build interrupted, returning partial data",
				"site_id", siteID, "days_combined", i, "days_total", len(rollups))
			report.Partial = true
			break
		}
		r := &rollups[i]

		report.Summary.TotalVisitors += r.TotalVisitors
		report.Summary.TotalPageviews += r.TotalPageviews
		totalBounces += r.BounceRatePercent / 100 * float64(r.TotalVisitors)
		if r.AvgSessionDurationSec > 0 {
			durations = append(durations, r.AvgSessionDurationSec)
		}
		if r.AvgPagesPerSession > 0 {
			pagesPerSession = append(pagesPerSession, r.AvgPagesPerSession)
		}

		trafficSources.AddMap(r.TrafficSources)
		devices.AddMap(r.Devices)
		browsers.AddMap(r.Browsers)
		oses.AddMap(r.OperatingSystems)
		campaigns.AddMap(r.UTMCampaigns)
		screens.AddMap(r.ScreenResolutions)
		searchTerms.AddMap(r.SearchTerms)
		customEvents.AddMap(r.CustomEvents)
		entryPages.AddMap(r.Advanced.EntryPages)
		exitPages.AddMap(r.Advanced.ExitPages)

		for hour, n := range r.HourlyVisitors {
			hourly[hour] += n
		}

		for _, sample := range r.GeoSamples {
			countries.Inc(sample.Country)
		}
		geoSamples = append(geoSamples, r.GeoSamples...)
		timeline = append(timeline, r.Timeline...)
		referrers = append(referrers, r.ReferrerDetails...)
		for _, visitorID := range sortedPaths(r.UserJourneys) {
			// the cap limits how many visitors are tracked, later-day
			// continuations of a tracked visitor always append
			steps, tracked := journeys[visitorID]
			if !tracked && len(journeys) >= maxReportJourneys {
				continue
			}
			journeys[visitorID] = append(steps, r.UserJourneys[visitorID]...)
		}

		downlink = append(downlink, r.DownlinkValues...)
		rtt = append(rtt, r.RTTValues...)
		perfDays = append(perfDays, r.Performance)
		engDays = append(engDays, r.Engagement)

		mergePages(pages, &pageOrder, r.Pages)
		mergeAdvanced(clickHeatmap, scrollTracking, loadPerformance, pageBounce, pageExit, &r.Advanced)
	}

	totalVisitors := report.Summary.TotalVisitors
	if totalVisitors > 0 {
		report.Summary.BounceRatePercent = round1(totalBounces / float64(totalVisitors) * 100)
	}
	report.Summary.AvgSessionDurationSec = round1(mean(durations))
	report.Summary.AvgPagesPerSession = round1(mean(pagesPerSession))

	report.TrafficSources = trafficSources.ToMap()
	report.Devices = devices.ToMap()
	report.Browsers = browsers.ToMap()
	report.OperatingSystems = oses.ToMap()
	report.UTMCampaigns = campaigns.ToMap()
	report.ScreenResolutions = screens.ToMap()
	report.SearchTerms = searchTerms.ToMap()
	report.CustomEvents = customEvents.ToMap()
	report.Countries = countries.ToMap()
	report.HourlyVisitors = hourly

	report.Top = TopLists{
		TrafficSources:    trafficSources.TopN(topTrafficSources),
		Devices:           devices.TopN(topDevices),
		Browsers:          browsers.TopN(topBrowsers),
		OperatingSystems:  oses.TopN(topOperatingSystems),
		UTMCampaigns:      campaigns.TopN(topUTMCampaigns),
		ScreenResolutions: screens.TopN(topScreenResolutions),
		SearchTerms:       searchTerms.TopN(topSearchTerms),
		CustomEvents:      customEvents.TopN(topCustomEvents),
	}

	report.Performance = averagePerformance(perfDays)
	report.Engagement = averageEngagement(engDays)
	report.Technology = Technology{
		AvgDownlinkMbps: round1(mean(downlink)),
		AvgRTTMs:        roundMs(mean(rtt)),
	}

	if len(geoSamples) > maxReportGeoSamples {
		geoSamples = geoSamples[len(geoSamples)-maxReportGeoSamples:]
	}
	report.GeoSamples = geoSamples
	if len(timeline) > maxReportTimeline {
		timeline = timeline[len(timeline)-maxReportTimeline:]
	}
	report.Timeline = timeline
	if len(referrers) > maxReportReferrers {
		referrers = referrers[len(referrers)-maxReportReferrers:]
	}
	report.ReferrerDetails = referrers
	report.UserJourneys = journeys

	report.TopPages = topPages(pages, pageOrder)
	report.Advanced = CombinedAdvanced{
		ClickHeatmap:    clickHeatmap,
		ScrollTracking:  scrollTracking,
		LoadPerformance: loadPerformance,
		EntryPages:      entryPages.ToMap(),
		ExitPages:       exitPages.ToMap(),
		PageBounce:      pageBounce,
		PageExit:        pageExit,
	}

	if report.Partial {
		return report, ErrPartialReport
	}

	if err := c.addVisitorTypes(ctx, report, siteID, startDay, endDay); err != nil {
		if ctx.Err() != nil {
			report.Partial = true
			return report, ErrPartialReport
		}
		return nil, err
	}

	series, err := trend.Compute(ctx, c.store, siteID, start, end, 0)
	if err != nil {
		if ctx.Err() != nil {
			report.Partial = true
			return report, ErrPartialReport
		}
		return nil, err
	}
	report.Trend = series

	return report, nil
}

// mergePages folds one day's page rollups into the running merge. Day maps
// are iterated in sorted key order so the first-seen ordering used for
// top-pages tie-breaking is identical across runs.
func mergePages(merged map[string]*mergedPage, order *[]string, day map[string]rollup.PageRollup) {
	for _, path := range sortedPaths(day) {
		pr := day[path]
		mp, ok := merged[path]
		if !ok {
			mp = &mergedPage{}
			merged[path] = mp
			*order = append(*order, path)
		}
		mp.views += pr.Views
		mp.visitors += pr.UniqueVisitors
		if pr.AvgLoadTimeMs > 0 && pr.Views > 0 {
			mp.loadWeighted += pr.AvgLoadTimeMs * float64(pr.Views)
			mp.loadViews += pr.Views
		}
		mp.timeSamples = append(mp.timeSamples, pr.TimeSamples...)
		mp.scrollDepths = append(mp.scrollDepths, pr.ScrollDepths...)
		for _, n := range pr.Clicks {
			mp.clicks += n
		}
		// cross-day rates converge on the running average of the two most
		// recent days
		if mp.rateSeen {
			mp.bounceRate = (mp.bounceRate + pr.BounceRatePercent) / 2
			mp.exitRate = (mp.exitRate + pr.ExitRatePercent) / 2
		} else {
			mp.bounceRate = pr.BounceRatePercent
			mp.exitRate = pr.ExitRatePercent
			mp.rateSeen = true
		}
	}
}

func mergeAdvanced(
	clickHeatmap map[string]map[string]int,
	scrollTracking map[string][]float64,
	loadPerformance map[string][]float64,
	pageBounce, pageExit map[string]float64,
	day *rollup.AdvancedMetrics,
) {
	for _, page := range sortedPaths(day.ClickHeatmap) {
		if clickHeatmap[page] == nil {
			clickHeatmap[page] = make(map[string]int)
		}
		for bucket, n := range day.ClickHeatmap[page] {
			clickHeatmap[page][bucket] += n
		}
	}
	for _, page := range sortedPaths(day.ScrollTracking) {
		scrollTracking[page] = append(scrollTracking[page], day.ScrollTracking[page]...)
	}
	for _, page := range sortedPaths(day.LoadPerformance) {
		loadPerformance[page] = append(loadPerformance[page], day.LoadPerformance[page]...)
	}
	for _, page := range sortedPaths(day.PageBounce) {
		if prev, ok := pageBounce[page]; ok {
			pageBounce[page] = (prev + day.PageBounce[page]) / 2
		} else {
			pageBounce[page] = day.PageBounce[page]
		}
	}
	for _, page := range sortedPaths(day.PageExit) {
		if prev, ok := pageExit[page]; ok {
			pageExit[page] = (prev + day.PageExit[page]) / 2
		} else {
			pageExit[page] = day.PageExit[page]
		}
	}
}

// topPages ranks merged pages by views, ties broken by first-merge order.
func topPages(pages map[string]*mergedPage, order []string) []PageStat {
	ranked := make([]string, len(order))
	copy(ranked, order)
	sort.SliceStable(ranked, func(i, j int) bool {
		return pages[ranked[i]].views > pages[ranked[j]].views
	})
	if len(ranked) > topPagesLimit {
		ranked = ranked[:topPagesLimit]
	}

	out := make([]PageStat, 0, len(ranked))
	for _, path := range ranked {
		mp := pages[path]
		stat := PageStat{
			Path:              path,
			Views:             mp.views,
			UniqueVisitors:    mp.visitors,
			AvgTimeOnPageSec:  round1(mean(mp.timeSamples)),
			AvgScrollDepth:    round1(mean(mp.scrollDepths)),
			BounceRatePercent: round1(mp.bounceRate),
			ExitRatePercent:   round1(mp.exitRate),
		}
		if mp.loadViews > 0 {
			stat.AvgLoadTimeMs = roundMs(mp.loadWeighted / float64(mp.loadViews))
		}
		out = append(out, stat)
	}
	return out
}

// addVisitorTypes rescans the raw events of the range and classifies each
// distinct visitor by the flags of their first parseable event. Visitors
// flagged neither new nor returning stay out of both counts and out of the
// percentage denominator.
func (c *Combiner) addVisitorTypes(ctx context.Context, report *Report, siteID, startDay, endDay string) error {
	seen := make(map[string]struct{})
	err := c.store.ScanRawEventsInRange(ctx, siteID, startDay, endDay, 0, func(batch []events.RawEvent) error {
		for i := range batch {
			ev := &batch[i]
			payload, err := events.ParsePayload(ev.Payload)
			if err != nil {
				continue
			}
			visitorID := ev.VisitorID
			if visitorID == "" {
				visitorID = "unknown"
			}
			if _, dup := seen[visitorID]; dup {
				continue
			}
			seen[visitorID] = struct{}{}

			switch {
			case payload.IsNewVisitor:
				report.VisitorTypes.New++
			case payload.IsReturningVisitor:
				report.VisitorTypes.Returning++
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to classify visitors for site %s: %w", siteID, err)
	}

	if tracked := report.VisitorTypes.New + report.VisitorTypes.Returning; tracked > 0 {
		report.VisitorTypes.NewPercent = round1(float64(report.VisitorTypes.New) / float64(tracked) * 100)
		report.VisitorTypes.ReturningPercent = round1(float64(report.VisitorTypes.Returning) / float64(tracked) * 100)
	}
	return nil
}

func averagePerformance(days []rollup.PerformanceSummary) rollup.PerformanceSummary {
	if len(days) == 0 {
		return rollup.PerformanceSummary{}
	}
	var out rollup.PerformanceSummary
	for _, d := range days {
		out.FirstContentfulPaintAvgMs += d.FirstContentfulPaintAvgMs
		out.LargestContentfulPaintAvgMs += d.LargestContentfulPaintAvgMs
		out.CumulativeLayoutShiftAvg += d.CumulativeLayoutShiftAvg
		out.FirstInputDelayAvgMs += d.FirstInputDelayAvgMs
		out.ServerResponseTimeAvgMs += d.ServerResponseTimeAvgMs
		out.CDNCacheHitRatioPercent += d.CDNCacheHitRatioPercent
	}
	n := float64(len(days))
	out.FirstContentfulPaintAvgMs = roundMs(out.FirstContentfulPaintAvgMs / n)
	out.LargestContentfulPaintAvgMs = roundMs(out.LargestContentfulPaintAvgMs / n)
	out.CumulativeLayoutShiftAvg = round1(out.CumulativeLayoutShiftAvg / n)
	out.FirstInputDelayAvgMs = roundMs(out.FirstInputDelayAvgMs / n)
	out.ServerResponseTimeAvgMs = roundMs(out.ServerResponseTimeAvgMs / n)
	out.CDNCacheHitRatioPercent = round1(out.CDNCacheHitRatioPercent / n)
	return out
}

func averageEngagement(days []rollup.EngagementSummary) rollup.EngagementSummary {
	if len(days) == 0 {
		return rollup.EngagementSummary{}
	}
	var out rollup.EngagementSummary
	for _, d := range days {
		out.AvgScrollDepthPercent += d.AvgScrollDepthPercent
		out.AvgClicksPerSession += d.AvgClicksPerSession
		out.AvgIdleTimeSec += d.AvgIdleTimeSec
		out.AvgFormInteractions += d.AvgFormInteractions
		out.AvgVideoWatchTimeSec += d.AvgVideoWatchTimeSec
	}
	n := float64(len(days))
	out.AvgScrollDepthPercent = round1(out.AvgScrollDepthPercent / n)
	out.AvgClicksPerSession = round1(out.AvgClicksPerSession / n)
	out.AvgIdleTimeSec = round1(out.AvgIdleTimeSec / n)
	out.AvgFormInteractions = round1(out.AvgFormInteractions / n)
	out.AvgVideoWatchTimeSec = round1(out.AvgVideoWatchTimeSec / n)
	return out
}
