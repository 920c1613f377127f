package rollup

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"analytiq/internal/events"
	"analytiq/internal/pkg/counter"
	"analytiq/internal/sites"
)

// GeoResolver turns coordinates or client IPs into locations. Lookups are
// best effort; a failing resolver never fails the aggregation.
type GeoResolver interface {
	ReverseGeocode(ctx context.Context, lat, long float64) (country, city string, err error)
	CountryFromIP(ip string) (country string, ok bool)
}

// Diagnostics reports per-event outcomes of one aggregation run.
type Diagnostics struct {
	Processed           int
	SkippedBadPayload   int
	SkippedBadTimestamp int
	GeoLookupFailures   int
}

// Skipped is the total number of events excluded from the rollup.
func (d Diagnostics) Skipped() int {
	return d.SkippedBadPayload + d.SkippedBadTimestamp
}

// Aggregator recomputes the daily rollup of a site from its raw and
// specialized events.
type Aggregator struct {
	store  *events.Store
	geo    GeoResolver
	logger *slog.Logger

	// Now is the clock used to pick the current day. Tests override it.
	Now func() time.Time
}

func NewAggregator(store *events.Store, geo GeoResolver, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		store:  store,
		geo:    geo,
		logger: logger,
		Now:    time.Now,
	}
}

// AggregateDay recomputes today's rollup for the site.
func (a *Aggregator) AggregateDay(ctx context.Context, siteID string) (Diagnostics, error) {
	return a.AggregateDayFor(ctx, siteID, events.DayKey(a.Now()))
}

// AggregateDayFor recomputes the rollup for one UTC day. The run is a full
// replace: it reads every event of the day and upserts a single row, so
// re-running it on unchanged input is a no-op in effect. A missing site is
// an error; a day with no events is not.
func (a *Aggregator) AggregateDayFor(ctx context.Context, siteID, day string) (Diagnostics, error) {
	var diag Diagnostics

	if _, err := sites.GetSiteOrNotFound(a.store.DB().WithContext(ctx), siteID); err != nil {
		return diag, err
	}

	raw, err := a.store.RawEventsForDay(ctx, siteID, day)
	if err != nil {
		return diag, fmt.Errorf("failed to load raw events for site %s day %s: %w", siteID, day, err)
	}
	if len(raw) == 0 {
		a.logger.Info("no events to aggregate", "site_id", siteID, "day", day)
		return diag, nil
	}

	acc := newDayAccumulator()
	for i := range raw {
		if err := ctx.Err(); err != nil {
			return diag, fmt.Errorf("aggregation canceled for site %s day %s: %w", siteID, day, err)
		}
		a.accumulateEvent(ctx, acc, &raw[i], &diag)
	}

	if err := a.accumulateSpecialized(ctx, acc, siteID, day); err != nil {
		return diag, err
	}

	rollup := acc.build(siteID, day)
	if err := UpsertDailyRollup(ctx, a.store.DB(), rollup); err != nil {
		return diag, err
	}

	a.logger.Info("daily rollup computed",
		"site_id", siteID,
		"day", day,
		"events_processed", diag.Processed,
		"events_skipped", diag.Skipped(),
		"visitors", rollup.UniqueVisitors,
		"pageviews", rollup.TotalPageviews)
	return diag, nil
}

type pageAccum struct {
	views     int
	visitors  map[string]struct{}
	loadTimes []float64
}

// dayAccumulator carries every counter and list built during the single pass
// over one day's events. Counter fields keep first-seen key order so top-N
// tie-breaking is stable across runs.
type dayAccumulator struct {
	visitors  map[string]struct{}
	pageviews int

	trafficSources *counter.Counter
	devices        *counter.Counter
	browsers       *counter.Counter
	oses           *counter.Counter
	campaigns      *counter.Counter
	screens        *counter.Counter
	entryPages     *counter.Counter
	searchTerms    *counter.Counter
	customEvents   *counter.Counter

	// hourly keeps visitor-id sets per hour, collapsed to cardinalities at
	// persistence time
	hourly   map[string]map[string]struct{}
	timeline []TimelineEntry

	geoSamples []GeoSample
	referrers  []ReferrerDetail

	journeys     map[string][]JourneyStep
	journeyOrder []string

	clickHeatmap    map[string]map[string]int
	scrollTracking  map[string][]float64
	loadPerformance map[string][]float64

	downlink []float64
	rtt      []float64

	pages     map[string]*pageAccum
	pageOrder []string

	timeSamplesByPage  map[string][]float64
	scrollDepthsByPage map[string][]float64
	clicksByPage       map[string][]int

	sessionEvents []SessionEvent

	perfSummary PerformanceSummary
	engSummary  EngagementSummary
}

func newDayAccumulator() *dayAccumulator {
	return &dayAccumulator{
		visitors:           make(map[string]struct{}),
		trafficSources:     counter.New(),
		devices:            counter.New(),
		browsers:           counter.New(),
		oses:               counter.New(),
		campaigns:          counter.New(),
		screens:            counter.New(),
		entryPages:         counter.New(),
		searchTerms:        counter.New(),
		customEvents:       counter.New(),
		hourly:             make(map[string]map[string]struct{}),
		journeys:           make(map[string][]JourneyStep),
		clickHeatmap:       make(map[string]map[string]int),
		scrollTracking:     make(map[string][]float64),
		loadPerformance:    make(map[string][]float64),
		pages:              make(map[string]*pageAccum),
		timeSamplesByPage:  make(map[string][]float64),
		scrollDepthsByPage: make(map[string][]float64),
		clicksByPage:       make(map[string][]int),
	}
}

func (acc *dayAccumulator) page(path string) *pageAccum {
	pd, ok := acc.pages[path]
	if !ok {
		pd = &pageAccum{visitors: make(map[string]struct{})}
		acc.pages[path] = pd
		acc.pageOrder = append(acc.pageOrder, path)
	}
	return pd
}

func (a *Aggregator) accumulateEvent(ctx context.Context, acc *dayAccumulator, ev *events.RawEvent, diag *Diagnostics) {
	payload, err := events.ParsePayload(ev.Payload)
	if err != nil {
		diag.SkippedBadPayload++
		a.logger.Debug("skipping event with invalid payload", "event_id", ev.EventID, "error", err)
		return
	}

	eventTime, terr := events.ParseEventTime(ev.TS)
	timeOK := terr == nil
	if timeOK {
		diag.Processed++
	} else {
		diag.SkippedBadTimestamp++
		a.logger.Debug("event timestamp unparseable, excluded from time series", "event_id", ev.EventID, "ts", ev.TS)
	}

	visitorID := ev.VisitorID
	if visitorID == "" {
		visitorID = "unknown"
	}
	acc.visitors[visitorID] = struct{}{}

	path := PathFromURL(payload.URL)
	acc.sessionEvents = append(acc.sessionEvents, SessionEvent{
		SessionID: ev.SessionID,
		EventType: ev.EventType,
		Path:      path,
		Time:      eventTime,
		TimeOK:    timeOK,
	})

	if timeOK {
		hour := fmt.Sprintf("%02d:00", eventTime.Hour())
		if acc.hourly[hour] == nil {
			acc.hourly[hour] = make(map[string]struct{})
		}
		acc.hourly[hour][visitorID] = struct{}{}
		acc.timeline = append(acc.timeline, TimelineEntry{
			Timestamp: ev.TS,
			VisitorID: visitorID,
			SessionID: ev.SessionID,
			EventType: ev.EventType,
			Hour:      hour,
		})
	}

	switch ev.EventType {
	case events.EventTypePageView:
		a.accumulatePageview(ctx, acc, ev, &payload, visitorID, path)
	case events.EventTypeClick:
		page := payload.Page
		if page == "" {
			page = "/"
		}
		var x, y float64
		if payload.X != nil {
			x = *payload.X
		}
		if payload.Y != nil {
			y = *payload.Y
		}
		if acc.clickHeatmap[page] == nil {
			acc.clickHeatmap[page] = make(map[string]int)
		}
		acc.clickHeatmap[page][coordKey(x, y)]++
	case events.EventTypeScroll:
		page := payload.Page
		if page == "" {
			page = "/"
		}
		if payload.Depth != nil {
			acc.scrollTracking[page] = append(acc.scrollTracking[page], *payload.Depth)
		}
	}
}

// coordKey renders click coordinates verbatim, whole pixels without a
// trailing decimal point.
func coordKey(x, y float64) string {
	return strconv.FormatFloat(x, 'f', -1, 64) + "," + strconv.FormatFloat(y, 'f', -1, 64)
}

func (a *Aggregator) accumulatePageview(ctx context.Context, acc *dayAccumulator, ev *events.RawEvent, payload *events.Payload, visitorID, path string) {
	acc.pageviews++

	pd := acc.page(path)
	pd.views++
	pd.visitors[visitorID] = struct{}{}

	device := payload.DeviceType
	if device == "" {
		device = "desktop"
	}
	acc.devices.Inc(device)

	browser, os := ParseUserAgent(payload.UserAgent)
	acc.browsers.Inc(browser)
	acc.oses.Inc(os)

	screen := payload.Screen
	if screen == "" {
		screen = "1920x1080"
	}
	acc.screens.Inc(screen)

	acc.trafficSources.Inc(TrafficSource(payload.Referrer, payload.HasUTM()))
	acc.campaigns.Inc(CampaignKey(payload))

	acc.geoSamples = append(acc.geoSamples, a.geoSample(ctx, payload, ev.TS))

	if payload.Referrer != "" {
		acc.referrers = append(acc.referrers, ReferrerDetail{
			Referrer:    payload.Referrer,
			VisitorID:   visitorID,
			Timestamp:   ev.TS,
			LandingPage: path,
		})
	}

	if _, seen := acc.journeys[visitorID]; !seen {
		acc.journeyOrder = append(acc.journeyOrder, visitorID)
	}
	acc.journeys[visitorID] = append(acc.journeys[visitorID], JourneyStep{
		Page:      path,
		Timestamp: ev.TS,
		SessionID: ev.SessionID,
	})
	if len(acc.journeys[visitorID]) == 1 {
		acc.entryPages.Inc(path)
	}

	if payload.LoadEventMs != nil {
		acc.loadPerformance[path] = append(acc.loadPerformance[path], *payload.LoadEventMs)
		pd.loadTimes = append(pd.loadTimes, *payload.LoadEventMs)
	}
	if payload.DownlinkMbps != nil {
		acc.downlink = append(acc.downlink, *payload.DownlinkMbps)
	}
	if payload.RTTMs != nil {
		acc.rtt = append(acc.rtt, *payload.RTTMs)
	}
}

// geoSample builds the bounded geo point for a pageview. A sample is always
// appended so the geo series stays parallel to pageviews: reported
// coordinates win, then a reverse geocode, then a GeoIP country from the
// client IP, then an Unknown placeholder.
func (a *Aggregator) geoSample(ctx context.Context, payload *events.Payload, ts string) GeoSample {
	sample := GeoSample{Country: "Unknown", City: "Unknown", Timestamp: ts}

	if g := payload.Geo; g != nil && g.Lat != 0 && g.Long != 0 {
		sample.Lat = g.Lat
		sample.Long = g.Long
		if g.Country != "" {
			sample.Country = g.Country
		}
		if g.City != "" {
			sample.City = g.City
		}
		// clients that fail to resolve their own position report the
		// literal "Unknown"
		if (sample.Country == "Unknown" || sample.City == "Unknown") && a.geo != nil {
			country, city, err := a.geo.ReverseGeocode(ctx, g.Lat, g.Long)
			if err != nil {
				a.logger.Debug("reverse geocode failed", "lat", g.Lat, "long", g.Long, "error", err)
			} else {
				if country != "" {
					sample.Country = country
				}
				if city != "" {
					sample.City = city
				}
			}
		}
		return sample
	}

	if payload.ClientIP != "" && a.geo != nil {
		if country, ok := a.geo.CountryFromIP(payload.ClientIP); ok {
			sample.Country = country
		}
	}
	return sample
}

func (a *Aggregator) accumulateSpecialized(ctx context.Context, acc *dayAccumulator, siteID, day string) error {
	perf, err := a.store.PerformanceEventsForDay(ctx, siteID, day)
	if err != nil {
		return fmt.Errorf("failed to load performance events for site %s day %s: %w", siteID, day, err)
	}
	acc.perfSummary = summarizePerformance(perf)
	for _, p := range perf {
		path := PathFromURL(p.URL)
		sample := p.ServerResponseTime
		if sample == nil {
			sample = p.LoadEventEnd
		}
		if sample != nil {
			acc.page(path).loadTimes = append(acc.page(path).loadTimes, *sample)
		}
	}

	eng, err := a.store.EngagementEventsForDay(ctx, siteID, day)
	if err != nil {
		return fmt.Errorf("failed to load engagement events for site %s day %s: %w", siteID, day, err)
	}
	sessions := sessionCountOf(acc)
	acc.engSummary = summarizeEngagement(eng, sessions)
	for _, e := range eng {
		path := PathFromURL(e.URL)
		if e.TimeOnPageSec != nil {
			acc.timeSamplesByPage[path] = append(acc.timeSamplesByPage[path], *e.TimeOnPageSec)
		}
		if e.ScrollDepthPercent != nil {
			acc.scrollDepthsByPage[path] = append(acc.scrollDepthsByPage[path], *e.ScrollDepthPercent)
		}
		if e.ClicksCount != nil {
			acc.clicksByPage[path] = append(acc.clicksByPage[path], *e.ClicksCount)
		}
	}

	searches, err := a.store.SearchEventsForDay(ctx, siteID, day)
	if err != nil {
		return fmt.Errorf("failed to load search events for site %s day %s: %w", siteID, day, err)
	}
	for _, s := range searches {
		if s.SearchTerm != "" {
			acc.searchTerms.Inc(s.SearchTerm)
		}
	}

	custom, err := a.store.CustomEventsForDay(ctx, siteID, day)
	if err != nil {
		return fmt.Errorf("failed to load custom events for site %s day %s: %w", siteID, day, err)
	}
	for _, c := range custom {
		if c.EventName != "" {
			acc.customEvents.Inc(c.EventName)
		}
	}

	return nil
}

func sessionCountOf(acc *dayAccumulator) int {
	seen := make(map[string]struct{})
	for _, ev := range acc.sessionEvents {
		id := ev.SessionID
		if id == "" {
			id = "unknown"
		}
		seen[id] = struct{}{}
	}
	return len(seen)
}

func summarizePerformance(perf []events.PerformanceEvent) PerformanceSummary {
	var fcp, lcp, cls, fid, srt []float64
	var totalResources, cachedResources int
	for _, p := range perf {
		if p.FirstContentfulPaint != nil {
			fcp = append(fcp, *p.FirstContentfulPaint)
		}
		if p.LargestContentfulPaint != nil {
			lcp = append(lcp, *p.LargestContentfulPaint)
		}
		if p.CumulativeLayoutShift != nil {
			cls = append(cls, *p.CumulativeLayoutShift)
		}
		if p.FirstInputDelay != nil {
			fid = append(fid, *p.FirstInputDelay)
		}
		if p.ServerResponseTime != nil {
			srt = append(srt, *p.ServerResponseTime)
		}
		if p.TotalResources != nil {
			totalResources += *p.TotalResources
		}
		if p.CachedResources != nil {
			cachedResources += *p.CachedResources
		}
	}

	var cdnRatio float64
	if totalResources > 0 {
		cdnRatio = float64(cachedResources) / float64(totalResources) * 100
	}

	return PerformanceSummary{
		FirstContentfulPaintAvgMs:   Round1(mean(fcp)),
		LargestContentfulPaintAvgMs: Round1(mean(lcp)),
		CumulativeLayoutShiftAvg:    Round1(mean(cls)),
		FirstInputDelayAvgMs:        Round1(mean(fid)),
		ServerResponseTimeAvgMs:     Round1(mean(srt)),
		CDNCacheHitRatioPercent:     Round1(cdnRatio),
	}
}

// summarizeEngagement averages the sampled metrics over their own sample
// counts, except clicks and form interactions which are spread over the
// day's session count.
func summarizeEngagement(eng []events.EngagementEvent, sessions int) EngagementSummary {
	var scroll, idle, video []float64
	var clicks, formInteractions int
	for _, e := range eng {
		if e.ScrollDepthPercent != nil {
			scroll = append(scroll, *e.ScrollDepthPercent)
		}
		if e.IdleTimeSec != nil {
			idle = append(idle, *e.IdleTimeSec)
		}
		if e.VideoWatchTimeSec != nil {
			video = append(video, *e.VideoWatchTimeSec)
		}
		if e.ClicksCount != nil {
			clicks += *e.ClicksCount
		}
		if (e.FormStarted != nil && *e.FormStarted) || (e.FormCompleted != nil && *e.FormCompleted) {
			formInteractions++
		}
	}

	var avgClicks, avgForms float64
	if sessions > 0 {
		avgClicks = float64(clicks) / float64(sessions)
		avgForms = float64(formInteractions) / float64(sessions)
	}

	return EngagementSummary{
		AvgScrollDepthPercent: Round1(mean(scroll)),
		AvgClicksPerSession:   Round1(avgClicks),
		AvgIdleTimeSec:        Round1(mean(idle)),
		AvgFormInteractions:   Round1(avgForms),
		AvgVideoWatchTimeSec:  Round1(mean(video)),
	}
}

// build assembles the persisted rollup, applying the size caps and the
// per-page derived rates.
func (acc *dayAccumulator) build(siteID, day string) *DailyRollup {
	set := ReconstructSessions(acc.sessionEvents)
	bouncesByPath := set.BouncesByPath()
	exitsByPath := set.ExitsByPath()

	pages := make(map[string]PageRollup, len(acc.pages))
	for _, path := range acc.pageOrder {
		pd := acc.pages[path]
		pr := PageRollup{
			Views:          pd.views,
			UniqueVisitors: len(pd.visitors),
			AvgLoadTimeMs:  Round1(mean(pd.loadTimes)),
			TimeSamples:    acc.timeSamplesByPage[path],
			ScrollDepths:   acc.scrollDepthsByPage[path],
			Clicks:         acc.clicksByPage[path],
		}
		if pd.views > 0 {
			pr.BounceRatePercent = Round1(float64(bouncesByPath[path]) / float64(pd.views) * 100)
			pr.ExitRatePercent = Round1(float64(exitsByPath[path]) / float64(pd.views) * 100)
		}
		pages[path] = pr
	}

	pageBounce := make(map[string]float64, len(pages))
	pageExit := make(map[string]float64, len(pages))
	for path, pr := range pages {
		pageBounce[path] = pr.BounceRatePercent
		pageExit[path] = pr.ExitRatePercent
	}

	journeys := make(map[string][]JourneyStep, MaxJourneyVisitors)
	for _, visitorID := range acc.journeyOrder {
		if len(journeys) >= MaxJourneyVisitors {
			break
		}
		journeys[visitorID] = acc.journeys[visitorID]
	}

	hourly := make(map[string]int, len(acc.hourly))
	for hour, visitors := range acc.hourly {
		hourly[hour] = len(visitors)
	}

	geoSamples := acc.geoSamples
	if len(geoSamples) > MaxGeoSamples {
		geoSamples = geoSamples[len(geoSamples)-MaxGeoSamples:]
	}
	timeline := acc.timeline
	if len(timeline) > MaxTimelineEvents {
		timeline = timeline[:MaxTimelineEvents]
	}
	referrers := acc.referrers
	if len(referrers) > MaxReferrerDetails {
		referrers = referrers[:MaxReferrerDetails]
	}

	return &DailyRollup{
		SiteID: siteID,
		Day:    day,

		TotalVisitors:         len(acc.visitors),
		UniqueVisitors:        len(acc.visitors),
		TotalPageviews:        acc.pageviews,
		AvgSessionDurationSec: Round1(set.AvgDurationSec()),
		AvgPagesPerSession:    Round1(set.AvgPagesPerSession()),
		BounceRatePercent:     Round1(set.BounceRatePercent()),

		TrafficSources:    acc.trafficSources.ToMap(),
		Devices:           acc.devices.ToMap(),
		Browsers:          acc.browsers.ToMap(),
		OperatingSystems:  acc.oses.ToMap(),
		UTMCampaigns:      acc.campaigns.ToMap(),
		SearchTerms:       acc.searchTerms.ToMap(),
		CustomEvents:      acc.customEvents.ToMap(),
		ScreenResolutions: acc.screens.ToMap(),

		Performance: acc.perfSummary,
		Engagement:  acc.engSummary,

		DownlinkValues: acc.downlink,
		RTTValues:      acc.rtt,

		GeoSamples:      geoSamples,
		HourlyVisitors:  hourly,
		Timeline:        timeline,
		ReferrerDetails: referrers,
		UserJourneys:    journeys,

		Advanced: AdvancedMetrics{
			ClickHeatmap:    acc.clickHeatmap,
			ScrollTracking:  acc.scrollTracking,
			LoadPerformance: acc.loadPerformance,
			EntryPages:      acc.entryPages.ToMap(),
			ExitPages:       exitsByPath,
			PageBounce:      pageBounce,
			PageExit:        pageExit,
		},
		Pages: pages,
	}
}
