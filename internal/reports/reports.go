// Package reports combines a range of daily rollups into one multi-day
// report. Scalars are summed, averages recomputed from what the rollups
// preserved, and counter maps merged with stable first-seen ordering so
// top-N lists do not jitter between identical runs.
package reports

import (
	"math"
	"sort"
	"time"

	"analytiq/internal/pkg/counter"
	"analytiq/internal/rollup"
	"analytiq/internal/trend"
)

// Summary holds the headline figures of a report.
type Summary struct {
	TotalVisitors         int     `json:"total_visitors"`
	TotalPageviews        int     `json:"total_pageviews"`
	AvgSessionDurationSec float64 `json:"avg_session_duration_sec"`
	AvgPagesPerSession    float64 `json:"avg_pages_per_session"`
	BounceRatePercent     float64 `json:"bounce_rate_percent"`
}

// Technology summarizes client network quality over the range.
type Technology struct {
	AvgDownlinkMbps float64 `json:"avg_downlink_mbps"`
	AvgRTTMs        float64 `json:"avg_rtt_ms"`
}

// VisitorTypes splits the range's flagged visitors into new and returning.
// Visitors carrying neither flag are excluded from the counts and from the
// percentage denominator.
type VisitorTypes struct {
	New              int     `json:"new"`
	Returning        int     `json:"returning"`
	NewPercent       float64 `json:"new_percent"`
	ReturningPercent float64 `json:"returning_percent"`
}

// TopLists ranks each counter field's busiest keys, highest count first with
// ties broken by first-seen order, sized for the widgets that render them.
type TopLists struct {
	TrafficSources    []counter.Entry `json:"traffic_sources"`
	Devices           []counter.Entry `json:"devices"`
	Browsers          []counter.Entry `json:"browsers"`
	OperatingSystems  []counter.Entry `json:"operating_systems"`
	UTMCampaigns      []counter.Entry `json:"utm_campaigns"`
	ScreenResolutions []counter.Entry `json:"screen_resolutions"`
	SearchTerms       []counter.Entry `json:"search_terms"`
	CustomEvents      []counter.Entry `json:"custom_events"`
}

// PageStat is one entry of the top-pages list.
type PageStat struct {
	Path              string  `json:"path"`
	Views             int     `json:"views"`
	UniqueVisitors    int     `json:"unique_visitors"`
	AvgLoadTimeMs     float64 `json:"avg_load_time_ms"`
	AvgTimeOnPageSec  float64 `json:"avg_time_on_page_sec"`
	AvgScrollDepth    float64 `json:"avg_scroll_depth_percent"`
	BounceRatePercent float64 `json:"bounce_rate_percent"`
	ExitRatePercent   float64 `json:"exit_rate_percent"`
}

// CombinedAdvanced merges the per-page behavioral detail across days.
type CombinedAdvanced struct {
	ClickHeatmap    map[string]map[string]int `json:"click_heatmap"`
	ScrollTracking  map[string][]float64      `json:"scroll_tracking"`
	LoadPerformance map[string][]float64      `json:"load_performance"`
	EntryPages      map[string]int            `json:"entry_pages"`
	ExitPages       map[string]int            `json:"exit_pages"`
	PageBounce      map[string]float64        `json:"page_bounce"`
	PageExit        map[string]float64        `json:"page_exit"`
}

// Report is the combined multi-day view of one site.
type Report struct {
	SiteID       string `json:"site_id"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	DaysWithData int    `json:"days_with_data"`

	Summary  Summary    `json:"summary"`
	TopPages []PageStat `json:"top_pages"`

	TrafficSources    map[string]int `json:"traffic_sources"`
	Devices           map[string]int `json:"devices"`
	Browsers          map[string]int `json:"browsers"`
	OperatingSystems  map[string]int `json:"operating_systems"`
	UTMCampaigns      map[string]int `json:"utm_campaigns"`
	ScreenResolutions map[string]int `json:"screen_resolutions"`
	SearchTerms       map[string]int `json:"search_terms"`
	CustomEvents      map[string]int `json:"custom_events"`
	Countries         map[string]int `json:"countries"`
	HourlyVisitors    map[string]int `json:"hourly_visitors"`

	Top TopLists `json:"top"`

	Performance rollup.PerformanceSummary `json:"performance"`
	Engagement  rollup.EngagementSummary  `json:"engagement"`
	Technology  Technology                `json:"technology"`

	GeoSamples      []rollup.GeoSample              `json:"geo_samples"`
	Timeline        []rollup.TimelineEntry          `json:"timeline"`
	ReferrerDetails []rollup.ReferrerDetail         `json:"referrer_details"`
	UserJourneys    map[string][]rollup.JourneyStep `json:"user_journeys"`

	VisitorTypes VisitorTypes     `json:"visitor_types"`
	Advanced     CombinedAdvanced `json:"advanced_metrics"`
	Trend        *trend.Series    `json:"trend,omitempty"`

	Partial bool `json:"partial,omitempty"`
}

// Report output caps.
const (
	maxReportGeoSamples = 100
	maxReportTimeline   = 100
	maxReportReferrers  = 50
	maxReportJourneys   = 50
	topPagesLimit       = 10
)

// Top-list sizes.
const (
	topTrafficSources    = 5
	topDevices           = 3
	topBrowsers          = 5
	topOperatingSystems  = 5
	topUTMCampaigns      = 10
	topScreenResolutions = 5
	topSearchTerms       = 10
	topCustomEvents      = 10
)

// sortedPaths returns the map's keys in a deterministic order so per-day
// merges produce the same first-seen ordering on every run.
func sortedPaths[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func round1(v float64) float64 {
	return rollup.Round1(v)
}

// roundMs rounds millisecond averages to whole milliseconds for report
// output; sub-millisecond precision is noise at the dashboard level.
func roundMs(v float64) float64 {
	return math.Round(v)
}

func mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples))
}

func dayString(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
