// Package rollup computes and persists the per-site-per-day aggregate that
// all multi-day reporting is built on. A rollup row is always recomputed from
// the full day's events and replaces the previous row; it is never patched.
package rollup

import (
	"time"
)

// Caps applied when the rollup is assembled, not during accumulation.
const (
	MaxGeoSamples      = 100
	MaxTimelineEvents  = 500
	MaxReferrerDetails = 100
	MaxJourneyVisitors = 50
)

// PerformanceSummary holds daily means over performance event columns.
type PerformanceSummary struct {
	FirstContentfulPaintAvgMs   float64 `json:"first_contentful_paint_avg_ms"`
	LargestContentfulPaintAvgMs float64 `json:"largest_contentful_paint_avg_ms"`
	CumulativeLayoutShiftAvg    float64 `json:"cumulative_layout_shift_avg"`
	FirstInputDelayAvgMs        float64 `json:"first_input_delay_avg_ms"`
	ServerResponseTimeAvgMs     float64 `json:"server_response_time_avg_ms"`
	CDNCacheHitRatioPercent     float64 `json:"cdn_cache_hit_ratio_percent"`
}

// EngagementSummary holds daily means over engagement event columns.
type EngagementSummary struct {
	AvgScrollDepthPercent float64 `json:"avg_scroll_depth_percent"`
	AvgClicksPerSession   float64 `json:"avg_clicks_per_session"`
	AvgIdleTimeSec        float64 `json:"avg_idle_time_sec"`
	AvgFormInteractions   float64 `json:"avg_form_interactions"`
	AvgVideoWatchTimeSec  float64 `json:"avg_video_watch_time_sec"`
}

// GeoSample is one bounded geo data point kept with the rollup.
type GeoSample struct {
	Lat       float64 `json:"lat"`
	Long      float64 `json:"long"`
	Country   string  `json:"country"`
	City      string  `json:"city"`
	Timestamp string  `json:"timestamp"`
}

// TimelineEntry is one bounded event-timeline item.
type TimelineEntry struct {
	Timestamp string `json:"timestamp"`
	VisitorID string `json:"visitor_id"`
	SessionID string `json:"session_id"`
	EventType string `json:"event_type"`
	Hour      string `json:"hour"`
}

// ReferrerDetail records one referred pageview.
type ReferrerDetail struct {
	Referrer    string `json:"referrer"`
	VisitorID   string `json:"visitor_id"`
	Timestamp   string `json:"timestamp"`
	LandingPage string `json:"landing_page"`
}

// JourneyStep is one step in a visitor's page journey.
type JourneyStep struct {
	Page      string `json:"page"`
	Timestamp string `json:"timestamp"`
	SessionID string `json:"session_id"`
}

// AdvancedMetrics bundles the per-page behavioral detail of one day.
type AdvancedMetrics struct {
	ClickHeatmap    map[string]map[string]int `json:"click_heatmap"`
	ScrollTracking  map[string][]float64      `json:"scroll_tracking"`
	LoadPerformance map[string][]float64      `json:"load_performance"`
	EntryPages      map[string]int            `json:"entry_pages"`
	ExitPages       map[string]int            `json:"exit_pages"`
	PageBounce      map[string]float64        `json:"page_bounce"`
	PageExit        map[string]float64        `json:"page_exit"`
}

// PageRollup is the persisted per-path aggregate. The unique-visitor set of
// the computation is collapsed to its cardinality here; the report combiner
// has to treat that count as approximate when merging days.
type PageRollup struct {
	Views             int       `json:"views"`
	UniqueVisitors    int       `json:"unique_visitors"`
	AvgLoadTimeMs     float64   `json:"avg_load_time_ms"`
	TimeSamples       []float64 `json:"time_samples"`
	ScrollDepths      []float64 `json:"scroll_depths"`
	Clicks            []int     `json:"clicks"`
	BounceRatePercent float64   `json:"bounce_rate_percent"`
	ExitRatePercent   float64   `json:"exit_rate_percent"`
}

// DailyRollup is the single persisted summary row for one site on one UTC
// calendar day, keyed by (site_id, day) and replaced wholesale on recompute.
type DailyRollup struct {
	ID     uint   `gorm:"primaryKey;autoIncrement"`
	SiteID string `gorm:"uniqueIndex:idx_rollup_site_day;not null"`
	Day    string `gorm:"uniqueIndex:idx_rollup_site_day;not null"`

	TotalVisitors         int
	UniqueVisitors        int
	TotalPageviews        int
	AvgSessionDurationSec float64
	AvgPagesPerSession    float64
	BounceRatePercent     float64

	TrafficSources    map[string]int `gorm:"serializer:json"`
	Devices           map[string]int `gorm:"serializer:json"`
	Browsers          map[string]int `gorm:"serializer:json"`
	OperatingSystems  map[string]int `gorm:"serializer:json"`
	UTMCampaigns      map[string]int `gorm:"serializer:json"`
	SearchTerms       map[string]int `gorm:"serializer:json"`
	CustomEvents      map[string]int `gorm:"serializer:json"`
	ScreenResolutions map[string]int `gorm:"serializer:json"`

	Performance PerformanceSummary `gorm:"serializer:json"`
	Engagement  EngagementSummary  `gorm:"serializer:json"`

	DownlinkValues []float64 `gorm:"serializer:json"`
	RTTValues      []float64 `gorm:"serializer:json"`

	GeoSamples      []GeoSample              `gorm:"serializer:json"`
	HourlyVisitors  map[string]int           `gorm:"serializer:json"`
	Timeline        []TimelineEntry          `gorm:"serializer:json"`
	ReferrerDetails []ReferrerDetail         `gorm:"serializer:json"`
	UserJourneys    map[string][]JourneyStep `gorm:"serializer:json"`

	Advanced AdvancedMetrics       `gorm:"serializer:json"`
	Pages    map[string]PageRollup `gorm:"serializer:json"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
