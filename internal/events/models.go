package events

import "time"

// Event types observed in the raw stream. Anything else passes through and
// only contributes to visitor totals and the timeline.
const (
	EventTypePageView = "pageview"
	EventTypeClick    = "click"
	EventTypeScroll   = "scroll"
)

// RawEvent is an immutable per-visit event as delivered by the ingest API.
// TS is kept as the ingested string so downstream consumers own the
// parse-and-skip semantics; Payload is schema-on-read JSON.
type RawEvent struct {
	EventID   string `gorm:"primaryKey;column:event_id"`
	SiteID    string `gorm:"index:idx_raw_site_ts;not null"`
	TS        string `gorm:"column:ts;index:idx_raw_site_ts;not null"`
	EventType string `gorm:"not null"`
	Payload   string `gorm:"type:text"`
	VisitorID string `gorm:"index"`
	SessionID string `gorm:"index"`
}

// PerformanceEvent carries page performance samples, one row per occurrence.
type PerformanceEvent struct {
	EventID                string `gorm:"primaryKey;column:event_id"`
	SiteID                 string `gorm:"index:idx_perf_site_ts;not null"`
	TS                     string `gorm:"column:ts;index:idx_perf_site_ts;not null"`
	VisitorID              string
	SessionID              string
	URL                    string
	FirstContentfulPaint   *float64
	LargestContentfulPaint *float64
	CumulativeLayoutShift  *float64
	FirstInputDelay        *float64
	ConnectionDownlink     *float64
	ConnectionRTT          *float64
	ConnectionType         string
	DOMContentLoaded       *float64
	LoadEventEnd           *float64
	ServerResponseTime     *float64
	TotalResources         *int
	CachedResources        *int
}

// EngagementEvent carries user engagement samples.
type EngagementEvent struct {
	EventID            string `gorm:"primaryKey;column:event_id"`
	SiteID             string `gorm:"index:idx_eng_site_ts;not null"`
	TS                 string `gorm:"column:ts;index:idx_eng_site_ts;not null"`
	VisitorID          string
	SessionID          string
	URL                string
	ScrollDepthPercent *float64
	TimeOnPageSec      *float64
	ClicksCount        *int
	IdleTimeSec        *float64
	MouseMovements     *int
	KeyboardEvents     *int
	FormStarted        *bool
	FormCompleted      *bool
	VideoPlayed        *bool
	VideoWatchTimeSec  *float64
}

// SearchEvent records an on-site search.
type SearchEvent struct {
	EventID        string `gorm:"primaryKey;column:event_id"`
	SiteID         string `gorm:"index:idx_search_site_ts;not null"`
	TS             string `gorm:"column:ts;index:idx_search_site_ts;not null"`
	VisitorID      string
	SessionID      string
	SearchTerm     string
	ResultsCount   *int
	ClickedResult  *bool
	ResultPosition *int
}

// CustomEvent records a named business event.
type CustomEvent struct {
	EventID          string `gorm:"primaryKey;column:event_id"`
	SiteID           string `gorm:"index:idx_custom_site_ts;not null"`
	TS               string `gorm:"column:ts;index:idx_custom_site_ts;not null"`
	VisitorID        string
	SessionID        string
	EventName        string `gorm:"index"`
	EventCategory    string
	EventValue       *float64
	CustomProperties string `gorm:"type:text"`
}

// ConversionEvent records funnel steps like add_to_cart or purchase.
type ConversionEvent struct {
	EventID     string `gorm:"primaryKey;column:event_id"`
	SiteID      string `gorm:"index:idx_conv_site_ts;not null"`
	TS          string `gorm:"column:ts;index:idx_conv_site_ts;not null"`
	EventType   string
	VisitorID   string
	SessionID   string
	ProductID   string
	ProductName string
	Category    string
	Price       *float64
	Quantity    *int
	Currency    string
	OrderValue  *float64
	OrderID     string
	FunnelStep  string
}

// DayKey formats a time as the canonical site-day key (UTC calendar date).
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
