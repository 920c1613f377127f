// Package trend computes visitor and pageview time series over a date range,
// bucketed at a granularity picked from the range length. Buckets are
// pre-created over the whole range so gaps show up as zeros instead of
// missing periods.
package trend

import (
	"context"
	"fmt"
	"time"

	"analytiq/internal/events"
)

// Granularity is the bucket width of a trend series.
type Granularity string

const (
	GranularityHalfDay Granularity = "12h"
	GranularityDaily   Granularity = "daily"
	GranularityWeekly  Granularity = "weekly"
)

// Point is one bucket of the series. Period is the bucket's display key.
type Point struct {
	Period    string `json:"period"`
	Visitors  int    `json:"visitors"`
	Pageviews int    `json:"pageviews"`
}

// Series is the ordered trend over a range.
type Series struct {
	Granularity Granularity `json:"granularity"`
	Points      []Point     `json:"points"`
}

// GranularityFor picks the bucket width from the inclusive day count of the
// range: up to 3 days get half-day buckets, up to 30 days daily buckets, and
// anything longer weekly buckets.
func GranularityFor(start, end time.Time) Granularity {
	days := inclusiveDays(start, end)
	switch {
	case days <= 3:
		return GranularityHalfDay
	case days <= 30:
		return GranularityDaily
	default:
		return GranularityWeekly
	}
}

func inclusiveDays(start, end time.Time) int {
	s := dateOf(start)
	e := dateOf(end)
	return int(e.Sub(s).Hours()/24) + 1
}

func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// mondayOf returns the Monday starting the week that contains t.
func mondayOf(t time.Time) time.Time {
	d := dateOf(t)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

func halfDayKey(t time.Time) string {
	d := dateOf(t)
	if t.UTC().Hour() >= 12 {
		d = d.Add(12 * time.Hour)
	}
	return d.Format("2006-01-02 03PM")
}

func dailyKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func weeklyKey(t time.Time) string {
	return "Week of " + mondayOf(t).Format("2006-01-02")
}

func bucketKey(g Granularity, t time.Time) string {
	switch g {
	case GranularityHalfDay:
		return halfDayKey(t)
	case GranularityWeekly:
		return weeklyKey(t)
	default:
		return dailyKey(t)
	}
}

// bucketKeys pre-creates every bucket key of the range in chronological
// order.
func bucketKeys(g Granularity, start, end time.Time) []string {
	s := dateOf(start)
	e := dateOf(end)
	var keys []string
	switch g {
	case GranularityHalfDay:
		for d := s; !d.After(e); d = d.AddDate(0, 0, 1) {
			keys = append(keys, d.Format("2006-01-02 03PM"))
			keys = append(keys, d.Add(12*time.Hour).Format("2006-01-02 03PM"))
		}
	case GranularityWeekly:
		for w := mondayOf(s); !w.After(e); w = w.AddDate(0, 0, 7) {
			keys = append(keys, "Week of "+w.Format("2006-01-02"))
		}
	default:
		for d := s; !d.After(e); d = d.AddDate(0, 0, 1) {
			keys = append(keys, d.Format("2006-01-02"))
		}
	}
	return keys
}

// Compute streams the site's raw events over the inclusive date range and
// folds them into the pre-created buckets. Events whose timestamp fails to
// parse are silently skipped; buckets with no events stay at zero.
func Compute(ctx context.Context, store *events.Store, siteID string, start, end time.Time, batchSize int) (*Series, error) {
	if dateOf(end).Before(dateOf(start)) {
		return nil, fmt.Errorf("invalid trend range: end %s before start %s",
			dateOf(end).Format("2006-01-02"), dateOf(start).Format("2006-01-02"))
	}

	g := GranularityFor(start, end)
	keys := bucketKeys(g, start, end)

	visitors := make(map[string]map[string]struct{}, len(keys))
	pageviews := make(map[string]int, len(keys))
	for _, key := range keys {
		visitors[key] = make(map[string]struct{})
	}

	startDay := dateOf(start).Format("2006-01-02")
	endDay := dateOf(end).Format("2006-01-02")
	err := store.ScanRawEventsInRange(ctx, siteID, startDay, endDay, batchSize, func(batch []events.RawEvent) error {
		for i := range batch {
			ev := &batch[i]
			t, err := events.ParseEventTime(ev.TS)
			if err != nil {
				continue
			}
			key := bucketKey(g, t)
			bucket, ok := visitors[key]
			if !ok {
				// outside the pre-created range, ignore
				continue
			}
			visitorID := ev.VisitorID
			if visitorID == "" {
				visitorID = "unknown"
			}
			bucket[visitorID] = struct{}{}
			if ev.EventType == events.EventTypePageView {
				pageviews[key]++
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan events for trend of site %s: %w", siteID, err)
	}

	points := make([]Point, 0, len(keys))
	for _, key := range keys {
		points = append(points, Point{
			Period:    key,
			Visitors:  len(visitors[key]),
			Pageviews: pageviews[key],
		})
	}
	return &Series{Granularity: g, Points: points}, nil
}
