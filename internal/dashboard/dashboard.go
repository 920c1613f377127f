// Package dashboard maintains a small per-site snapshot of live totals so
// the read API can answer "what is happening right now" without touching
// the rollups.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"analytiq/internal/events"
)

// Snapshot is the cached realtime view of one site, replaced on refresh.
type Snapshot struct {
	ID     uint   `gorm:"primaryKey;autoIncrement" json:"-"`
	SiteID string `gorm:"uniqueIndex;not null" json:"site_id"`

	TotalVisitors     int `json:"total_visitors"`
	TotalPageviews    int `json:"total_pageviews"`
	VisitorsLastHour  int `json:"visitors_last_hour"`
	PageviewsLastHour int `json:"pageviews_last_hour"`

	GeneratedAt time.Time `json:"generated_at"`
}

// Refresh recomputes the snapshot for a site from its raw events and
// persists it.
func Refresh(ctx context.Context, db *gorm.DB, siteID string, now time.Time) (*Snapshot, error) {
	snap := Snapshot{SiteID: siteID, GeneratedAt: now.UTC()}
	conn := db.WithContext(ctx)

	var totalVisitors int64
	err := conn.Model(&events.RawEvent{}).
		Where("site_id = ?", siteID).
		Distinct("visitor_id").
		Count(&totalVisitors).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count visitors for site %s: %w", siteID, err)
	}
	snap.TotalVisitors = int(totalVisitors)

	var totalPageviews int64
	err = conn.Model(&events.RawEvent{}).
		Where("site_id = ? AND event_type = ?", siteID, events.EventTypePageView).
		Count(&totalPageviews).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count pageviews for site %s: %w", siteID, err)
	}
	snap.TotalPageviews = int(totalPageviews)

	hourAgo := now.UTC().Add(-time.Hour).Format("2006-01-02 15:04:05")

	var hourVisitors int64
	err = conn.Model(&events.RawEvent{}).
		Where("site_id = ? AND datetime(ts) >= datetime(?)", siteID, hourAgo).
		Distinct("visitor_id").
		Count(&hourVisitors).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count recent visitors for site %s: %w", siteID, err)
	}
	snap.VisitorsLastHour = int(hourVisitors)

	var hourPageviews int64
	err = conn.Model(&events.RawEvent{}).
		Where("site_id = ? AND event_type = ? AND datetime(ts) >= datetime(?)",
			siteID, events.EventTypePageView, hourAgo).
		Count(&hourPageviews).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count recent pageviews for site %s: %w", siteID, err)
	}
	snap.PageviewsLastHour = int(hourPageviews)

	err = conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "site_id"}},
		UpdateAll: true,
	}).Create(&snap).Error
	if err != nil {
		return nil, fmt.Errorf("failed to store snapshot for site %s: %w", siteID, err)
	}
	return &snap, nil
}

// Get returns the last stored snapshot, or (nil, nil) when none exists yet.
func Get(ctx context.Context, db *gorm.DB, siteID string) (*Snapshot, error) {
	var snap Snapshot
	err := db.WithContext(ctx).Where("site_id = ?", siteID).First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot for site %s: %w", siteID, err)
	}
	return &snap, nil
}
