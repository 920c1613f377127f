package rollup

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertDailyRollup writes the rollup row for (site_id, day), replacing any
// existing row for that key.
func UpsertDailyRollup(ctx context.Context, db *gorm.DB, r *DailyRollup) error {
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "site_id"}, {Name: "day"}},
		UpdateAll: true,
	}).Create(r).Error
	if err != nil {
		return fmt.Errorf("failed to upsert daily rollup for site %s day %s: %w", r.SiteID, r.Day, err)
	}
	return nil
}

// GetDailyRollup returns the rollup for one day, or (nil, nil) when the day
// has not been aggregated.
func GetDailyRollup(ctx context.Context, db *gorm.DB, siteID, day string) (*DailyRollup, error) {
	var r DailyRollup
	err := db.WithContext(ctx).
		Where("site_id = ? AND day = ?", siteID, day).
		First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load daily rollup for site %s day %s: %w", siteID, day, err)
	}
	return &r, nil
}

// RollupsInRange returns all rollups for the site with startDay <= day <= endDay,
// ordered by day ascending. Days are inclusive "2006-01-02" strings.
func RollupsInRange(ctx context.Context, db *gorm.DB, siteID, startDay, endDay string) ([]DailyRollup, error) {
	var rows []DailyRollup
	err := db.WithContext(ctx).
		Where("site_id = ? AND day >= ? AND day <= ?", siteID, startDay, endDay).
		Order("day ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load rollups for site %s between %s and %s: %w", siteID, startDay, endDay, err)
	}
	return rows, nil
}
