package events

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Store is the event-store access layer. All reads are range-filtered by
// (site_id, date) so callers never scan other sites' data.
type Store struct {
	db *gorm.DB
}

// NewStore wraps a gorm connection in a Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying connection for collaborators that run their own
// queries (rollup persistence, dashboard snapshot).
func (s *Store) DB() *gorm.DB {
	return s.db
}

// RawEventsForDay returns one site-day of raw events ordered by timestamp,
// ties broken by ingestion order.
func (s *Store) RawEventsForDay(ctx context.Context, siteID, day string) ([]RawEvent, error) {
	var rows []RawEvent
	err := s.db.WithContext(ctx).
		Where("site_id = ? AND date(ts) = ?", siteID, day).
		Order("ts ASC, rowid ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch raw events for %s/%s: %w", siteID, day, err)
	}
	return rows, nil
}

// ScanRawEventsInRange streams raw events for an inclusive day range in
// batches, bounding memory for large scans. fn receives each batch in
// timestamp order; returning an error aborts the scan.
func (s *Store) ScanRawEventsInRange(ctx context.Context, siteID, startDay, endDay string, batchSize int, fn func([]RawEvent) error) error {
	if batchSize <= 0 {
		batchSize = 1000
	}
	var batch []RawEvent
	result := s.db.WithContext(ctx).
		Where("site_id = ? AND date(ts) BETWEEN ? AND ?", siteID, startDay, endDay).
		Order("ts ASC, rowid ASC").
		FindInBatches(&batch, batchSize, func(_ *gorm.DB, _ int) error {
			return fn(batch)
		})
	if result.Error != nil {
		return fmt.Errorf("raw event scan failed for %s [%s..%s]: %w", siteID, startDay, endDay, result.Error)
	}
	return nil
}

// PerformanceEventsForDay returns one site-day of performance samples.
func (s *Store) PerformanceEventsForDay(ctx context.Context, siteID, day string) ([]PerformanceEvent, error) {
	var rows []PerformanceEvent
	err := s.db.WithContext(ctx).
		Where("site_id = ? AND date(ts) = ?", siteID, day).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch performance events: %w", err)
	}
	return rows, nil
}

// EngagementEventsForDay returns one site-day of engagement samples.
func (s *Store) EngagementEventsForDay(ctx context.Context, siteID, day string) ([]EngagementEvent, error) {
	var rows []EngagementEvent
	err := s.db.WithContext(ctx).
		Where("site_id = ? AND date(ts) = ?", siteID, day).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch engagement events: %w", err)
	}
	return rows, nil
}

// SearchEventsForDay returns one site-day of search events.
func (s *Store) SearchEventsForDay(ctx context.Context, siteID, day string) ([]SearchEvent, error) {
	var rows []SearchEvent
	err := s.db.WithContext(ctx).
		Where("site_id = ? AND date(ts) = ?", siteID, day).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch search events: %w", err)
	}
	return rows, nil
}

// CustomEventsForDay returns one site-day of custom events.
func (s *Store) CustomEventsForDay(ctx context.Context, siteID, day string) ([]CustomEvent, error) {
	var rows []CustomEvent
	err := s.db.WithContext(ctx).
		Where("site_id = ? AND date(ts) = ?", siteID, day).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch custom events: %w", err)
	}
	return rows, nil
}

// ConversionEventsForDay returns one site-day of conversion events.
func (s *Store) ConversionEventsForDay(ctx context.Context, siteID, day string) ([]ConversionEvent, error) {
	var rows []ConversionEvent
	err := s.db.WithContext(ctx).
		Where("site_id = ? AND date(ts) = ?", siteID, day).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch conversion events: %w", err)
	}
	return rows, nil
}

// InsertRawEvent appends a raw event. Events are immutable once stored.
func (s *Store) InsertRawEvent(ctx context.Context, event *RawEvent) error {
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to insert raw event: %w", err)
	}
	return nil
}

// InsertPerformanceEvent appends a performance event.
func (s *Store) InsertPerformanceEvent(ctx context.Context, event *PerformanceEvent) error {
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to insert performance event: %w", err)
	}
	return nil
}

// InsertEngagementEvent appends an engagement event.
func (s *Store) InsertEngagementEvent(ctx context.Context, event *EngagementEvent) error {
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to insert engagement event: %w", err)
	}
	return nil
}

// InsertSearchEvent appends a search event.
func (s *Store) InsertSearchEvent(ctx context.Context, event *SearchEvent) error {
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to insert search event: %w", err)
	}
	return nil
}

// InsertCustomEvent appends a custom event.
func (s *Store) InsertCustomEvent(ctx context.Context, event *CustomEvent) error {
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to insert custom event: %w", err)
	}
	return nil
}

// InsertConversionEvent appends a conversion event.
func (s *Store) InsertConversionEvent(ctx context.Context, event *ConversionEvent) error {
	if err := s.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to insert conversion event: %w", err)
	}
	return nil
}

// PurgeEventsBefore deletes event rows older than cutoff from every event
// table. Used by the retention job; aggregates are untouched.
func (s *Store) PurgeEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffStr := cutoff.UTC().Format("2006-01-02 15:04:05")
	models := []any{
		&RawEvent{},
		&PerformanceEvent{},
		&EngagementEvent{},
		&SearchEvent{},
		&CustomEvent{},
		&ConversionEvent{},
	}

	var total int64
	for _, model := range models {
		result := s.db.WithContext(ctx).
			Where("datetime(ts) < datetime(?)", cutoffStr).
			Delete(model)
		if result.Error != nil {
			return total, fmt.Errorf("failed to purge old events: %w", result.Error)
		}
		total += result.RowsAffected
	}
	return total, nil
}
