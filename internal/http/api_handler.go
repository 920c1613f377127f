package http

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"analytiq/internal/config"
	"analytiq/internal/dashboard"
	"analytiq/internal/events"
	"analytiq/internal/reports"
	"analytiq/internal/sites"
	"analytiq/internal/trend"
)

// APIHandler serves the read endpoints over the aggregated data.
type APIHandler struct {
	db     *gorm.DB
	store  *events.Store
	cfg    *config.Config
	logger *slog.Logger
}

func NewAPIHandler(db *gorm.DB, cfg *config.Config, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		db:     db,
		store:  events.NewStore(db),
		cfg:    cfg,
		logger: logger,
	}
}

// dateRange parses start_date and end_date query params, defaulting to the
// trailing seven days ending today.
func dateRange(c *fiber.Ctx) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start := end.AddDate(0, 0, -6)

	if raw := c.Query("start_date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid start_date, expected YYYY-MM-DD")
		}
		start = parsed
	}
	if raw := c.Query("end_date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid end_date, expected YYYY-MM-DD")
		}
		end = parsed
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, errors.New("end_date before start_date")
	}
	return start, end, nil
}

// GetReport handles GET /api/v1/sites/:site_id/report
func (h *APIHandler) GetReport(c *fiber.Ctx) error {
	siteID := c.Params("site_id")
	start, end, err := dateRange(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Context(), h.cfg.ReportDeadline())
	defer cancel()

	combiner := reports.NewCombiner(h.store, h.logger)
	report, err := combiner.BuildReport(ctx, siteID, start, end)
	if err != nil {
		if errors.Is(err, reports.ErrPartialReport) {
			// serve what was combined before the deadline
			return c.JSON(report)
		}
		if sites.IsNotFound(err) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		}
		h.logger.Error("Failed to build report",
			slog.String("site_id", siteID),
			slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to build report"})
	}

	return c.JSON(report)
}

// GetTrend handles GET /api/v1/sites/:site_id/trend
func (h *APIHandler) GetTrend(c *fiber.Ctx) error {
	siteID := c.Params("site_id")
	start, end, err := dateRange(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if _, err := sites.GetSiteOrNotFound(h.db, siteID); err != nil {
		if sites.IsNotFound(err) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load site"})
	}

	series, err := trend.Compute(c.Context(), h.store, siteID, start, end, h.cfg.ScanBatchSize)
	if err != nil {
		h.logger.Error("Failed to compute trend",
			slog.String("site_id", siteID),
			slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to compute trend"})
	}

	return c.JSON(series)
}

// GetSnapshot handles GET /api/v1/sites/:site_id/snapshot
func (h *APIHandler) GetSnapshot(c *fiber.Ctx) error {
	siteID := c.Params("site_id")

	if _, err := sites.GetSiteOrNotFound(h.db, siteID); err != nil {
		if sites.IsNotFound(err) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load site"})
	}

	snap, err := dashboard.Get(c.Context(), h.db, siteID)
	if err != nil {
		h.logger.Error("Failed to load snapshot",
			slog.String("site_id", siteID),
			slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load snapshot"})
	}
	if snap == nil {
		// compute on demand when the background job has not run yet
		snap, err = dashboard.Refresh(c.Context(), h.db, siteID, time.Now())
		if err != nil {
			h.logger.Error("Failed to refresh snapshot",
				slog.String("site_id", siteID),
				slog.Any("error", err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to refresh snapshot"})
		}
	}

	return c.JSON(snap)
}

// Health handles GET /health
func (h *APIHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
