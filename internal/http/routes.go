package http

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"analytiq/internal/config"
)

// NewApp builds the Fiber app with all read endpoints mounted.
func NewApp(db *gorm.DB, cfg *config.Config, logger *slog.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		DisableStartupMessage: cfg.Environment != config.Development,
	})

	handler := NewAPIHandler(db, cfg, logger)

	app.Get("/health", handler.Health)

	api := app.Group("/api/v1")
	api.Get("/sites/:site_id/report", handler.GetReport)
	api.Get("/sites/:site_id/trend", handler.GetTrend)
	api.Get("/sites/:site_id/snapshot", handler.GetSnapshot)

	return app
}
