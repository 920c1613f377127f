// main.go - HTTP server application
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"analytiq/internal/config"
	"analytiq/internal/database"
	"analytiq/internal/http"
	"analytiq/internal/jobs"
	"analytiq/internal/logging"
	"analytiq/internal/pkg/geo"
)

const defaultShutdownTimeout = 30 * time.Second

func main() {
	cfg := config.GetConfig()
	logger := logging.NewLogger(cfg)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	log.Println("Running database migrations...")
	if err := dbManager.MigrateDatabase(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Migrations completed")

	resolver := geo.NewResolver(geo.Options{
		BaseURL:   cfg.GeocoderBaseURL,
		Timeout:   cfg.GeocoderTimeout(),
		GeoDBPath: cfg.GeoDBPath,
		Logger:    logger,
	})
	defer resolver.Close()

	scheduler, err := jobs.NewScheduler(dbManager, logger, resolver)
	if err != nil {
		log.Fatalf("Failed to initialize jobs: %v", err)
	}
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start background jobs: %v", err)
	}

	app := http.NewApp(dbManager.GetConnection(), cfg, logger)
	go func() {
		if err := app.Listen(":" + cfg.AppPort); err != nil {
			log.Fatalf("Server stopped: %v", err)
		}
	}()
	log.Printf("Application started on port %s", cfg.AppPort)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	sig := <-sigChan
	log.Printf("Received signal: %v", sig)

	log.Println("Initiating graceful shutdown...")
	scheduler.Stop()
	if err := app.ShutdownWithTimeout(defaultShutdownTimeout); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	if err := dbManager.CheckpointWAL("TRUNCATE"); err != nil {
		log.Printf("Failed to checkpoint WAL on shutdown: %v", err)
	}
	log.Println("Server shutdown complete")
}
