// main.go - Admin control tool for Analytiq
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"analytiq/internal/config"
	"analytiq/internal/database"
	"analytiq/internal/events"
	"analytiq/internal/logging"
	"analytiq/internal/pkg/geo"
	"analytiq/internal/reports"
	"analytiq/internal/rollup"
	"analytiq/internal/seeder"
	"analytiq/internal/sites"
)

// Command defines the interface for all command implementations
type Command interface {
	Name() string
	Description() string
	Execute(ctx context.Context, env *Env, args []string) error
}

// Env bundles the shared dependencies every command can use.
type Env struct {
	Config    *config.Config
	DBManager *database.DBManager
	Resolver  *geo.Resolver
}

var commands = []Command{
	&MigrateCommand{},
	&AddSiteCommand{},
	&SeedCommand{},
	&AggregateCommand{},
	&ReportCommand{},
	&HelpCommand{},
}

func main() {
	flag.Parse()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, initiating cleanup...", sig)
		cancel()
	}()

	cmdName, args := parseArgs()
	cmd := findCommand(cmdName)
	if cmd == nil {
		showUsageAndExit()
	}

	cfg := config.GetConfig()
	logger := logging.NewLogger(cfg)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	resolver := geo.NewResolver(geo.Options{
		BaseURL:   cfg.GeocoderBaseURL,
		Timeout:   cfg.GeocoderTimeout(),
		GeoDBPath: cfg.GeoDBPath,
		Logger:    logger,
	})
	defer resolver.Close()

	env := &Env{Config: cfg, DBManager: dbManager, Resolver: resolver}

	if err := cmd.Execute(ctx, env, args); err != nil {
		log.Fatalf("Command failed: %v", err)
	}
	log.Printf("Command %s completed successfully", cmd.Name())
}

func parseArgs() (string, []string) {
	args := flag.Args()
	if len(args) == 0 {
		return "help", nil
	}
	return args[0], args[1:]
}

func findCommand(name string) Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

func showUsageAndExit() {
	fmt.Println("Usage: atqctl <command> [args]")
	fmt.Println("Commands:")
	for _, cmd := range commands {
		fmt.Printf("  %-12s %s\n", cmd.Name(), cmd.Description())
	}
	os.Exit(1)
}

// MigrateCommand runs database migrations
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string        { return "migrate" }
func (c *MigrateCommand) Description() string { return "Runs database migrations" }

func (c *MigrateCommand) Execute(ctx context.Context, env *Env, args []string) error {
	return env.DBManager.MigrateDatabase()
}

// AddSiteCommand registers a new site
type AddSiteCommand struct{}

func (c *AddSiteCommand) Name() string        { return "add-site" }
func (c *AddSiteCommand) Description() string { return "Registers a site: add-site <site_id> <url>" }

func (c *AddSiteCommand) Execute(ctx context.Context, env *Env, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: add-site <site_id> <url>")
	}
	site := sites.Site{
		SiteID:    args[0],
		Name:      args[0],
		URL:       args[1],
		Verified:  true,
		CreatedAt: time.Now().UTC(),
	}
	return env.DBManager.GetConnection().Create(&site).Error
}

// SeedCommand fills a site with demo traffic
type SeedCommand struct{}

func (c *SeedCommand) Name() string { return "seed" }
func (c *SeedCommand) Description() string {
	return "Seeds demo data: seed <site_id> [event_count] [days]"
}

func (c *SeedCommand) Execute(ctx context.Context, env *Env, args []string) error {
	if err := env.DBManager.MigrateDatabase(); err != nil {
		return err
	}

	siteID := "demo"
	if len(args) > 0 {
		siteID = args[0]
	}
	eventCount := 5000
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid event count %q: %w", args[1], err)
		}
		eventCount = n
	}
	days := 14
	if len(args) > 2 {
		n, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid day count %q: %w", args[2], err)
		}
		days = n
	}

	se := seeder.NewSeeder(env.DBManager, nil, eventCount, days)
	return se.EnsureDemoSite(ctx, siteID)
}

// AggregateCommand recomputes a day's rollup for one site
type AggregateCommand struct{}

func (c *AggregateCommand) Name() string { return "aggregate" }
func (c *AggregateCommand) Description() string {
	return "Recomputes a daily rollup: aggregate <site_id> [YYYY-MM-DD]"
}

func (c *AggregateCommand) Execute(ctx context.Context, env *Env, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: aggregate <site_id> [YYYY-MM-DD]")
	}
	siteID := args[0]

	store := events.NewStore(env.DBManager.GetConnection())
	logger := logging.NewLogger(env.Config)
	aggregator := rollup.NewAggregator(store, env.Resolver, logger)

	var diag rollup.Diagnostics
	var err error
	if len(args) > 1 {
		if _, perr := time.Parse("2006-01-02", args[1]); perr != nil {
			return fmt.Errorf("invalid day %q: %w", args[1], perr)
		}
		diag, err = aggregator.AggregateDayFor(ctx, siteID, args[1])
	} else {
		diag, err = aggregator.AggregateDay(ctx, siteID)
	}
	if err != nil {
		return err
	}

	log.Printf("Aggregated: %d processed, %d skipped", diag.Processed, diag.Skipped())
	return nil
}

// ReportCommand prints the combined report for a range
type ReportCommand struct{}

func (c *ReportCommand) Name() string { return "report" }
func (c *ReportCommand) Description() string {
	return "Builds a report: report <site_id> <start> <end>"
}

func (c *ReportCommand) Execute(ctx context.Context, env *Env, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: report <site_id> <YYYY-MM-DD> <YYYY-MM-DD>")
	}
	start, err := time.Parse("2006-01-02", args[1])
	if err != nil {
		return fmt.Errorf("invalid start day %q: %w", args[1], err)
	}
	end, err := time.Parse("2006-01-02", args[2])
	if err != nil {
		return fmt.Errorf("invalid end day %q: %w", args[2], err)
	}

	store := events.NewStore(env.DBManager.GetConnection())
	logger := logging.NewLogger(env.Config)
	combiner := reports.NewCombiner(store, logger)

	deadlineCtx, cancel := context.WithTimeout(ctx, env.Config.ReportDeadline())
	defer cancel()

	report, err := combiner.BuildReport(deadlineCtx, args[0], start, end)
	if err != nil {
		return err
	}

	fmt.Printf("Report for %s (%s to %s)\n", report.SiteID, report.StartDate, report.EndDate)
	fmt.Printf("  days with data:   %d\n", report.DaysWithData)
	fmt.Printf("  visitors:         %d\n", report.Summary.TotalVisitors)
	fmt.Printf("  pageviews:        %d\n", report.Summary.TotalPageviews)
	fmt.Printf("  bounce rate:      %.1f%%\n", report.Summary.BounceRatePercent)
	fmt.Printf("  session duration: %.1fs\n", report.Summary.AvgSessionDurationSec)
	fmt.Printf("  traffic sources:  %v\n", report.TrafficSources)
	return nil
}

// HelpCommand prints usage
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "Shows this help" }

func (c *HelpCommand) Execute(ctx context.Context, env *Env, args []string) error {
	showUsageAndExit()
	return nil
}
