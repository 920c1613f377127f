// Package seeder generates realistic demo traffic for local development:
// pageviews with UA/referrer/UTM variety, specialized events, and a short
// history so reports and trends have something to show.
package seeder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"analytiq/internal/events"
	"analytiq/internal/sites"
)

// Seeder handles the demo data seeding process.
type Seeder struct {
	DBManager  cartridge.DBManager
	Logger     *slog.Logger
	EventCount int
	Days       int
}

// NewSeeder creates a new seeder instance
func NewSeeder(dbManager cartridge.DBManager, logger *slog.Logger, eventCount, days int) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	if days <= 0 {
		days = 7
	}
	return &Seeder{
		DBManager:  dbManager,
		Logger:     logger,
		EventCount: eventCount,
		Days:       days,
	}
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 Version/17.0 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 Chrome/120.0.0.0 Mobile Safari/537.36",
}

var referrers = []string{
	"",
	"",
	"https://www.google.com/search?q=analytics",
	"https://www.bing.com/search?q=metrics",
	"https://www.facebook.com/",
	"https://twitter.com/somepost",
	"https://news.ycombinator.com/item?id=1",
}

var pagePaths = []string{"/", "/pricing", "/blog", "/blog/launch", "/docs", "/about", "/contact"}

var screens = []string{"1920x1080", "1366x768", "2560x1440", "390x844", "412x915"}

var devices = []string{"desktop", "desktop", "desktop", "mobile", "tablet"}

var searchTerms = []string{"pricing", "api docs", "export data", "self hosting"}

var customEventNames = []string{"signup_clicked", "demo_requested", "newsletter_subscribed"}

// SeedSite seeds a specific existing site with demo data.
func (s *Seeder) SeedSite(ctx context.Context, siteID string) error {
	start := time.Now()
	s.Logger.Info("Seeding site...", slog.String("site_id", siteID), slog.Int("eventCount", s.EventCount))

	db := s.DBManager.GetConnection()

	var site sites.Site
	if err := db.Where("site_id = ?", siteID).First(&site).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("site %s not found", siteID)
		}
		return fmt.Errorf("failed to find site: %w", err)
	}

	if err := s.generateTraffic(ctx, &site); err != nil {
		return fmt.Errorf("failed to generate data for %s: %w", site.SiteID, err)
	}

	s.Logger.Info("Site seeding completed",
		slog.String("site_id", siteID),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

// EnsureDemoSite creates the demo site when it does not exist and seeds it.
func (s *Seeder) EnsureDemoSite(ctx context.Context, siteID string) error {
	db := s.DBManager.GetConnection()

	var site sites.Site
	err := db.Where("site_id = ?", siteID).First(&site).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		site = sites.Site{
			SiteID:    siteID,
			Name:      "Demo Site",
			URL:       "https://demo.example.com",
			Verified:  true,
			CreatedAt: time.Now().UTC(),
		}
		if err := db.Create(&site).Error; err != nil {
			return fmt.Errorf("failed to create demo site: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to look up demo site: %w", err)
	}

	return s.SeedSite(ctx, siteID)
}

// generateTraffic spreads sessions over the configured day window. Each
// session gets one to five pageviews plus occasional specialized events.
func (s *Seeder) generateTraffic(ctx context.Context, site *sites.Site) error {
	store := events.NewStore(s.DBManager.GetConnection())
	now := time.Now().UTC()

	generated := 0
	for generated < s.EventCount {
		if err := ctx.Err(); err != nil {
			return err
		}

		visitorID := fmt.Sprintf("visitor-%d", rand.IntN(s.EventCount/2+1))
		sessionID := uuid.NewString()
		returning := rand.IntN(100) < 30

		dayOffset := rand.IntN(s.Days)
		sessionStart := now.AddDate(0, 0, -dayOffset).
			Add(-time.Duration(rand.IntN(12)) * time.Hour).
			Add(-time.Duration(rand.IntN(60)) * time.Minute)

		ua := userAgents[rand.IntN(len(userAgents))]
		referrer := referrers[rand.IntN(len(referrers))]
		screen := screens[rand.IntN(len(screens))]
		device := devices[rand.IntN(len(devices))]

		pageCount := 1 + rand.IntN(5)
		for p := 0; p < pageCount && generated < s.EventCount; p++ {
			path := pagePaths[rand.IntN(len(pagePaths))]
			ts := sessionStart.Add(time.Duration(p) * time.Duration(20+rand.IntN(100)) * time.Second)

			payload := events.Payload{
				URL:                "https://demo.example.com" + path,
				Referrer:           referrer,
				UserAgent:          ua,
				DeviceType:         device,
				Screen:             screen,
				IsNewVisitor:       !returning,
				IsReturningVisitor: returning,
			}
			if rand.IntN(100) < 10 {
				payload.UTMSource = "newsletter"
				payload.UTMMedium = "email"
				payload.UTMCampaign = "spring_sale"
			}
			if rand.IntN(100) < 40 {
				payload.LoadEventMs = floatPtr(200 + rand.Float64()*1800)
				payload.DownlinkMbps = floatPtr(1 + rand.Float64()*90)
				payload.RTTMs = floatPtr(10 + rand.Float64()*190)
			}

			body, err := payload.MarshalJSON()
			if err != nil {
				return fmt.Errorf("failed to marshal seed payload: %w", err)
			}

			ev := events.RawEvent{
				EventID:   uuid.NewString(),
				SiteID:    site.SiteID,
				TS:        ts.Format(time.RFC3339),
				EventType: events.EventTypePageView,
				Payload:   string(body),
				VisitorID: visitorID,
				SessionID: sessionID,
			}
			if err := store.InsertRawEvent(ctx, &ev); err != nil {
				return err
			}
			generated++

			if err := s.maybeInsertSpecialized(ctx, store, site.SiteID, visitorID, sessionID, payload.URL, ts); err != nil {
				return err
			}

			// only the first pageview of a session carries the referrer
			referrer = ""
		}
	}

	s.Logger.Info("Generated demo events", slog.Int("count", generated), slog.String("site_id", site.SiteID))
	return nil
}

func (s *Seeder) maybeInsertSpecialized(ctx context.Context, store *events.Store, siteID, visitorID, sessionID, pageURL string, ts time.Time) error {
	tsStr := ts.Format(time.RFC3339)

	if rand.IntN(100) < 30 {
		perf := events.PerformanceEvent{
			EventID:                uuid.NewString(),
			SiteID:                 siteID,
			TS:                     tsStr,
			VisitorID:              visitorID,
			SessionID:              sessionID,
			URL:                    pageURL,
			FirstContentfulPaint:   floatPtr(400 + rand.Float64()*1600),
			LargestContentfulPaint: floatPtr(800 + rand.Float64()*2400),
			CumulativeLayoutShift:  floatPtr(rand.Float64() * 0.3),
			FirstInputDelay:        floatPtr(rand.Float64() * 100),
			ServerResponseTime:     floatPtr(50 + rand.Float64()*400),
			TotalResources:         intPtr(20 + rand.IntN(80)),
			CachedResources:        intPtr(rand.IntN(40)),
		}
		if err := store.InsertPerformanceEvent(ctx, &perf); err != nil {
			return err
		}
	}

	if rand.IntN(100) < 30 {
		eng := events.EngagementEvent{
			EventID:            uuid.NewString(),
			SiteID:             siteID,
			TS:                 tsStr,
			VisitorID:          visitorID,
			SessionID:          sessionID,
			URL:                pageURL,
			ScrollDepthPercent: floatPtr(10 + rand.Float64()*90),
			TimeOnPageSec:      floatPtr(5 + rand.Float64()*300),
			ClicksCount:        intPtr(rand.IntN(15)),
			IdleTimeSec:        floatPtr(rand.Float64() * 60),
		}
		if err := store.InsertEngagementEvent(ctx, &eng); err != nil {
			return err
		}
	}

	if rand.IntN(100) < 5 {
		search := events.SearchEvent{
			EventID:      uuid.NewString(),
			SiteID:       siteID,
			TS:           tsStr,
			VisitorID:    visitorID,
			SessionID:    sessionID,
			SearchTerm:   searchTerms[rand.IntN(len(searchTerms))],
			ResultsCount: intPtr(rand.IntN(20)),
		}
		if err := store.InsertSearchEvent(ctx, &search); err != nil {
			return err
		}
	}

	if rand.IntN(100) < 5 {
		custom := events.CustomEvent{
			EventID:   uuid.NewString(),
			SiteID:    siteID,
			TS:        tsStr,
			VisitorID: visitorID,
			SessionID: sessionID,
			EventName: customEventNames[rand.IntN(len(customEventNames))],
		}
		if err := store.InsertCustomEvent(ctx, &custom); err != nil {
			return err
		}
	}

	if rand.IntN(100) < 3 {
		conv := events.ConversionEvent{
			EventID:    uuid.NewString(),
			SiteID:     siteID,
			TS:         tsStr,
			EventType:  "purchase",
			VisitorID:  visitorID,
			SessionID:  sessionID,
			ProductID:  fmt.Sprintf("sku-%d", rand.IntN(20)),
			Price:      floatPtr(9 + rand.Float64()*90),
			Quantity:   intPtr(1 + rand.IntN(3)),
			Currency:   "USD",
			FunnelStep: "checkout_completed",
		}
		if err := store.InsertConversionEvent(ctx, &conv); err != nil {
			return err
		}
	}

	return nil
}

func floatPtr(v float64) *float64 { return &v }

func intPtr(v int) *int { return &v }
