package testsupport

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/karloscodes/cartridge"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"analytiq/internal/config"
	"analytiq/internal/dashboard"
	"analytiq/internal/events"
	"analytiq/internal/rollup"
	"analytiq/internal/sites"
)

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager with analytiq's interface
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

// Ensure TestDBManager implements cartridge.DBManager
var _ cartridge.DBManager = (*TestDBManager)(nil)

// allModels returns all analytiq models for migration
func allModels() []any {
	return []any{
		&sites.Site{},
		&events.RawEvent{},
		&events.PerformanceEvent{},
		&events.EngagementEvent{},
		&events.SearchEvent{},
		&events.CustomEvent{},
		&events.ConversionEvent{},
		&rollup.DailyRollup{},
		&dashboard.Snapshot{},
	}
}

// SetupTestDB creates a test database with all analytiq models migrated.
// Uses a named in-memory database with cache=shared to allow multiple
// connections to share the same database within a test. Caches the database
// by test name so multiple calls within the same test return the same
// database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	testName := t.Name()

	// Use root test name for caching to handle closure issues where
	// setup functions capture the outer t while t.Run has subtest t
	rootName := testName
	if idx := strings.Index(testName, "/"); idx > 0 {
		rootName = testName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	if err := db.AutoMigrate(allModels()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager creates a test DB manager using cartridge's testsupport
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	cfg := config.GetConfig()
	if cfg.Environment != config.Test {
		t.Fatalf("CRITICAL: Tests must run in test environment! Current: %s. Set ANALYTIQ_ENV=test", cfg.Environment)
	}

	db := SetupTestDB(t)
	logger := GetLogger()
	dbManager := NewTestDBManager(db)

	return dbManager, logger
}

// SetupTestDBManagerWithSite creates a test database manager with a test site
func SetupTestDBManagerWithSite(t *testing.T, siteID string) (*TestDBManager, *slog.Logger, sites.Site) {
	dbManager, logger := SetupTestDBManager(t)
	site := CreateTestSite(t, dbManager.GetConnection(), siteID)
	return dbManager, logger, site
}

// CreateTestSite creates a test site in the database
func CreateTestSite(t *testing.T, db *gorm.DB, siteID string) sites.Site {
	t.Helper()

	var site sites.Site
	if db.Where("site_id = ?", siteID).First(&site).Error == nil {
		return site
	}
	site = sites.Site{
		SiteID:    siteID,
		Name:      siteID,
		URL:       "https://" + siteID + ".example.com",
		Verified:  true,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, db.Create(&site).Error)
	return site
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// CleanAllTables clears all non-system tables in the database
func CleanAllTables(db *gorm.DB) {
	var tableNames []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tableNames)

	if len(tableNames) == 0 {
		return
	}

	db.Exec("PRAGMA foreign_keys = OFF")
	defer db.Exec("PRAGMA foreign_keys = ON")

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tableNames {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// PageViewOptions tweaks the payload produced by CreatePageViewEvent.
type PageViewOptions struct {
	Referrer    string
	UserAgent   string
	DeviceType  string
	Screen      string
	UTMSource   string
	UTMMedium   string
	UTMCampaign string
	Geo         *events.GeoPayload
}

// CreatePageViewEvent inserts a pageview raw event with a realistic payload.
func CreatePageViewEvent(t *testing.T, db *gorm.DB, siteID, eventID, visitorID, sessionID, pageURL string, ts time.Time, opts PageViewOptions) {
	t.Helper()

	payload := map[string]any{"url": pageURL}
	if opts.Referrer != "" {
		payload["referrer"] = opts.Referrer
	}
	if opts.UserAgent != "" {
		payload["user_agent"] = opts.UserAgent
	}
	if opts.DeviceType != "" {
		payload["device_type"] = opts.DeviceType
	}
	if opts.Screen != "" {
		payload["screen"] = opts.Screen
	}
	if opts.UTMSource != "" {
		payload["utm_source"] = opts.UTMSource
	}
	if opts.UTMMedium != "" {
		payload["utm_medium"] = opts.UTMMedium
	}
	if opts.UTMCampaign != "" {
		payload["utm_campaign"] = opts.UTMCampaign
	}
	if opts.Geo != nil {
		payload["geo"] = opts.Geo
	}

	CreateRawEvent(t, db, siteID, eventID, visitorID, sessionID, events.EventTypePageView, ts.UTC().Format(time.RFC3339), payload)
}

// CreateRawEvent inserts a raw event with an arbitrary payload and a verbatim
// timestamp string, which lets tests exercise unparseable timestamps too.
func CreateRawEvent(t *testing.T, db *gorm.DB, siteID, eventID, visitorID, sessionID, eventType, ts string, payload map[string]any) {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	ev := events.RawEvent{
		EventID:   eventID,
		SiteID:    siteID,
		TS:        ts,
		EventType: eventType,
		Payload:   string(body),
		VisitorID: visitorID,
		SessionID: sessionID,
	}
	require.NoError(t, db.Create(&ev).Error)
}

// FloatPtr returns a pointer to the given float, for optional event columns.
func FloatPtr(v float64) *float64 { return &v }

// IntPtr returns a pointer to the given int.
func IntPtr(v int) *int { return &v }

// BoolPtr returns a pointer to the given bool.
func BoolPtr(v bool) *bool { return &v }
