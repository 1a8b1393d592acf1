package testsupport

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"sitepulse/internal"
	"sitepulse/internal/config"
	"sitepulse/internal/database"
	"sitepulse/internal/events"
	"sitepulse/internal/pipeline"
)

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager
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

// SetupTestDB creates a test database with all models migrated.
// Uses a named in-memory database with cache=shared to allow multiple connections
// to share the same database within a test. Caches the database by test name
// so multiple calls within the same test return the same database.
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
	db.Exec("PRAGMA busy_timeout = 5000")

	if err := db.AutoMigrate(database.Models()...); err != nil {
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
	db := SetupTestDB(t)
	return NewTestDBManager(db), GetLogger()
}

// CleanAllTables removes every row from the pipeline tables.
func CleanAllTables(db *gorm.DB) {
	CleanTables(db, []string{
		"analytics_events",
		"click_events",
		"blocked_referrer_domains",
		"analytics_daily",
		"analytics_monthly",
		"analytics_yearly",
	})
}

// CleanTables removes every row from tables.
func CleanTables(db *gorm.DB, tables []string) {
	for _, table := range tables {
		db.Exec("DELETE FROM " + table)
	}
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// TestConfig returns a copy of the process config switched to the test environment.
func TestConfig() *config.Config {
	cfg := *config.GetConfig()
	cfg.Environment = config.Test
	cfg.AdminAPIKey = "test-admin-key"
	cfg.GeoDBPath = ""
	return &cfg
}

// PageView describes a stored page view fixture. Zero fields get defaults:
// a desktop Chrome visitor from the US on "/" right now.
type PageView struct {
	Hash      string
	Path      string
	Referrer  string
	Country   string
	Browser   string
	Device    string
	EventName string
	IsBot     bool
	At        time.Time
}

// CreatePageView inserts pv directly into analytics_events.
func CreatePageView(t *testing.T, db *gorm.DB, pv PageView) events.AnalyticsEvent {
	t.Helper()

	if pv.Hash == "" {
		pv.Hash = "0000000000000001"
	}
	if pv.Path == "" {
		pv.Path = "/"
	}
	if pv.Country == "" {
		pv.Country = "US"
	}
	if pv.Browser == "" {
		pv.Browser = "Chrome"
	}
	if pv.Device == "" {
		pv.Device = "desktop"
	}
	if pv.At.IsZero() {
		pv.At = time.Now()
	}

	ev := events.AnalyticsEvent{
		VisitorHash: pv.Hash,
		EventType:   events.EventTypePageView,
		Path:        pv.Path,
		Referrer:    events.StringPtr(pv.Referrer),
		UserAgent:   "Mozilla/5.0 Test Browser",
		Country:     events.StringPtr(pv.Country),
		Browser:     events.StringPtr(pv.Browser),
		DeviceType:  events.StringPtr(pv.Device),
		OS:          events.StringPtr("macOS"),
		IsBot:       pv.IsBot,
		CreatedAt:   pv.At.UnixMilli(),
	}
	if pv.EventName != "" {
		ev.EventType = events.EventTypeCustom
		ev.EventName = events.StringPtr(pv.EventName)
	}
	require.NoError(t, db.Create(&ev).Error)
	return ev
}

// CreatePageViews inserts n copies of pv.
func CreatePageViews(t *testing.T, db *gorm.DB, pv PageView, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		CreatePageView(t, db, pv)
	}
}

// CreateClick inserts a click event.
func CreateClick(t *testing.T, db *gorm.DB, hash, name, path string, at time.Time) events.ClickEvent {
	t.Helper()
	ev := events.ClickEvent{
		EventName:   name,
		VisitorHash: hash,
		Path:        path,
		CreatedAt:   at.UnixMilli(),
	}
	require.NoError(t, db.Create(&ev).Error)
	return ev
}

// NewTestPipeline builds a Pipeline on db with the test config. Its workers
// are not started; tests flush the queue explicitly.
func NewTestPipeline(t *testing.T, db *gorm.DB) *pipeline.Pipeline {
	t.Helper()
	return pipeline.New(TestConfig(), db, GetLogger())
}

// CreateMinimalTestApp creates a test Fiber app with all routes mounted on p.
func CreateMinimalTestApp(t *testing.T, db *gorm.DB, p *pipeline.Pipeline) *fiber.App {
	t.Helper()

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = p.Config
	cfg.Logger = GetLogger()
	cfg.DBManager = NewTestDBManager(db)
	cfg.EnableSecFetchSite = false

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	internal.MountAppRoutes(srv, p)
	return srv.App()
}
