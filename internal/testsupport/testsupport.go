package testsupport

import (
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

	"insightify/internal/config"
	"insightify/internal/heatmaps"
	"insightify/internal/projects"
	"insightify/internal/tracking"
)

func init() {
	// Tests must never touch a real database or log directory.
	if os.Getenv("INSIGHTIFY_ENV") == "" {
		os.Setenv("INSIGHTIFY_ENV", config.Test)
		config.Reset()
	}
}

// Open databases keyed by root test name, so subtests and setup closures
// that capture the outer t all land on the same database.
var (
	openDBs   = make(map[string]*gorm.DB)
	openDBsMu sync.Mutex
)

// TestDBManager satisfies cartridge.DBManager on top of a plain gorm handle.
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

var _ cartridge.DBManager = (*TestDBManager)(nil)

func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{TestDBManager: ctestsupport.NewTestDBManager(db)}
}

func rootTestName(t *testing.T) string {
	name := t.Name()
	if idx := strings.Index(name, "/"); idx > 0 {
		name = name[:idx]
	}
	return name
}

// SetupTestDB opens (or reuses) a named in-memory sqlite database for the
// current test with the full analytics schema migrated. cache=shared keeps
// every connection in the test on the same database; the unique name keeps
// parallel tests apart.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	key := rootTestName(t)

	openDBsMu.Lock()
	db, ok := openDBs[key]
	openDBsMu.Unlock()
	if ok {
		return db
	}

	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared",
		strings.ReplaceAll(key, "/", "_"), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "open test database")

	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	schema := []any{
		&projects.Project{},
		&tracking.PageView{},
		&tracking.Event{},
		&tracking.Session{},
		&heatmaps.HeatmapPoint{},
		&heatmaps.HeatmapPage{},
	}
	require.NoError(t, db.AutoMigrate(schema...), "migrate test schema")

	openDBsMu.Lock()
	openDBs[key] = db
	openDBsMu.Unlock()

	t.Cleanup(func() {
		openDBsMu.Lock()
		delete(openDBs, key)
		openDBsMu.Unlock()
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// SetupTestDBManager returns a cartridge-compatible manager and a quiet
// logger for the current test.
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	if cfg := config.GetConfig(); cfg.Environment != config.Test {
		t.Fatalf("tests require INSIGHTIFY_ENV=test, running under %q", cfg.Environment)
	}
	return NewTestDBManager(SetupTestDB(t)), GetLogger()
}

// SetupTestDBManagerWithProject creates a test DB manager with a test project
func SetupTestDBManagerWithProject(t *testing.T, domain string) (*TestDBManager, *slog.Logger, projects.Project) {
	dbManager, logger := SetupTestDBManager(t)
	project := CreateTestProject(t, dbManager.GetConnection(), domain)
	return dbManager, logger, project
}

// CreateTestProject creates a test project in the database
func CreateTestProject(t *testing.T, db *gorm.DB, domain string) projects.Project {
	t.Helper()

	var project projects.Project
	if db.Where("domain = ?", domain).First(&project).Error != nil {
		project = projects.Project{Name: domain, Domain: domain, CreatedAt: time.Now().UTC()}
		require.NoError(t, db.Create(&project).Error)
	}
	return project
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// CreateTestSession inserts a completed session row for stats tests
func CreateTestSession(t *testing.T, db *gorm.DB, projectID uint, sessionID string, start time.Time, pageViews int, duration time.Duration) tracking.Session {
	t.Helper()

	session := tracking.Session{
		ProjectID:     projectID,
		SessionID:     sessionID,
		StartTime:     start,
		PageViewCount: pageViews,
		DeviceType:    tracking.DeviceDesktop,
		Browser:       "Chrome",
		OS:            "Windows",
		CreatedAt:     start,
		UpdatedAt:     start,
	}
	if pageViews > 1 {
		end := start.Add(duration)
		session.EndTime = &end
	}
	require.NoError(t, db.Create(&session).Error)
	return session
}

// CreateTestPageView inserts a page view row directly, bypassing ingestion
func CreateTestPageView(t *testing.T, db *gorm.DB, projectID uint, sessionID, visitor, pageURL, referrer, device string, timestamp time.Time) tracking.PageView {
	t.Helper()

	if referrer == "" {
		referrer = tracking.DirectReferrer
	}
	pv := tracking.PageView{
		ProjectID:        projectID,
		SessionID:        sessionID,
		VisitorSignature: visitor,
		PageURL:          pageURL,
		Referrer:         referrer,
		UserAgent:        "Mozilla/5.0 Test Browser",
		DeviceType:       device,
		Browser:          "Chrome",
		OS:               "Windows",
		Timestamp:        timestamp,
		CreatedAt:        timestamp,
	}
	require.NoError(t, db.Create(&pv).Error)
	return pv
}

// PageViewInputForTest builds a minimal ingestion payload
func PageViewInputForTest(sessionID, pageURL, referrer string) tracking.PageViewInput {
	return tracking.PageViewInput{
		SessionID: sessionID,
		PageURL:   pageURL,
		Referrer:  referrer,
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		IPAddress: "192.168.1.10",
	}
}
