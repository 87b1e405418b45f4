package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insightify/internal/collector"
	"insightify/internal/config"
	"insightify/internal/presence"
	"insightify/internal/realtime"
	"insightify/internal/testsupport"
)

func newTestApp(t *testing.T, domain string) (*fiber.App, uint) {
	t.Helper()

	db := testsupport.SetupTestDB(t)
	dbManager := testsupport.NewTestDBManager(db)
	logger := testsupport.GetLogger()
	project := testsupport.CreateTestProject(t, db, domain)

	registry := presence.NewRegistry(logger, 5*time.Minute, 10*time.Minute, 5*time.Minute)
	hub := realtime.NewHub(logger, 16)
	core := collector.New(dbManager, logger, registry, hub)

	appConfig := config.GetConfig()
	appConfig.Environment = config.Test

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = appConfig
	cfg.Logger = logger
	cfg.DBManager = dbManager

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	MountRoutes(core)(srv)
	return srv.App(), project.ID
}

func TestIngestAndSummaryRoundTrip(t *testing.T) {
	app, projectID := newTestApp(t, "roundtrip.example.com")

	body, err := json.Marshal(map[string]any{
		"pageViews": []map[string]any{
			{"sessionId": "sess-1", "pageUrl": "/home", "referrer": "https://google.com"},
			{"sessionId": "sess-1", "pageUrl": "/pricing"},
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(fiber.MethodPost,
		fmt.Sprintf("/api/v1/projects/%d/pageviews", projectID), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0")

	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	// The pair of pageviews becomes one session with two views.
	req = httptest.NewRequest(fiber.MethodGet,
		fmt.Sprintf("/api/v1/projects/%d/summary", projectID), nil)
	resp, err = app.Test(req, 5000)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var summary struct {
		TotalPageViews int64   `json:"total_page_views"`
		UniqueSessions int64   `json:"unique_sessions"`
		BounceRate     float64 `json:"bounce_rate"`
	}
	raw, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(raw, &summary))
	assert.Equal(t, int64(2), summary.TotalPageViews)
	assert.Equal(t, int64(1), summary.UniqueSessions)
	assert.Equal(t, float64(0), summary.BounceRate)

	// Live presence sees the session too.
	req = httptest.NewRequest(fiber.MethodGet,
		fmt.Sprintf("/api/v1/projects/%d/live", projectID), nil)
	resp, err = app.Test(req, 5000)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var live struct {
		Count int `json:"count"`
	}
	raw, _ = io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(raw, &live))
	assert.Equal(t, 1, live.Count)
}

func TestIngestValidationReturnsBadRequest(t *testing.T) {
	app, projectID := newTestApp(t, "badrequest.example.com")

	body, _ := json.Marshal(map[string]any{
		"pageViews": []map[string]any{
			{"sessionId": "", "pageUrl": "/home"},
		},
	})
	req := httptest.NewRequest(fiber.MethodPost,
		fmt.Sprintf("/api/v1/projects/%d/pageviews", projectID), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestUnknownProjectReturnsNotFound(t *testing.T) {
	app, _ := newTestApp(t, "notfound.example.com")

	body, _ := json.Marshal(map[string]any{"pageViews": []map[string]any{}})
	req := httptest.NewRequest(fiber.MethodPost,
		"/api/v1/projects/424242/pageviews", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestHeatmapIngestAndQuery(t *testing.T) {
	app, projectID := newTestApp(t, "heatmaproute.example.com")

	body, _ := json.Marshal(map[string]any{
		"points": []map[string]any{
			{"pageUrl": "/landing", "heatmapType": "click", "x": 10, "y": 20, "count": 3},
			{"pageUrl": "/landing", "heatmapType": "click", "x": 10, "y": 20, "count": 2},
		},
	})
	req := httptest.NewRequest(fiber.MethodPost,
		fmt.Sprintf("/api/v1/projects/%d/heatmap", projectID), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	req = httptest.NewRequest(fiber.MethodGet,
		fmt.Sprintf("/api/v1/projects/%d/heatmap?page=/landing&type=click", projectID), nil)
	resp, err = app.Test(req, 5000)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var result struct {
		Points []struct {
			X     int   `json:"x"`
			Y     int   `json:"y"`
			Count int64 `json:"count"`
		} `json:"points"`
	}
	raw, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(raw, &result))
	require.Len(t, result.Points, 1)
	assert.Equal(t, int64(5), result.Points[0].Count)
}

func TestHealthRoute(t *testing.T) {
	app, _ := newTestApp(t, "health.example.com")

	req := httptest.NewRequest(fiber.MethodGet, "/_health", nil)
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["storage"])
}
