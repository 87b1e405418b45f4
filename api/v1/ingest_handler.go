// Package v1 exposes the public ingestion and query API of the analytics
// core. Handlers stay thin: parse, delegate to the collector, map errors.
package v1

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"insightify/internal/collector"
	"insightify/internal/heatmaps"
	"insightify/internal/projects"
	"insightify/internal/tracking"
)

// API bundles the handlers around one collector instance.
type API struct {
	collector *collector.Collector
}

func NewAPI(c *collector.Collector) *API {
	return &API{collector: c}
}

// PageViewParams mirrors the tracking snippet's pageview payload.
type PageViewParams struct {
	SessionID string    `json:"sessionId"`
	PageURL   string    `json:"pageUrl"`
	Referrer  string    `json:"referrer"`
	UserAgent string    `json:"userAgent"`
	Timestamp time.Time `json:"timestamp"`
}

// EventParams mirrors the tracking snippet's custom-event payload.
type EventParams struct {
	SessionID string         `json:"sessionId"`
	EventType string         `json:"eventType"`
	Payload   map[string]any `json:"payload"`
	PageURL   string         `json:"pageUrl"`
	Timestamp time.Time      `json:"timestamp"`
}

// HeatmapPointParams mirrors the tracking snippet's heatmap payload.
type HeatmapPointParams struct {
	PageURL         string `json:"pageUrl"`
	HeatmapType     string `json:"heatmapType"`
	X               int    `json:"x"`
	Y               int    `json:"y"`
	Count           int    `json:"count"`
	ElementSelector string `json:"elementSelector"`
	ElementText     string `json:"elementText"`
}

// resolveProject verifies the project exists before any write.
func (a *API) resolveProject(ctx *cartridge.Context) (*projects.Project, error) {
	projectID, err := parseProjectID(ctx.Ctx)
	if err != nil {
		return nil, err
	}
	return projects.GetProjectByID(ctx.DBManager.GetConnection(), projectID)
}

// CreatePageViewsHandler ingests a pageview batch.
func (a *API) CreatePageViewsHandler(ctx *cartridge.Context) error {
	project, err := a.resolveProject(ctx)
	if err != nil {
		return handleError(ctx.Ctx, err)
	}

	var body struct {
		PageViews []PageViewParams `json:"pageViews"`
	}
	if err := ctx.Ctx.BodyParser(&body); err != nil {
		return handleError(ctx.Ctx, fiber.NewError(http.StatusBadRequest, errInvalidRequest))
	}

	clientIP := getClientIP(ctx.Ctx)
	fallbackUA := ctx.Get("User-Agent")

	batch := make([]tracking.PageViewInput, 0, len(body.PageViews))
	for _, p := range body.PageViews {
		userAgent := p.UserAgent
		if userAgent == "" {
			userAgent = fallbackUA
		}
		batch = append(batch, tracking.PageViewInput{
			SessionID: p.SessionID,
			PageURL:   p.PageURL,
			Referrer:  p.Referrer,
			UserAgent: userAgent,
			IPAddress: clientIP,
			Timestamp: p.Timestamp,
		})
	}

	stored, err := a.collector.IngestPageViews(project.ID, batch)
	if err != nil {
		ctx.Logger.Error("Failed to ingest pageviews", slog.Any("error", err))
		return handleError(ctx.Ctx, err)
	}

	return ctx.Status(http.StatusAccepted).JSON(fiber.Map{"stored": stored})
}

// CreateEventsHandler ingests a custom-event batch.
func (a *API) CreateEventsHandler(ctx *cartridge.Context) error {
	project, err := a.resolveProject(ctx)
	if err != nil {
		return handleError(ctx.Ctx, err)
	}

	var body struct {
		Events []EventParams `json:"events"`
	}
	if err := ctx.Ctx.BodyParser(&body); err != nil {
		return handleError(ctx.Ctx, fiber.NewError(http.StatusBadRequest, errInvalidRequest))
	}

	batch := make([]tracking.EventInput, 0, len(body.Events))
	for _, e := range body.Events {
		batch = append(batch, tracking.EventInput{
			SessionID: e.SessionID,
			EventType: e.EventType,
			Payload:   e.Payload,
			PageURL:   e.PageURL,
			Timestamp: e.Timestamp,
		})
	}

	stored, err := a.collector.IngestEvents(project.ID, batch)
	if err != nil {
		ctx.Logger.Error("Failed to ingest events", slog.Any("error", err))
		return handleError(ctx.Ctx, err)
	}

	return ctx.Status(http.StatusAccepted).JSON(fiber.Map{"stored": stored})
}

// CreateHeatmapPointsHandler ingests a heatmap observation batch.
func (a *API) CreateHeatmapPointsHandler(ctx *cartridge.Context) error {
	project, err := a.resolveProject(ctx)
	if err != nil {
		return handleError(ctx.Ctx, err)
	}

	var body struct {
		Points []HeatmapPointParams `json:"points"`
	}
	if err := ctx.Ctx.BodyParser(&body); err != nil {
		return handleError(ctx.Ctx, fiber.NewError(http.StatusBadRequest, errInvalidRequest))
	}

	batch := make([]heatmaps.PointInput, 0, len(body.Points))
	for _, p := range body.Points {
		batch = append(batch, heatmaps.PointInput{
			PageURL:         p.PageURL,
			HeatmapType:     p.HeatmapType,
			X:               p.X,
			Y:               p.Y,
			Count:           p.Count,
			ElementSelector: p.ElementSelector,
			ElementText:     p.ElementText,
		})
	}

	merged, err := a.collector.IngestHeatmapPoints(project.ID, batch)
	if err != nil {
		ctx.Logger.Error("Failed to ingest heatmap points", slog.Any("error", err))
		return handleError(ctx.Ctx, err)
	}

	return ctx.Status(http.StatusAccepted).JSON(fiber.Map{"merged": merged})
}
