// Package internal wires the analytics core into its HTTP surface.
package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	v1 "insightify/api/v1"
	"insightify/internal/collector"
	"insightify/internal/config"
	"insightify/internal/http"
)

// publicCORSConfig is shared by all public endpoints; the tracking snippet
// runs on arbitrary origins.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,DELETE,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization, Referrer, User-Agent",
}

// MountRoutes returns the route mount function for the given collector.
func MountRoutes(c *collector.Collector) func(*cartridge.Server) {
	return func(srv *cartridge.Server) {
		cfg := config.GetConfig()
		api := v1.NewAPI(c)

		// Rate limiting only in production; it would interfere with tests.
		conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
			return func(fc *fiber.Ctx) error {
				if cfg.IsProduction() {
					return limiter(fc)
				}
				return fc.Next()
			}
		}

		// 120/min per IP absorbs batched snippet traffic while capping abuse.
		ingestRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
			cartridgemiddleware.WithMax(120),
			cartridgemiddleware.WithDuration(time.Minute),
		))

		publicAPIConfig := &cartridge.RouteConfig{
			EnableCORS:       true,
			WriteConcurrency: false,
			CustomMiddleware: []fiber.Handler{ingestRateLimiter},
			CORSConfig:       publicCORSConfig,
		}

		queryAPIConfig := &cartridge.RouteConfig{
			EnableCORS: true,
			CORSConfig: publicCORSConfig,
		}

		// === HEALTH ===
		srv.Get("/_health", http.HealthIndexAction)
		srv.Head("/_health", http.HealthIndexAction)

		// === INGESTION ===
		srv.Post("/api/v1/projects/:id/pageviews", api.CreatePageViewsHandler, publicAPIConfig)
		srv.Post("/api/v1/projects/:id/events", api.CreateEventsHandler, publicAPIConfig)
		srv.Post("/api/v1/projects/:id/heatmap", api.CreateHeatmapPointsHandler, publicAPIConfig)
		for _, path := range []string{
			"/api/v1/projects/:id/pageviews",
			"/api/v1/projects/:id/events",
			"/api/v1/projects/:id/heatmap",
		} {
			srv.Options(path, func(ctx *cartridge.Context) error {
				return ctx.SendStatus(fiber.StatusNoContent)
			}, publicAPIConfig)
		}

		// === QUERIES ===
		srv.Get("/api/v1/projects/:id/summary", api.GetSummaryHandler, queryAPIConfig)
		srv.Get("/api/v1/projects/:id/top-pages", api.GetTopPagesHandler, queryAPIConfig)
		srv.Get("/api/v1/projects/:id/traffic-sources", api.GetTrafficSourcesHandler, queryAPIConfig)
		srv.Get("/api/v1/projects/:id/devices", api.GetDeviceBreakdownHandler, queryAPIConfig)
		srv.Get("/api/v1/projects/:id/timeseries", api.GetTimeSeriesHandler, queryAPIConfig)
		srv.Get("/api/v1/projects/:id/heatmap", api.GetHeatmapHandler, queryAPIConfig)
		srv.Get("/api/v1/projects/:id/heatmap/elements", api.GetElementAnalysisHandler, queryAPIConfig)
		srv.Get("/api/v1/projects/:id/heatmap/stats", api.GetHeatmapStatsHandler, queryAPIConfig)
		srv.Delete("/api/v1/projects/:id/heatmap", api.DeleteHeatmapPageHandler, queryAPIConfig)
		srv.Get("/api/v1/projects/:id/live", api.GetLiveHandler, queryAPIConfig)
		srv.Get("/api/v1/projects/:id/recent", api.GetRecentHandler, queryAPIConfig)
		srv.Get("/api/v1/projects/:id/export", api.GetExportHandler, queryAPIConfig)

		// === REAL-TIME STREAM ===
		srv.Get("/api/v1/projects/:id/stream", api.StreamHandler, queryAPIConfig)

		// === METRICS ===
		metricsHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
		srv.Get("/metrics", func(ctx *cartridge.Context) error {
			metricsHandler(ctx.Ctx.Context())
			return nil
		})
	}
}
