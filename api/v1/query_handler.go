package v1

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"insightify/internal/heatmaps"
	"insightify/internal/stats"
)

// GetSummaryHandler returns the headline metrics for a window.
func (a *API) GetSummaryHandler(ctx *cartridge.Context) error {
	project, err := a.resolveProject(ctx)
	if err != nil {
		return handleError(ctx.Ctx, err)
	}
	window, err := parseWindow(ctx.Ctx)
	if err != nil {
		return handleError(ctx.Ctx, err)
	}

	summary, err := a.collector.GetSummary(ctx.Ctx.Context(), project.ID, window)
	if err != nil {
		return handleError(ctx.Ctx, err)
	}
	return ctx.JSON(summary)
}

// GetTopPagesHandler returns up to ten pages ordered by views.
func (a *API) GetTopPagesHandler(ctx *cartridge.Context) error {
	project, err := a.resolveProject(ctx)
	if err != nil {
		return handleError(ctx.Ctx, err)
	}
	window, err := parseWindow(ctx.Ctx)
	if err != nil {
		return handleError(ctx.Ctx, err)
	}

	pages, err := a.collector.GetTopPages(ctx.Ctx.Context(), project.ID, window)
	if err != nil {
		return handleError(ctx.Ctx, err)
	}
	return ctx.JSON(fiber.Map{"pages": pages})
}

// GetTrafficSourcesHandler returns visitor counts per classified source.
func (a *API) GetTrafficSourcesHandler(ctx *cartridge.Context) error {
	project, err := a.resolveProject(ctx)
	if err != nil {
		return handleError(ctx.Ctx, err)
	}
	window, err := parseWindow(ctx.Ctx)
	if err != nil {
		return handleError(ctx.Ctx, err)
	}

	sources, err := a.collector.GetTrafficSources(ctx.Ctx.Context(), project.ID, window)
	if err != nil {
		return handleError(ctx.Ctx, err)
	}
	return ctx.JSON(fiber.Map{"sources": sources})
}

// GetDeviceBreakdownHandler returns session counts per device type.
func (a *API) GetDeviceBreakdownHandler(ctx *cartridge.Context) error {
	project, err := a.resolveProject(ctx)
	if err != nil {
		return handleError(ctx.Ctx, err)
	}
	window, err := parseWindow(ctx.Ctx)
	if err != nil {
		return handleError(ctx.Ctx, err)
	}

	devices, err := a.collector.GetDeviceBreakdown(ctx.Ctx.Context(), project.ID, window)
	if err != nil {
		return handleError(ctx.Ctx, err)
	}
	return ctx.JSON(fiber.Map{"devices": devices})
}

// GetTimeSeriesHandler returns zero-filled traffic buckets.
func (a *API) GetTimeSeriesHandler(ctx *cartridge.Context) error {
	project, err := a.resolveProject(ctx)
	if err != nil {
		return handleError(ctx.Ctx, err)
	}
	window, err := parseWindow(ctx.Ctx)
	if err != nil {
		return handleError(ctx.Ctx, err)
	}

	granularity := stats.Granularity(ctx.Query("granularity", string(stats.GranularityDay)))
	series, err := a.collector.GetTimeSeriesData(ctx.Ctx.Context(), project.ID, window, granularity)
	if err != nil {
		return handleError(ctx.Ctx, err)
	}
	return ctx.JSON(fiber.Map{"series": series})
}

// GetHeatmapHandler returns aggregated coordinates for one page and type.
func (a *API) GetHeatmapHandler(ctx *cartridge.Context) error {
	project, err := a.resolveProject(ctx)
	if err != nil {
		return handleError(ctx.Ctx, err)
	}

	pageURL := ctx.Query("page")
	heatmapType := ctx.Query("type", heatmaps.TypeClick)
	points, err := a.collector.GetHeatmapData(ctx.Ctx.Context(), project.ID, pageURL, heatmapType)
	if err != nil {
		return handleError(ctx.Ctx, err)
	}
	return ctx.JSON(fiber.Map{"points": points})
}

// GetElementAnalysisHandler returns per-element activity totals.
func (a *API) GetElementAnalysisHandler(ctx *cartridge.Context) error {
	project, err := a.resolveProject(ctx)
	if err != nil {
		return handleError(ctx.Ctx, err)
	}

	elements, err := a.collector.GetElementAnalysis(ctx.Ctx.Context(), project.ID,
		ctx.Query("page"), ctx.Query("type", heatmaps.TypeClick))
	if err != nil {
		return handleError(ctx.Ctx, err)
	}
	return ctx.JSON(fiber.Map{"elements": elements})
}

// GetHeatmapStatsHandler returns project-wide heatmap totals.
func (a *API) GetHeatmapStatsHandler(ctx *cartridge.Context) error {
	project, err := a.resolveProject(ctx)
	if err != nil {
		return handleError(ctx.Ctx, err)
	}

	projectStats, err := a.collector.GetHeatmapProjectStats(ctx.Ctx.Context(), project.ID)
	if err != nil {
		return handleError(ctx.Ctx, err)
	}
	if projectStats == nil {
		return ctx.JSON(fiber.Map{"stats": nil})
	}
	return ctx.JSON(fiber.Map{"stats": projectStats})
}

// DeleteHeatmapPageHandler removes one page's heatmap data.
func (a *API) DeleteHeatmapPageHandler(ctx *cartridge.Context) error {
	project, err := a.resolveProject(ctx)
	if err != nil {
		return handleError(ctx.Ctx, err)
	}

	if err := a.collector.DeleteHeatmapPage(project.ID, ctx.Query("page")); err != nil {
		return handleError(ctx.Ctx, err)
	}
	return ctx.SendStatus(http.StatusNoContent)
}

// GetLiveHandler returns the current live visitors.
func (a *API) GetLiveHandler(ctx *cartridge.Context) error {
	project, err := a.resolveProject(ctx)
	if err != nil {
		return handleError(ctx.Ctx, err)
	}

	visitors := a.collector.LiveVisitors(project.ID)
	return ctx.JSON(fiber.Map{
		"count":    len(visitors),
		"visitors": visitors,
	})
}

// GetRecentHandler returns recent raw pageviews for debugging dashboards.
func (a *API) GetRecentHandler(ctx *cartridge.Context) error {
	project, err := a.resolveProject(ctx)
	if err != nil {
		return handleError(ctx.Ctx, err)
	}

	since := time.Now().UTC().Add(-time.Hour)
	if raw := ctx.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err == nil {
			since = parsed
		}
	}
	limit, _ := strconv.Atoi(ctx.Query("limit", "100"))

	pageViews, err := a.collector.GetRecentPageViews(ctx.Ctx.Context(), project.ID, since, limit)
	if err != nil {
		return handleError(ctx.Ctx, err)
	}
	return ctx.JSON(fiber.Map{"page_views": pageViews})
}

// GetExportHandler returns raw rows of one record type for a window.
func (a *API) GetExportHandler(ctx *cartridge.Context) error {
	project, err := a.resolveProject(ctx)
	if err != nil {
		return handleError(ctx.Ctx, err)
	}
	window, err := parseWindow(ctx.Ctx)
	if err != nil {
		return handleError(ctx.Ctx, err)
	}

	recordType := ctx.Query("type", "pageviews")
	data, err := a.collector.GetExportData(ctx.Ctx.Context(), project.ID, recordType, window.Start, window.End)
	if err != nil {
		return handleError(ctx.Ctx, err)
	}
	return ctx.JSON(fiber.Map{"record_type": recordType, "data": data})
}
