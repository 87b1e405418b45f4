// Package collector is the single entry point collaborators talk to. It
// sequences every ingest through store, presence and broadcast, and exposes
// the read queries without leaking storage details.
package collector

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"

	"insightify/internal/coreerrors"
	"insightify/internal/heatmaps"
	"insightify/internal/metrics"
	"insightify/internal/presence"
	"insightify/internal/realtime"
	"insightify/internal/stats"
	"insightify/internal/tracking"
)

// Collector wires the analytics core together. Construct one per process
// with New and share it; all methods are safe for concurrent use.
type Collector struct {
	dbManager cartridge.DBManager
	logger    *slog.Logger
	registry  *presence.Registry
	hub       *realtime.Hub
}

func New(dbManager cartridge.DBManager, logger *slog.Logger, registry *presence.Registry, hub *realtime.Hub) *Collector {
	hub.SetMetricsHooks(
		func() { metrics.BroadcastsPublished.Inc() },
		func() { metrics.BroadcastsDropped.Inc() },
	)
	return &Collector{
		dbManager: dbManager,
		logger:    logger,
		registry:  registry,
		hub:       hub,
	}
}

// Hub exposes the broadcast hub for transport handlers (SSE subscriptions).
func (c *Collector) Hub() *realtime.Hub { return c.hub }

// Registry exposes the presence registry for lifecycle management.
func (c *Collector) Registry() *presence.Registry { return c.registry }

// IngestPageViews stores a pageview batch, refreshes live presence for each
// session and broadcasts the activity. Presence and broadcast only happen
// after the store accepted the batch.
func (c *Collector) IngestPageViews(projectID uint, batch []tracking.PageViewInput) (int, error) {
	stored, err := tracking.AppendPageViews(c.dbManager, c.logger, projectID, batch)
	if err != nil {
		countRejected(err, "pageviews")
		return 0, err
	}
	if len(stored) == 0 {
		return 0, nil
	}

	for i := range stored {
		pv := &stored[i]
		c.registry.RecordPageView(projectID, pv.SessionID, pv.PageURL, pv.UserAgent, "", pv.Country)
		c.hub.PublishJSON(projectID, realtime.MessagePageView, map[string]any{
			"session_id": pv.SessionID,
			"page_url":   pv.PageURL,
			"referrer":   pv.Referrer,
			"device":     pv.DeviceType,
			"country":    pv.Country,
		})
	}
	c.publishLiveCount(projectID)

	metrics.PageViewsIngested.Add(float64(len(stored)))
	metrics.LiveVisitors.Set(float64(c.registry.TrackedCount()))
	return len(stored), nil
}

// IngestEvents stores a custom-event batch, touches presence for each
// session and broadcasts the activity.
func (c *Collector) IngestEvents(projectID uint, batch []tracking.EventInput) (int, error) {
	stored, err := tracking.AppendEvents(c.dbManager, c.logger, projectID, batch)
	if err != nil {
		countRejected(err, "events")
		return 0, err
	}
	if len(stored) == 0 {
		return 0, nil
	}

	for i := range stored {
		ev := &stored[i]
		c.registry.Touch(projectID, ev.SessionID)
		c.hub.PublishJSON(projectID, realtime.MessageEvent, map[string]any{
			"session_id": ev.SessionID,
			"event_type": ev.EventType,
			"page_url":   ev.PageURL,
		})
	}

	metrics.EventsIngested.Add(float64(len(stored)))
	return len(stored), nil
}

// IngestHeatmapPoints merges a heatmap batch and broadcasts a summary of it.
func (c *Collector) IngestHeatmapPoints(projectID uint, batch []heatmaps.PointInput) (int, error) {
	merged, err := heatmaps.AppendHeatmapPoints(c.dbManager, c.logger, projectID, batch)
	if err != nil {
		countRejected(err, "heatmap")
		return 0, err
	}
	if merged == 0 {
		return 0, nil
	}

	pages := make(map[string]int, 1)
	for i := range batch {
		pages[batch[i].PageURL]++
	}
	c.hub.PublishJSON(projectID, realtime.MessageHeatmapBatch, map[string]any{
		"points": merged,
		"pages":  pages,
	})

	metrics.HeatmapPointsIngested.Add(float64(merged))
	return merged, nil
}

func (c *Collector) publishLiveCount(projectID uint) {
	c.hub.PublishJSON(projectID, realtime.MessageLiveCount, map[string]any{
		"count": c.registry.LiveVisitorCount(projectID),
	})
}

func countRejected(err error, recordType string) {
	var validationErr *coreerrors.ValidationError
	if errors.As(err, &validationErr) {
		metrics.BatchesRejected.WithLabelValues(recordType).Inc()
	}
}

// --- Read side -----------------------------------------------------------

func (c *Collector) GetSummary(ctx context.Context, projectID uint, window stats.Window) (*stats.Summary, error) {
	return stats.GetSummary(ctx, c.dbManager, projectID, window)
}

func (c *Collector) GetTopPages(ctx context.Context, projectID uint, window stats.Window) ([]stats.PageStat, error) {
	return stats.GetTopPages(ctx, c.dbManager, projectID, window)
}

func (c *Collector) GetTrafficSources(ctx context.Context, projectID uint, window stats.Window) ([]stats.SourceStat, error) {
	return stats.GetTrafficSources(ctx, c.dbManager, projectID, window)
}

func (c *Collector) GetDeviceBreakdown(ctx context.Context, projectID uint, window stats.Window) ([]stats.DeviceStat, error) {
	return stats.GetDeviceBreakdown(ctx, c.dbManager, projectID, window)
}

func (c *Collector) GetTimeSeriesData(ctx context.Context, projectID uint, window stats.Window, granularity stats.Granularity) ([]stats.TimeBucket, error) {
	return stats.GetTimeSeriesData(ctx, c.dbManager, projectID, window, granularity)
}

func (c *Collector) GetHeatmapData(ctx context.Context, projectID uint, pageURL, heatmapType string) ([]heatmaps.AggregatedPoint, error) {
	return heatmaps.GetAggregatedByPage(ctx, c.dbManager, projectID, pageURL, heatmapType)
}

func (c *Collector) GetElementAnalysis(ctx context.Context, projectID uint, pageURL, heatmapType string) ([]heatmaps.ElementStat, error) {
	return heatmaps.GetElementAnalysis(ctx, c.dbManager, projectID, pageURL, heatmapType)
}

func (c *Collector) GetHeatmapProjectStats(ctx context.Context, projectID uint) (*heatmaps.ProjectStats, error) {
	return heatmaps.GetProjectStats(ctx, c.dbManager, projectID)
}

func (c *Collector) DeleteHeatmapPage(projectID uint, pageURL string) error {
	return heatmaps.DeleteHeatmapPage(c.dbManager, c.logger, projectID, pageURL)
}

func (c *Collector) GetRecentPageViews(ctx context.Context, projectID uint, since time.Time, limit int) ([]tracking.PageView, error) {
	return tracking.GetRecentPageViews(ctx, c.dbManager.GetConnection(), projectID, since, limit)
}

func (c *Collector) GetRecentEvents(ctx context.Context, projectID uint, since time.Time) ([]tracking.Event, error) {
	return tracking.GetRecentEvents(ctx, c.dbManager.GetConnection(), projectID, since)
}

func (c *Collector) GetExportData(ctx context.Context, projectID uint, recordType string, start, end time.Time) (any, error) {
	return tracking.GetExportData(ctx, c.dbManager.GetConnection(), projectID, recordType, start, end)
}

// LiveVisitors returns the current live visitors for a project.
func (c *Collector) LiveVisitors(projectID uint) []presence.LiveVisitor {
	return c.registry.LiveVisitors(projectID)
}

// LiveVisitorCount returns the number of live visitors for a project.
func (c *Collector) LiveVisitorCount(projectID uint) int {
	return c.registry.LiveVisitorCount(projectID)
}

// CleanOldData applies the retention window across pageviews, events,
// sessions and heatmap data. Returns total rows removed.
func (c *Collector) CleanOldData(daysToKeep int) (int64, error) {
	trackingRows, err := tracking.CleanOldData(c.dbManager, c.logger, daysToKeep)
	if err != nil {
		return trackingRows, err
	}
	heatmapRows, err := heatmaps.CleanOldData(c.dbManager, c.logger, daysToKeep)
	total := trackingRows + heatmapRows
	if total > 0 {
		metrics.RetentionRowsDeleted.Add(float64(total))
	}
	return total, err
}

// RefreshLiveGauge re-reads the presence registry so the live-visitor gauge
// follows expirations that happen between ingests.
func (c *Collector) RefreshLiveGauge() error {
	metrics.LiveVisitors.Set(float64(c.registry.TrackedCount()))
	return nil
}
