// Package stats computes read-side aggregates over persisted pageviews and
// sessions. Queries never mutate state and always return fully computed
// values for their inclusive [start, end] window; an empty window yields
// zero values, not an error.
package stats

import (
	"context"
	"math"
	"sort"

	"github.com/karloscodes/cartridge"

	"insightify/internal/coreerrors"
	"insightify/internal/pkg/referrers"
	"insightify/internal/tracking"
)

const topPagesLimit = 10

// Summary is the headline metric block for one project window.
type Summary struct {
	TotalPageViews             int64   `json:"total_page_views"`
	UniqueSessions             int64   `json:"unique_sessions"`
	UniqueVisitors             int64   `json:"unique_visitors"`
	BounceRate                 float64 `json:"bounce_rate"`
	AverageSessionDuration     int64   `json:"average_session_duration"`
	AveragePageViewsPerSession float64 `json:"average_page_views_per_session"`
}

// PageStat is one row of the top-pages report.
type PageStat struct {
	PageURL  string `json:"page_url"`
	Views    int64  `json:"views"`
	Sessions int64  `json:"sessions"`
}

// SourceStat is one row of the traffic-sources report.
type SourceStat struct {
	Source   string `json:"source"`
	Visitors int64  `json:"visitors"`
}

// DeviceStat is one row of the device breakdown. Percentages are rounded
// independently and may not total exactly 100.
type DeviceStat struct {
	DeviceType string `json:"device_type"`
	Sessions   int64  `json:"sessions"`
	Percentage int    `json:"percentage"`
}

// GetSummary computes the headline metrics for a window. Sessions belong to
// the window when their start time falls inside it; a bounce is a session
// with exactly one pageview, and duration averages skip sessions that never
// saw a second pageview.
func GetSummary(ctx context.Context, dbManager cartridge.DBManager, projectID uint, window Window) (*Summary, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}
	db := dbManager.GetConnection().WithContext(ctx)

	summary := &Summary{}

	err := db.Model(&tracking.PageView{}).
		Where("project_id = ? AND timestamp >= ? AND timestamp <= ?", projectID, window.Start, window.End).
		Count(&summary.TotalPageViews).Error
	if err != nil {
		return nil, coreerrors.FromDBError("summary pageview count", err)
	}

	err = db.Model(&tracking.PageView{}).
		Where("project_id = ? AND timestamp >= ? AND timestamp <= ?", projectID, window.Start, window.End).
		Distinct("visitor_signature").
		Count(&summary.UniqueVisitors).Error
	if err != nil {
		return nil, coreerrors.FromDBError("summary visitor count", err)
	}

	var sessionAgg struct {
		Sessions      int64
		Bounces       int64
		EndedSessions int64
		TotalSeconds  float64
	}
	err = db.Model(&tracking.Session{}).
		Select(`COUNT(*) as sessions,
			COALESCE(SUM(CASE WHEN page_view_count = 1 THEN 1 ELSE 0 END), 0) as bounces,
			COALESCE(SUM(CASE WHEN end_time IS NOT NULL THEN 1 ELSE 0 END), 0) as ended_sessions,
			COALESCE(SUM(CASE WHEN end_time IS NOT NULL THEN (julianday(end_time) - julianday(start_time)) * 86400.0 ELSE 0 END), 0) as total_seconds`).
		Where("project_id = ? AND start_time >= ? AND start_time <= ?", projectID, window.Start, window.End).
		Scan(&sessionAgg).Error
	if err != nil {
		return nil, coreerrors.FromDBError("summary session aggregates", err)
	}

	summary.UniqueSessions = sessionAgg.Sessions
	if sessionAgg.Sessions > 0 {
		summary.BounceRate = round2(float64(sessionAgg.Bounces) / float64(sessionAgg.Sessions) * 100)
		// Derived from the reported fields so the summary stays internally
		// consistent even when a session straddles the window boundary.
		summary.AveragePageViewsPerSession = round2(float64(summary.TotalPageViews) / float64(summary.UniqueSessions))
	}
	if sessionAgg.EndedSessions > 0 {
		summary.AverageSessionDuration = int64(math.Round(sessionAgg.TotalSeconds / float64(sessionAgg.EndedSessions)))
	}

	return summary, nil
}

// GetTopPages returns up to 10 pages ordered by views, URL as a stable
// tiebreak.
func GetTopPages(ctx context.Context, dbManager cartridge.DBManager, projectID uint, window Window) ([]PageStat, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}

	var pages []PageStat
	err := dbManager.GetConnection().WithContext(ctx).
		Model(&tracking.PageView{}).
		Select("page_url, COUNT(*) as views, COUNT(DISTINCT session_id) as sessions").
		Where("project_id = ? AND timestamp >= ? AND timestamp <= ?", projectID, window.Start, window.End).
		Group("page_url").
		Order("views DESC, page_url ASC").
		Limit(topPagesLimit).
		Scan(&pages).Error
	if err != nil {
		return nil, coreerrors.FromDBError("top pages", err)
	}
	return pages, nil
}

// GetTrafficSources classifies each distinct visitor's referrers and counts
// visitors per source, busiest first. Classification happens here rather
// than in SQL so rules live in one place.
func GetTrafficSources(ctx context.Context, dbManager cartridge.DBManager, projectID uint, window Window) ([]SourceStat, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}

	var rows []struct {
		Referrer         string
		VisitorSignature string
	}
	err := dbManager.GetConnection().WithContext(ctx).
		Model(&tracking.PageView{}).
		Distinct("referrer", "visitor_signature").
		Where("project_id = ? AND timestamp >= ? AND timestamp <= ?", projectID, window.Start, window.End).
		Scan(&rows).Error
	if err != nil {
		return nil, coreerrors.FromDBError("traffic sources", err)
	}

	// Distinct referrers can collapse into one source, so dedupe per
	// (visitor, source) rather than summing per-referrer counts.
	type visitorSource struct {
		visitor string
		source  string
	}
	seen := make(map[visitorSource]bool)
	bySource := make(map[string]int64)
	for _, r := range rows {
		key := visitorSource{visitor: r.VisitorSignature, source: referrers.Classify(r.Referrer)}
		if seen[key] {
			continue
		}
		seen[key] = true
		bySource[key.source]++
	}

	sources := make([]SourceStat, 0, len(bySource))
	for source, visitors := range bySource {
		sources = append(sources, SourceStat{Source: source, Visitors: visitors})
	}
	sort.Slice(sources, func(i, j int) bool {
		if sources[i].Visitors != sources[j].Visitors {
			return sources[i].Visitors > sources[j].Visitors
		}
		return sources[i].Source < sources[j].Source
	})
	return sources, nil
}

// GetDeviceBreakdown returns session counts per device type with integer
// percentages of the window total.
func GetDeviceBreakdown(ctx context.Context, dbManager cartridge.DBManager, projectID uint, window Window) ([]DeviceStat, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}

	var devices []DeviceStat
	err := dbManager.GetConnection().WithContext(ctx).
		Model(&tracking.Session{}).
		Select("device_type, COUNT(*) as sessions").
		Where("project_id = ? AND start_time >= ? AND start_time <= ?", projectID, window.Start, window.End).
		Group("device_type").
		Order("sessions DESC").
		Scan(&devices).Error
	if err != nil {
		return nil, coreerrors.FromDBError("device breakdown", err)
	}

	var total int64
	for i := range devices {
		total += devices[i].Sessions
	}
	if total > 0 {
		for i := range devices {
			devices[i].Percentage = int(math.Round(float64(devices[i].Sessions) / float64(total) * 100))
		}
	}
	return devices, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
