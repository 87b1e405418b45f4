package tracking

import (
	"context"
	"time"

	"gorm.io/gorm"

	"insightify/internal/coreerrors"
)

// Export record types accepted by GetExportData.
const (
	ExportPageViews = "pageviews"
	ExportEvents    = "events"
	ExportSessions  = "sessions"
)

// GetRecentPageViews returns pageviews since the given time, newest first,
// capped at limit. A limit <= 0 falls back to 100.
func GetRecentPageViews(ctx context.Context, db *gorm.DB, projectID uint, since time.Time, limit int) ([]PageView, error) {
	if limit <= 0 {
		limit = 100
	}

	var pageViews []PageView
	err := db.WithContext(ctx).
		Where("project_id = ? AND timestamp >= ?", projectID, since).
		Order("timestamp DESC").
		Limit(limit).
		Find(&pageViews).Error
	if err != nil {
		return nil, coreerrors.FromDBError("recent pageviews query", err)
	}
	return pageViews, nil
}

// GetRecentEvents returns events since the given time, newest first.
func GetRecentEvents(ctx context.Context, db *gorm.DB, projectID uint, since time.Time) ([]Event, error) {
	var events []Event
	err := db.WithContext(ctx).
		Where("project_id = ? AND timestamp >= ?", projectID, since).
		Order("timestamp DESC").
		Find(&events).Error
	if err != nil {
		return nil, coreerrors.FromDBError("recent events query", err)
	}
	return events, nil
}

// GetExportData returns the raw rows of one record type inside an inclusive
// window. Serialization to CSV/JSON belongs to the caller.
func GetExportData(ctx context.Context, db *gorm.DB, projectID uint, recordType string, start, end time.Time) (any, error) {
	scoped := db.WithContext(ctx)

	switch recordType {
	case ExportPageViews:
		var rows []PageView
		err := scoped.
			Where("project_id = ? AND timestamp >= ? AND timestamp <= ?", projectID, start, end).
			Order("timestamp ASC").
			Find(&rows).Error
		if err != nil {
			return nil, coreerrors.FromDBError("export pageviews query", err)
		}
		return rows, nil
	case ExportEvents:
		var rows []Event
		err := scoped.
			Where("project_id = ? AND timestamp >= ? AND timestamp <= ?", projectID, start, end).
			Order("timestamp ASC").
			Find(&rows).Error
		if err != nil {
			return nil, coreerrors.FromDBError("export events query", err)
		}
		return rows, nil
	case ExportSessions:
		var rows []Session
		err := scoped.
			Where("project_id = ? AND start_time >= ? AND start_time <= ?", projectID, start, end).
			Order("start_time ASC").
			Find(&rows).Error
		if err != nil {
			return nil, coreerrors.FromDBError("export sessions query", err)
		}
		return rows, nil
	default:
		return nil, coreerrors.NewValidationError("recordType", "must be pageviews, events or sessions")
	}
}
