package stats

import (
	"context"
	"strings"
	"time"

	"github.com/karloscodes/cartridge"

	"insightify/internal/coreerrors"
	"insightify/internal/tracking"
)

// Granularity selects the bucket size for time-series queries.
type Granularity string

const (
	GranularityHour  Granularity = "hour"
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// Window is an inclusive [Start, End] query range.
type Window struct {
	Start time.Time
	End   time.Time
}

// Validate rejects inverted windows.
func (w Window) Validate() error {
	if w.End.Before(w.Start) {
		return coreerrors.NewValidationError("window", "end must not precede start")
	}
	return nil
}

// TimeBucket is one point of a time series. Buckets with no traffic are
// present with zero counts.
type TimeBucket struct {
	Bucket         string `json:"bucket"`
	PageViews      int64  `json:"page_views"`
	UniqueSessions int64  `json:"unique_sessions"`
}

// sqliteGroupExpr returns the strftime grouping expression for a bucket
// size. Weeks snap to Monday.
func (g Granularity) sqliteGroupExpr() (string, bool) {
	switch g {
	case GranularityHour:
		return "strftime('%Y-%m-%d %H:00', timestamp)", true
	case GranularityDay:
		return "strftime('%Y-%m-%d', timestamp)", true
	case GranularityWeek:
		return "date(timestamp, 'start of day', '-' || ((strftime('%w', timestamp) + 6) % 7) || ' days')", true
	case GranularityMonth:
		return "strftime('%Y-%m', timestamp)", true
	}
	return "", false
}

func (g Granularity) goFormat() string {
	switch g {
	case GranularityHour:
		return "2006-01-02 15:04"
	case GranularityDay, GranularityWeek:
		return "2006-01-02"
	case GranularityMonth:
		return "2006-01"
	}
	return "2006-01-02"
}

// truncate snaps t to the start of its bucket.
func (g Granularity) truncate(t time.Time) time.Time {
	t = t.UTC()
	switch g {
	case GranularityHour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	case GranularityDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case GranularityWeek:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7 // Monday start
		return day.AddDate(0, 0, -offset)
	case GranularityMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return t
}

func (g Granularity) next(t time.Time) time.Time {
	switch g {
	case GranularityHour:
		return t.Add(time.Hour)
	case GranularityDay:
		return t.AddDate(0, 0, 1)
	case GranularityWeek:
		return t.AddDate(0, 0, 7)
	case GranularityMonth:
		return t.AddDate(0, 1, 0)
	}
	return t.AddDate(0, 0, 1)
}

// maxBuckets caps zero-fill expansion so a sloppy caller cannot ask for a
// decade of hourly points.
const maxBuckets = 1000

// GetTimeSeriesData buckets pageview traffic by the requested granularity
// and zero-fills every bucket across the window, so charts never have gaps.
func GetTimeSeriesData(ctx context.Context, dbManager cartridge.DBManager, projectID uint, window Window, granularity Granularity) ([]TimeBucket, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}
	groupExpr, ok := granularity.sqliteGroupExpr()
	if !ok {
		return nil, coreerrors.NewValidationError("granularity", "must be hour, day, week or month")
	}

	var rows []struct {
		Bucket         string
		PageViews      int64
		UniqueSessions int64
	}
	err := dbManager.GetConnection().WithContext(ctx).
		Model(&tracking.PageView{}).
		Select(groupExpr + " as bucket, COUNT(*) as page_views, COUNT(DISTINCT session_id) as unique_sessions").
		Where("project_id = ? AND timestamp >= ? AND timestamp <= ?", projectID, window.Start, window.End).
		Group("bucket").
		Order("bucket ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, coreerrors.FromDBError("time series", err)
	}

	counted := make(map[string]TimeBucket, len(rows))
	for _, r := range rows {
		// Week grouping comes back as a full date string; normalize to the
		// same label the zero-fill produces.
		key := strings.TrimSpace(r.Bucket)
		counted[key] = TimeBucket{Bucket: key, PageViews: r.PageViews, UniqueSessions: r.UniqueSessions}
	}

	format := granularity.goFormat()
	series := make([]TimeBucket, 0, len(rows))
	for cursor := granularity.truncate(window.Start); !cursor.After(window.End) && len(series) < maxBuckets; cursor = granularity.next(cursor) {
		label := cursor.Format(format)
		if bucket, ok := counted[label]; ok {
			series = append(series, bucket)
		} else {
			series = append(series, TimeBucket{Bucket: label})
		}
	}
	return series, nil
}
