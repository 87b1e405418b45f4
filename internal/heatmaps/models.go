package heatmaps

import "time"

// Heatmap types
const (
	TypeClick  = "click"
	TypeScroll = "scroll"
	TypeMove   = "move"
)

// HeatmapPoint is one aggregated observation at a screen coordinate. At most
// one row exists per (project, page, x, y, type); new observations increment
// Count via merge-on-conflict instead of inserting.
type HeatmapPoint struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"`
	ProjectID       uint   `gorm:"uniqueIndex:idx_heatmap_point_unique;not null"`
	PageURL         string `gorm:"uniqueIndex:idx_heatmap_point_unique;not null"`
	HeatmapType     string `gorm:"uniqueIndex:idx_heatmap_point_unique;not null"`
	X               int    `gorm:"uniqueIndex:idx_heatmap_point_unique;not null"`
	Y               int    `gorm:"uniqueIndex:idx_heatmap_point_unique;not null"`
	Count           int    `gorm:"not null;default:0"`
	ElementSelector string
	ElementText     string
	UpdatedAt       time.Time
	CreatedAt       time.Time
}

// HeatmapPage is the per-page rollup kept transactionally in step with point
// writes. It never lags raw data by more than one write.
type HeatmapPage struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	ProjectID    uint   `gorm:"uniqueIndex:idx_heatmap_page_unique;not null"`
	PageURL      string `gorm:"uniqueIndex:idx_heatmap_page_unique;not null"`
	TotalClicks  int    `gorm:"not null;default:0"`
	TotalScrolls int    `gorm:"not null;default:0"`
	TotalMoves   int    `gorm:"not null;default:0"`
	LastActivity time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PointInput is the ingestion payload for one coordinate observation. Count
// defaults to 1 when not supplied.
type PointInput struct {
	PageURL         string
	HeatmapType     string
	X               int
	Y               int
	Count           int
	ElementSelector string
	ElementText     string
}

// AggregatedPoint is one summed coordinate on the read path.
type AggregatedPoint struct {
	X     int   `json:"x"`
	Y     int   `json:"y"`
	Count int64 `json:"count"`
}

// ElementStat is one summed element group on the read path.
type ElementStat struct {
	ElementSelector string `json:"element_selector"`
	ElementText     string `json:"element_text"`
	Count           int64  `json:"count"`
}

// ProjectStats aggregates heatmap totals for a whole project.
type ProjectStats struct {
	TotalClicks  int64  `json:"total_clicks"`
	TotalScrolls int64  `json:"total_scrolls"`
	TotalMoves   int64  `json:"total_moves"`
	TopPageURL   string `json:"top_page_url"`
	TopPageTotal int64  `json:"top_page_total"`
}

func validType(heatmapType string) bool {
	switch heatmapType {
	case TypeClick, TypeScroll, TypeMove:
		return true
	}
	return false
}
