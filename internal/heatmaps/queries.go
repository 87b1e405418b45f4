package heatmaps

import (
	"context"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"insightify/internal/coreerrors"
)

const elementAnalysisLimit = 100

// GetAggregatedByPage returns summed counts per coordinate for one page and
// heatmap type, busiest coordinates first.
func GetAggregatedByPage(ctx context.Context, dbManager cartridge.DBManager, projectID uint, pageURL, heatmapType string) ([]AggregatedPoint, error) {
	if pageURL == "" {
		return nil, coreerrors.NewValidationError("page_url", "must not be empty")
	}
	if !validType(heatmapType) {
		return nil, coreerrors.NewValidationError("heatmap_type", "unknown heatmap type")
	}

	var points []AggregatedPoint
	err := dbManager.GetConnection().WithContext(ctx).
		Model(&HeatmapPoint{}).
		Select("x, y, SUM(count) as count").
		Where("project_id = ? AND page_url = ? AND heatmap_type = ?", projectID, pageURL, heatmapType).
		Group("x, y").
		Order("count DESC").
		Scan(&points).Error
	if err != nil {
		return nil, coreerrors.FromDBError("aggregate heatmap points", err)
	}
	return points, nil
}

// GetElementAnalysis returns activity totals of one heatmap type grouped by
// element selector for one page, busiest first, capped at 100 groups. Points
// recorded without a selector are excluded.
func GetElementAnalysis(ctx context.Context, dbManager cartridge.DBManager, projectID uint, pageURL, heatmapType string) ([]ElementStat, error) {
	if pageURL == "" {
		return nil, coreerrors.NewValidationError("page_url", "must not be empty")
	}
	if !validType(heatmapType) {
		return nil, coreerrors.NewValidationError("heatmap_type", "unknown heatmap type")
	}

	var stats []ElementStat
	err := dbManager.GetConnection().WithContext(ctx).
		Model(&HeatmapPoint{}).
		Select("element_selector, element_text, SUM(count) as count").
		Where("project_id = ? AND page_url = ? AND heatmap_type = ? AND element_selector != ''", projectID, pageURL, heatmapType).
		Group("element_selector, element_text").
		Order("count DESC").
		Limit(elementAnalysisLimit).
		Scan(&stats).Error
	if err != nil {
		return nil, coreerrors.FromDBError("element analysis", err)
	}
	return stats, nil
}

// GetProjectStats sums heatmap activity across a whole project and names the
// page with the most combined activity. Returns nil when the project has no
// heatmap data at all.
func GetProjectStats(ctx context.Context, dbManager cartridge.DBManager, projectID uint) (*ProjectStats, error) {
	db := dbManager.GetConnection().WithContext(ctx)

	var totals struct {
		TotalClicks  int64
		TotalScrolls int64
		TotalMoves   int64
		Pages        int64
	}
	err := db.Model(&HeatmapPage{}).
		Select("COALESCE(SUM(total_clicks), 0) as total_clicks, COALESCE(SUM(total_scrolls), 0) as total_scrolls, COALESCE(SUM(total_moves), 0) as total_moves, COUNT(*) as pages").
		Where("project_id = ?", projectID).
		Scan(&totals).Error
	if err != nil {
		return nil, coreerrors.FromDBError("project heatmap stats", err)
	}
	if totals.Pages == 0 {
		return nil, nil
	}

	var top struct {
		PageURL string
		Total   int64
	}
	err = db.Model(&HeatmapPage{}).
		Select("page_url, (total_clicks + total_scrolls + total_moves) as total").
		Where("project_id = ?", projectID).
		Order("total DESC").
		Limit(1).
		Scan(&top).Error
	if err != nil {
		return nil, coreerrors.FromDBError("project heatmap stats", err)
	}

	return &ProjectStats{
		TotalClicks:  totals.TotalClicks,
		TotalScrolls: totals.TotalScrolls,
		TotalMoves:   totals.TotalMoves,
		TopPageURL:   top.PageURL,
		TopPageTotal: top.Total,
	}, nil
}

// DeleteHeatmapPage removes a page's rollup and all of its points. Deleting
// a page that does not exist is a no-op.
func DeleteHeatmapPage(dbManager cartridge.DBManager, logger *slog.Logger, projectID uint, pageURL string) error {
	if pageURL == "" {
		return coreerrors.NewValidationError("page_url", "must not be empty")
	}

	err := sqlite.PerformWrite(logger, dbManager.GetConnection(), func(tx *gorm.DB) error {
		if err := tx.Where("project_id = ? AND page_url = ?", projectID, pageURL).
			Delete(&HeatmapPoint{}).Error; err != nil {
			return err
		}
		return tx.Where("project_id = ? AND page_url = ?", projectID, pageURL).
			Delete(&HeatmapPage{}).Error
	})
	if err != nil {
		logger.Error("failed to delete heatmap page",
			slog.Any("error", err),
			slog.Uint64("project_id", uint64(projectID)),
			slog.String("page_url", pageURL))
		return coreerrors.FromDBError("delete heatmap page", err)
	}
	return nil
}

// CleanOldData removes heatmap points and page rollups whose last activity is
// older than the retention window. Returns the number of rows removed.
func CleanOldData(dbManager cartridge.DBManager, logger *slog.Logger, daysToKeep int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -daysToKeep)
	var total int64

	err := sqlite.PerformWrite(logger, dbManager.GetConnection(), func(tx *gorm.DB) error {
		res := tx.Where("updated_at < ?", cutoff).Delete(&HeatmapPoint{})
		if res.Error != nil {
			return res.Error
		}
		total += res.RowsAffected

		res = tx.Where("last_activity < ?", cutoff).Delete(&HeatmapPage{})
		if res.Error != nil {
			return res.Error
		}
		total += res.RowsAffected
		return nil
	})
	if err != nil {
		return total, coreerrors.FromDBError("clean old heatmap data", err)
	}

	if total > 0 {
		logger.Info("cleaned old heatmap data",
			slog.Int64("rows_removed", total),
			slog.Int("days_to_keep", daysToKeep))
	}
	return total, nil
}
