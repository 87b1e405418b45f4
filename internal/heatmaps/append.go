package heatmaps

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"insightify/internal/coreerrors"
)

// AppendHeatmapPoints merges a batch of coordinate observations into the
// point table and updates the per-page rollups in the same transaction. The
// whole batch is validated before any write; one bad point rejects the batch.
// Returns the number of observations merged.
func AppendHeatmapPoints(dbManager cartridge.DBManager, logger *slog.Logger, projectID uint, batch []PointInput) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	for i := range batch {
		if err := validatePoint(&batch[i]); err != nil {
			return 0, err
		}
	}

	now := time.Now()

	err := sqlite.PerformWrite(logger, dbManager.GetConnection(), func(tx *gorm.DB) error {
		for i := range batch {
			p := &batch[i]
			count := p.Count
			if count <= 0 {
				count = 1
			}
			if err := upsertPoint(tx, projectID, p, count, now); err != nil {
				return err
			}
			if err := upsertPageRollup(tx, projectID, p.PageURL, p.HeatmapType, count, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("failed to append heatmap points",
			slog.Any("error", err),
			slog.Uint64("project_id", uint64(projectID)),
			slog.Int("batch_size", len(batch)))
		return 0, coreerrors.FromDBError("append heatmap points", err)
	}

	return len(batch), nil
}

func validatePoint(p *PointInput) error {
	if p.PageURL == "" {
		return coreerrors.NewValidationError("page_url", "must not be empty")
	}
	if !validType(p.HeatmapType) {
		return coreerrors.NewValidationError("heatmap_type", fmt.Sprintf("must be one of %s, %s, %s", TypeClick, TypeScroll, TypeMove))
	}
	if p.X < 0 || p.Y < 0 {
		return coreerrors.NewValidationError("coordinates", "must be non-negative")
	}
	return nil
}

func upsertPoint(tx *gorm.DB, projectID uint, p *PointInput, count int, now time.Time) error {
	return tx.Exec(`
		INSERT INTO heatmap_points (
			project_id, page_url, heatmap_type, x, y, count,
			element_selector, element_text, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (project_id, page_url, heatmap_type, x, y)
		DO UPDATE SET
			count = heatmap_points.count + ?,
			element_selector = CASE WHEN excluded.element_selector != '' THEN excluded.element_selector ELSE heatmap_points.element_selector END,
			element_text = CASE WHEN excluded.element_text != '' THEN excluded.element_text ELSE heatmap_points.element_text END,
			updated_at = ?
	`, projectID, p.PageURL, p.HeatmapType, p.X, p.Y, count,
		p.ElementSelector, p.ElementText, now, now,
		count, now).Error
}

func upsertPageRollup(tx *gorm.DB, projectID uint, pageURL, heatmapType string, count int, now time.Time) error {
	clicks, scrolls, moves := 0, 0, 0
	switch heatmapType {
	case TypeClick:
		clicks = count
	case TypeScroll:
		scrolls = count
	case TypeMove:
		moves = count
	}

	return tx.Exec(`
		INSERT INTO heatmap_pages (
			project_id, page_url, total_clicks, total_scrolls, total_moves,
			last_activity, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (project_id, page_url)
		DO UPDATE SET
			total_clicks = heatmap_pages.total_clicks + ?,
			total_scrolls = heatmap_pages.total_scrolls + ?,
			total_moves = heatmap_pages.total_moves + ?,
			last_activity = ?,
			updated_at = ?
	`, projectID, pageURL, clicks, scrolls, moves, now, now, now,
		clicks, scrolls, moves, now, now).Error
}
