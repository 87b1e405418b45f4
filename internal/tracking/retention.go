package tracking

import (
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"insightify/internal/coreerrors"
)

const retentionBatchSize = 1000

// CleanOldData removes pageviews, events and session rollups older than the
// cutoff. Deletes run in batches to avoid locking the database for too long.
func CleanOldData(dbManager cartridge.DBManager, logger *slog.Logger, daysToKeep int) (int64, error) {
	db := dbManager.GetConnection()
	cutoff := time.Now().UTC().AddDate(0, 0, -daysToKeep)

	logger.Info("Starting cleanup of old tracking data",
		slog.Int("days_to_keep", daysToKeep),
		slog.Time("cutoff", cutoff))

	var totalDeleted int64

	deleted, err := deleteInBatches(db, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("timestamp < ?", cutoff).Limit(retentionBatchSize).Delete(&PageView{})
	})
	if err != nil {
		return totalDeleted, coreerrors.FromDBError("pageview retention delete", err)
	}
	totalDeleted += deleted

	deleted, err = deleteInBatches(db, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("timestamp < ?", cutoff).Limit(retentionBatchSize).Delete(&Event{})
	})
	if err != nil {
		return totalDeleted, coreerrors.FromDBError("event retention delete", err)
	}
	totalDeleted += deleted

	deleted, err = deleteInBatches(db, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("start_time < ?", cutoff).Limit(retentionBatchSize).Delete(&Session{})
	})
	if err != nil {
		return totalDeleted, coreerrors.FromDBError("session retention delete", err)
	}
	totalDeleted += deleted

	logger.Info("Cleaned up old tracking data",
		slog.Int64("deleted_count", totalDeleted),
		slog.Int("days_to_keep", daysToKeep))

	return totalDeleted, nil
}

func deleteInBatches(db *gorm.DB, deleteBatch func(tx *gorm.DB) *gorm.DB) (int64, error) {
	var total int64
	for {
		result := deleteBatch(db)
		if result.Error != nil {
			return total, result.Error
		}
		total += result.RowsAffected
		if result.RowsAffected < int64(retentionBatchSize) {
			return total, nil
		}
		// Small delay between batches to prevent lock contention
		time.Sleep(100 * time.Millisecond)
	}
}
