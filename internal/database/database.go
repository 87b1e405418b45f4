package database

import (
	"log/slog"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"insightify/internal/config"
	"insightify/internal/heatmaps"
	"insightify/internal/projects"
	"insightify/internal/tracking"
)

// DBManager owns the sqlite connection and the analytics schema.
type DBManager struct {
	*sqlite.Manager
	logger *slog.Logger
}

func NewDBManager(cfg *config.Config, logger *slog.Logger) *DBManager {
	return &DBManager{
		Manager: sqlite.NewManager(sqlite.Config{
			Path:         cfg.DatabaseName,
			MaxOpenConns: cfg.GetMaxOpenConns(),
			MaxIdleConns: cfg.GetMaxIdleConns(),
			Logger:       logger,
			EnableWAL:    true,
			TxImmediate:  true,
			BusyTimeout:  5000,
		}),
		logger: logger,
	}
}

// Init opens the connection pool.
func (dm *DBManager) Init() error {
	_, err := dm.Manager.Connect()
	return err
}

// schemaModels is the full analytics schema; projects first so the
// partition key exists before the fact tables.
func schemaModels() []any {
	return []any{
		&projects.Project{},
		&tracking.PageView{},
		&tracking.Event{},
		&tracking.Session{},
		&heatmaps.HeatmapPoint{},
		&heatmaps.HeatmapPage{},
	}
}

// MigrateDatabase brings the schema up to date inside one transaction and
// checkpoints the WAL so a fresh deploy starts from a compact file.
func (dm *DBManager) MigrateDatabase() error {
	db := dm.GetConnection()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	if err := db.Transaction(func(tx *gorm.DB) error {
		return tx.AutoMigrate(schemaModels()...)
	}); err != nil {
		dm.logger.Error("Schema migration failed", slog.Any("error", err))
		return err
	}

	if err := dm.CheckpointWAL("FULL"); err != nil {
		dm.logger.Warn("WAL checkpoint after migration failed", slog.Any("error", err))
	}

	dm.logger.Info("Schema migration complete")
	return nil
}
