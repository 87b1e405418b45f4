package internal

import (
	"fmt"

	"github.com/karloscodes/cartridge"

	"insightify/internal/collector"
	"insightify/internal/config"
	"insightify/internal/database"
	"insightify/internal/jobs"
	"insightify/internal/logging"
	"insightify/internal/pkg/geoip"
	"insightify/internal/presence"
	"insightify/internal/realtime"
)

// Application wraps cartridge.Application with the analytics core wired in.
type Application struct {
	*cartridge.Application
	DBManager *database.DBManager
	Collector *collector.Collector
}

// presenceWorker adapts the presence registry to the application lifecycle.
type presenceWorker struct {
	registry *presence.Registry
}

func (w *presenceWorker) Start() error {
	w.registry.Start()
	return nil
}

func (w *presenceWorker) Stop() {
	w.registry.Stop()
}

// NewApp creates a new application instance with default settings
func NewApp() (*Application, error) {
	return NewAppWithConfig(config.GetConfig())
}

// NewAppWithConfig creates a new application with the provided config
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	logger := logging.NewLogger(cfg)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	geoip.InitLogger(logger)
	geoip.Init(cfg.GeoDBPath)

	registry := presence.NewRegistry(logger,
		cfg.LiveActivityWindow(), cfg.LivePurgeWindow(), cfg.LiveSweepInterval())
	hub := realtime.NewHub(logger, cfg.BroadcastBufferSize)
	core := collector.New(dbManager, logger, registry, hub)

	scheduler, err := jobs.NewScheduler(core, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize jobs: %w", err)
	}

	app, err := cartridge.NewApplication(cartridge.ApplicationOptions{
		Config:         cfg,
		Logger:         logger,
		DBManager:      dbManager,
		RouteMountFunc: MountRoutes(core),
		BackgroundWorkers: []cartridge.BackgroundWorker{
			&presenceWorker{registry: registry},
			scheduler,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	return &Application{
		Application: app,
		DBManager:   dbManager,
		Collector:   core,
	}, nil
}
