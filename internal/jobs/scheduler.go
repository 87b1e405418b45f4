package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"insightify/internal/collector"
	"insightify/internal/config"
)

// Scheduler owns the periodic jobs of the analytics core: a fast ticker
// refreshing the live-visitor gauge and a daily retention cleanup. It
// satisfies cartridge.BackgroundWorker so the application lifecycle
// starts and stops it.
type Scheduler struct {
	logger    *slog.Logger
	collector *collector.Collector
	cfg       *config.Config
	cleanup   *CleanupJob

	ctx    context.Context
	cancel context.CancelFunc

	gaugeTicker   *time.Ticker
	cleanupTicker *time.Ticker

	// running guards against overlapping job executions across tickers.
	mu      sync.Mutex
	running bool
	started bool
	stopped bool
}

func NewScheduler(c *collector.Collector, logger *slog.Logger) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := config.GetConfig()
	return &Scheduler{
		logger:    logger,
		collector: c,
		cfg:       cfg,
		cleanup:   NewCleanupJob(c, logger, cfg),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// runExclusive executes one job unless another is mid-flight, recovering
// panics so a bad job cannot take the ticker goroutine down.
func (s *Scheduler) runExclusive(name string, job func() error) {
	s.mu.Lock()
	if s.running {
		s.logger.Debug("Job skipped, previous run still active", slog.String("job", name))
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Job panicked", slog.String("job", name), slog.Any("panic", r))
		}
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if err := job(); err != nil {
		s.logger.Error("Job failed", slog.String("job", name), slog.Any("error", err))
	}
}

// Start launches both ticker loops. Calling it twice is a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	gaugeEvery := time.Duration(s.cfg.JobIntervalSeconds) * time.Second
	s.gaugeTicker = time.NewTicker(gaugeEvery)
	s.cleanupTicker = time.NewTicker(24 * time.Hour)

	go s.loop("live_gauge", s.gaugeTicker, s.collector.RefreshLiveGauge)
	go func() {
		// Apply retention once at boot, then daily.
		s.runExclusive("cleanup", s.cleanup.Run)
		s.loop("cleanup", s.cleanupTicker, s.cleanup.Run)
	}()

	s.logger.Info("Background jobs started",
		slog.Duration("gauge_interval", gaugeEvery),
		slog.Int("retention_days", s.cfg.DataRetentionDays))
	return nil
}

func (s *Scheduler) loop(name string, ticker *time.Ticker, job func() error) {
	for {
		select {
		case <-ticker.C:
			s.runExclusive(name, job)
		case <-s.ctx.Done():
			s.logger.Info("Job loop stopped", slog.String("job", name))
			return
		}
	}
}

// Stop cancels the job loops and their tickers.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	if s.gaugeTicker != nil {
		s.gaugeTicker.Stop()
	}
	if s.cleanupTicker != nil {
		s.cleanupTicker.Stop()
	}
	s.cancel()
	s.logger.Info("Background jobs stopped")
}

// IsRunning reports whether Start has been called and Stop has not.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.stopped
}

// RunCleanup triggers the retention job outside its schedule.
func (s *Scheduler) RunCleanup() error {
	return s.cleanup.Run()
}
