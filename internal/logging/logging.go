// Package logging builds the process-wide slog logger with rotating file output.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"insightify/internal/config"
)

// NewLogger returns a structured logger writing to stdout and a rotating
// log file under the configured logs directory. In test environment the
// file writer is skipped so parallel test runs do not fight over files.
func NewLogger(cfg *config.Config) *slog.Logger {
	level := parseLevel(cfg.GetLogLevel())

	var out io.Writer = os.Stdout
	if !cfg.IsTest() {
		rotator := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.GetLogDirectory(), cfg.GetAppName()+".log"),
			MaxSize:    cfg.GetLogMaxSizeMB(),
			MaxBackups: cfg.GetLogMaxBackups(),
			MaxAge:     cfg.GetLogMaxAgeDays(),
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotator)
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case string(config.LogLevelDebug):
		return slog.LevelDebug
	case string(config.LogLevelWarn):
		return slog.LevelWarn
	case string(config.LogLevelError):
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
