// Package config loads the application configuration from environment
// variables via viper, with sane defaults for local development.
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Environments
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel selects the minimum severity that gets logged.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

const (
	SQLiteDatabase = "sqlite"
)

// Config is the full set of tunables for the analytics core.
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	AppPort     string   `mapstructure:"appport"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`
	PrivateKey  string   `mapstructure:"privatekey"`

	// File paths
	DatabasePath string `mapstructure:"storagepath"`
	DatabaseName string `mapstructure:"-"` // Derived from other settings
	GeoDBPath    string `mapstructure:"geodbpath"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseType         string `mapstructure:"dbtype"`
	DatabaseMaxOpenConns int    `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int    `mapstructure:"dbmaxidleconns"`

	// Live presence settings
	LiveActivityWindowSeconds int `mapstructure:"liveactivitywindowseconds"`
	LivePurgeWindowSeconds    int `mapstructure:"livepurgewindowseconds"`
	LiveSweepIntervalSeconds  int `mapstructure:"livesweepintervalseconds"`

	// Real-time broadcast settings
	BroadcastBufferSize int `mapstructure:"broadcastbuffersize"`

	// Job scheduling settings
	JobIntervalSeconds int `mapstructure:"jobintervalseconds"`

	// Data retention settings
	DataRetentionDays int `mapstructure:"dataretentiondays"`
}

var (
	cfg  *Config
	once sync.Once
)

const defaultPrivateKey = "88888888888888888888888888888888"

// settings maps each viper key to its environment variable and default.
var settings = []struct {
	key      string
	env      string
	fallback any
}{
	{"appname", "INSIGHTIFY_APP_NAME", "insightify"},
	{"appport", "INSIGHTIFY_APP_PORT", "3000"},
	{"environment", "INSIGHTIFY_ENV", Development},
	{"loglevel", "INSIGHTIFY_LOG_LEVEL", string(LogLevelDebug)},
	{"privatekey", "INSIGHTIFY_PRIVATE_KEY", defaultPrivateKey},
	{"storagepath", "INSIGHTIFY_STORAGE_PATH", "storage"},
	{"geodbpath", "INSIGHTIFY_GEO_DB_PATH", "storage/GeoLite2-Country.mmdb"},
	{"logsdir", "INSIGHTIFY_LOGS_DIR", "logs"},
	{"logsmaxsizeinmb", "INSIGHTIFY_LOGS_MAX_SIZE_IN_MB", 20},
	{"logsmaxbackups", "INSIGHTIFY_LOGS_MAX_BACKUPS", 10},
	{"logsmaxageindays", "INSIGHTIFY_LOGS_MAX_AGE_IN_DAYS", 30},
	{"dbtype", "INSIGHTIFY_DB_TYPE", SQLiteDatabase},
	{"dbmaxopenconns", "INSIGHTIFY_DB_MAX_OPEN_CONNS", 0},
	{"dbmaxidleconns", "INSIGHTIFY_DB_MAX_IDLE_CONNS", 0},
	{"liveactivitywindowseconds", "INSIGHTIFY_LIVE_ACTIVITY_WINDOW_SECONDS", 300},
	{"livepurgewindowseconds", "INSIGHTIFY_LIVE_PURGE_WINDOW_SECONDS", 600},
	{"livesweepintervalseconds", "INSIGHTIFY_LIVE_SWEEP_INTERVAL_SECONDS", 300},
	{"broadcastbuffersize", "INSIGHTIFY_BROADCAST_BUFFER_SIZE", 64},
	{"jobintervalseconds", "INSIGHTIFY_JOB_INTERVAL_SECONDS", 60},
	{"dataretentiondays", "INSIGHTIFY_DATA_RETENTION_DAYS", 90},
}

// GetConfig returns the process-wide configuration, loading it on first use.
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()
		for _, s := range settings {
			v.SetDefault(s.key, s.fallback)
			v.BindEnv(s.key, s.env)
		}

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}
		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		cfg.DatabaseName = cfg.GetDatabasePath()

		if cfg.PrivateKey == "" {
			log.Fatal("Private key is required")
		}
		if cfg.IsProduction() && cfg.PrivateKey == defaultPrivateKey {
			log.Fatal("Production requires a unique INSIGHTIFY_PRIVATE_KEY")
		}
	})
	return cfg
}

// validate rejects configurations that would misbehave at runtime.
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	validDBTypes := map[string]bool{
		SQLiteDatabase: true,
	}
	if !validDBTypes[c.DatabaseType] {
		return fmt.Errorf("invalid database type: %s", c.DatabaseType)
	}

	if c.LiveActivityWindowSeconds <= 0 || c.LivePurgeWindowSeconds <= 0 {
		return fmt.Errorf("live presence windows must be positive")
	}
	if c.LivePurgeWindowSeconds < c.LiveActivityWindowSeconds {
		return fmt.Errorf("live purge window must not be shorter than the activity window")
	}

	return nil
}

// GetDatabasePath derives the sqlite file path from the storage dir,
// app name and environment.
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetPort returns the HTTP server port (implements cartridge.Config interface).
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetPublicDirectory returns the static assets directory (implements
// cartridge.Config interface). Empty disables directory-based static serving.
func (c *Config) GetPublicDirectory() string {
	return ""
}

// GetAssetsPrefix returns the URL prefix for static assets (implements
// cartridge.Config interface). Empty makes cartridge use its default.
func (c *Config) GetAssetsPrefix() string {
	return ""
}

// GetAppName returns the application name (implements cartridge.FactoryConfig interface).
func (c *Config) GetAppName() string {
	return c.AppName
}

// DatabaseDSN returns the database connection string (implements cartridge.FactoryConfig interface).
func (c *Config) DatabaseDSN() string {
	return c.GetDatabasePath()
}

// GetSessionSecret returns the session encryption key (implements cartridge.FactoryConfig interface).
func (c *Config) GetSessionSecret() string {
	return c.PrivateKey
}

// LiveActivityWindow returns how long a visitor counts as active after their
// last pageview.
func (c *Config) LiveActivityWindow() time.Duration {
	return time.Duration(c.LiveActivityWindowSeconds) * time.Second
}

// LivePurgeWindow returns how long an idle visitor stays in the registry
// before the sweep removes it.
func (c *Config) LivePurgeWindow() time.Duration {
	return time.Duration(c.LivePurgeWindowSeconds) * time.Second
}

// LiveSweepInterval returns how often the presence sweep runs.
func (c *Config) LiveSweepInterval() time.Duration {
	return time.Duration(c.LiveSweepIntervalSeconds) * time.Second
}

// GetMaxOpenConns returns the connection pool size. Tests run on a single
// connection so shared in-memory databases behave deterministically.
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}
	if c.Environment == Test {
		return 1
	}
	return 10
}

func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}
	if c.Environment == Test {
		return 1
	}
	return 5
}

// GetLogLevel returns the log level as a string (implements cartridge.LogConfigProvider).
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory (implements cartridge.LogConfigProvider).
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
