package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/offsync/internal/bytesize"
	"github.com/marmos91/offsync/pkg/cache"
	"github.com/marmos91/offsync/pkg/connectivity"
	"github.com/marmos91/offsync/pkg/queue"
	"github.com/marmos91/offsync/pkg/sync"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields. Zero values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyStorageDefaults(&cfg.Storage)
	applyCacheDefaults(&cfg.Cache)
	applyQueueDefaults(&cfg.Queue)
	applySyncDefaults(&cfg.Sync)
	applyConnectivityDefaults(&cfg.Connectivity)
	applyAPIDefaults(&cfg.API)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
}

// applyStorageDefaults sets durable-backend defaults.
func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Backend == "" {
		cfg.Backend = "badger"
	}
	if cfg.Path == "" && cfg.Backend == "badger" {
		cfg.Path = filepath.Join(getDataDir(), "store")
	}
}

// applyCacheDefaults sets cache defaults.
func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.Namespace == "" {
		cfg.Namespace = cache.DefaultNamespace
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = 256 * bytesize.MiB
	}
	if cfg.Strategy == "" {
		cfg.Strategy = string(cache.StrategyLRU)
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = cache.DefaultSweepInterval
	}
}

// applyQueueDefaults sets queue and retry-policy defaults.
func applyQueueDefaults(cfg *QueueConfig) {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = queue.DefaultMaxRetries
	}
	if cfg.BaseBackoff == 0 {
		cfg.BaseBackoff = queue.DefaultBackoffBase
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = queue.DefaultBackoffCap
	}
	if cfg.JitterRatio == 0 {
		cfg.JitterRatio = queue.DefaultJitterRatio
	}
}

// applySyncDefaults sets coordinator defaults.
func applySyncDefaults(cfg *SyncConfig) {
	if cfg.Interval == 0 {
		cfg.Interval = sync.DefaultInterval
	}
	if cfg.AttemptTimeout == 0 {
		cfg.AttemptTimeout = sync.DefaultAttemptTimeout
	}
}

// applyConnectivityDefaults sets monitor defaults.
func applyConnectivityDefaults(cfg *ConnectivityConfig) {
	if cfg.DebounceWindow == 0 {
		cfg.DebounceWindow = connectivity.DefaultDebounceWindow
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = connectivity.DefaultProbeTimeout
	}
	if cfg.ProbeURL == "" {
		cfg.ProbeURL = connectivity.DefaultProbeURL
	}
}

// applyAPIDefaults sets operator API defaults. The API binds to loopback
// only; it is a local control surface, not a public endpoint.
func applyAPIDefaults(cfg *APIConfig) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:7033"
	}
}

// GetDefaultConfig returns a Config with all default values applied.
// Useful for generating sample configuration files and for tests.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "offsync")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "offsync")
}

// getDataDir returns the directory for durable state.
//
// Uses XDG_DATA_HOME if set, otherwise ~/.local/share.
func getDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "offsync")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".local", "share", "offsync")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for the
// init command).
func GetConfigDir() string {
	return getConfigDir()
}
