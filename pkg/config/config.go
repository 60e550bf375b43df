// Package config loads and validates offsync configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (OFFSYNC_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/offsync/internal/bytesize"
)

// Config represents the offsync engine configuration.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Storage configures the durable backend shared by the cache and the
	// queue. Everything that must survive a restart lives here.
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Cache configures the bounded offline cache
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`

	// Queue configures the durable request queue and its retry policy
	Queue QueueConfig `mapstructure:"queue" yaml:"queue"`

	// Sync configures the drain coordinator and the upstream endpoint
	Sync SyncConfig `mapstructure:"sync" yaml:"sync"`

	// Connectivity configures signal debouncing and the reachability probe
	Connectivity ConnectivityConfig `mapstructure:"connectivity" yaml:"connectivity"`

	// API configures the local operator HTTP API
	API APIConfig `mapstructure:"api" yaml:"api"`

	// Metrics contains Prometheus metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317" (standard OTLP gRPC port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	// Default: true (for local development)
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`
}

// StorageConfig configures the durable backend.
type StorageConfig struct {
	// Backend selects the storage implementation
	// Valid values: badger, memory
	// The memory backend loses everything on restart and exists for tests
	// and ephemeral setups.
	Backend string `mapstructure:"backend" validate:"required,oneof=badger memory" yaml:"backend"`

	// Path is the on-disk location for the badger backend
	Path string `mapstructure:"path" validate:"required_if=Backend badger" yaml:"path"`
}

// CacheConfig configures the bounded offline cache.
type CacheConfig struct {
	// Namespace isolates this cache's keys in the shared backend
	Namespace string `mapstructure:"namespace" yaml:"namespace"`

	// MaxSize is the byte ceiling across all entries
	// Accepts human-readable sizes like "256Mi" or "1GB" (0 = unlimited)
	MaxSize bytesize.ByteSize `mapstructure:"max_size" yaml:"max_size"`

	// MaxEntries is the entry-count ceiling (0 = unlimited)
	MaxEntries int `mapstructure:"max_entries" validate:"gte=0" yaml:"max_entries"`

	// Strategy selects the eviction algorithm
	// Valid values: fifo, lru, lfu, ttl
	Strategy string `mapstructure:"strategy" validate:"required,oneof=fifo lru lfu ttl" yaml:"strategy"`

	// DefaultTTL applies to entries stored without an explicit TTL
	// (0 = entries never expire)
	DefaultTTL time.Duration `mapstructure:"default_ttl" validate:"gte=0" yaml:"default_ttl"`

	// SweepInterval is the background expiry sweep period
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"gte=0" yaml:"sweep_interval"`
}

// QueueConfig configures the durable request queue.
type QueueConfig struct {
	// MaxRetries bounds attempts per request before dead-lettering
	MaxRetries int `mapstructure:"max_retries" validate:"gte=0" yaml:"max_retries"`

	// BaseBackoff is the retry delay after the first failure
	BaseBackoff time.Duration `mapstructure:"base_backoff" validate:"gte=0" yaml:"base_backoff"`

	// MaxBackoff caps the exponential retry delay
	MaxBackoff time.Duration `mapstructure:"max_backoff" validate:"gte=0" yaml:"max_backoff"`

	// JitterRatio spreads retry deadlines (0.0 to 1.0)
	JitterRatio float64 `mapstructure:"jitter_ratio" validate:"gte=0,lte=1" yaml:"jitter_ratio"`
}

// SyncConfig configures the drain coordinator.
type SyncConfig struct {
	// BaseURL is the upstream server queued requests are replayed against.
	// Requests with absolute endpoints bypass it.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// Interval is the periodic drain period
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`

	// AttemptTimeout bounds each individual replay attempt
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout" validate:"gte=0" yaml:"attempt_timeout"`
}

// ConnectivityConfig configures the connectivity monitor.
type ConnectivityConfig struct {
	// DebounceWindow collapses rapid link flapping into at most one
	// emitted transition per stable window
	DebounceWindow time.Duration `mapstructure:"debounce_window" validate:"gte=0" yaml:"debounce_window"`

	// ProbeTimeout bounds each active reachability probe
	ProbeTimeout time.Duration `mapstructure:"probe_timeout" validate:"gte=0" yaml:"probe_timeout"`

	// ProbeURL is the endpoint used to distinguish Online from Limited
	ProbeURL string `mapstructure:"probe_url" yaml:"probe_url"`
}

// APIConfig configures the local operator HTTP API.
type APIConfig struct {
	// Enabled controls whether the API server starts
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// ListenAddr is the address the API server binds to
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// MetricsConfig controls Prometheus metrics collection. The metrics are
// served on the operator API under /metrics.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file
// settings. Environment variables use the OFFSYNC_ prefix and underscores,
// e.g. OFFSYNC_LOGGING_LEVEL=DEBUG.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("OFFSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and integers to bytesize.ByteSize,
// so config files can use human-readable sizes like "1Gi" or "500MB".
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings to time.Duration, so config files can
// use human-readable durations like "30s" or "5m".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}
