package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/offsync/internal/logger"
	"github.com/marmos91/offsync/internal/telemetry"
	"github.com/marmos91/offsync/pkg/api"
	"github.com/marmos91/offsync/pkg/config"
	"github.com/marmos91/offsync/pkg/engine"

	// Import prometheus metrics to register init() functions
	_ "github.com/marmos91/offsync/pkg/metrics/prometheus"
)

// Build-time variables injected via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const usage = `offsync - Offline-first request queue and sync engine

Usage:
  offsync <command> [flags]

Commands:
  init     Initialize a sample configuration file
  start    Start the offsync daemon
  version  Show version information

Flags:
  --config string    Path to config file (default: $XDG_CONFIG_HOME/offsync/config.yaml)
  --force            Force overwrite existing config file (init command only)

Examples:
  # Initialize config file
  offsync init

  # Start the daemon with the default config location
  offsync start

  # Start with a custom config
  offsync start --config /etc/offsync/config.yaml

  # Use environment variables to override config
  OFFSYNC_LOGGING_LEVEL=DEBUG offsync start

Environment Variables:
  All configuration options can be overridden using environment variables.
  Format: OFFSYNC_<SECTION>_<KEY> (use underscores for nested keys)

  Examples:
    OFFSYNC_LOGGING_LEVEL=DEBUG
    OFFSYNC_SYNC_BASE_URL=https://api.example.com
    OFFSYNC_CACHE_MAX_SIZE=512Mi
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "init":
		runInit()
	case "start":
		runStart()
	case "help", "--help", "-h":
		fmt.Print(usage)
		os.Exit(0)
	case "version", "--version", "-v":
		fmt.Printf("offsync %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// runInit handles the init subcommand
func runInit() {
	initFlags := flag.NewFlagSet("init", flag.ExitOnError)
	configFile := initFlags.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/offsync/config.yaml)")
	force := initFlags.Bool("force", false, "Force overwrite existing config file")

	if err := initFlags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	var configPath string
	var err error

	if *configFile != "" {
		err = config.InitConfigToPath(*configFile, *force)
		configPath = *configFile
	} else {
		configPath, err = config.InitConfig(*force)
	}

	if err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Set sync.base_url to your upstream server")
	fmt.Println("  2. Start the daemon with: offsync start")
	fmt.Printf("  3. Or specify custom config: offsync start --config %s\n", configPath)
}

// runStart handles the start subcommand
func runStart() {
	startFlags := flag.NewFlagSet("start", flag.ExitOnError)
	configFile := startFlags.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/offsync/config.yaml)")

	if err := startFlags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	// Check if config exists
	if *configFile == "" {
		if !config.DefaultConfigExists() {
			fmt.Fprintf(os.Stderr, "Error: No configuration file found at default location: %s\n\n", config.GetDefaultConfigPath())
			fmt.Fprintln(os.Stderr, "Please initialize a configuration file first:")
			fmt.Fprintln(os.Stderr, "  offsync init")
			fmt.Fprintln(os.Stderr, "\nOr specify a custom config file:")
			fmt.Fprintln(os.Stderr, "  offsync start --config /path/to/config.yaml")
			os.Exit(1)
		}
	} else {
		if _, err := os.Stat(*configFile); os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error: Configuration file not found: %s\n\n", *configFile)
			fmt.Fprintln(os.Stderr, "Please create the configuration file:")
			fmt.Fprintf(os.Stderr, "  offsync init --config %s\n", *configFile)
			os.Exit(1)
		}
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize the structured logger
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry (if enabled)
	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "offsync",
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(*configFile))
	if cfg.Telemetry.Enabled {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Telemetry disabled")
	}

	eng, err := engine.New(cfg, engine.Options{})
	if err != nil {
		log.Fatalf("Failed to initialize engine: %v", err)
	}
	eng.Start(ctx)

	// Start the operator API in the background (if enabled)
	var apiServer *api.Server
	apiDone := make(chan error, 1)
	if cfg.API.Enabled {
		apiServer = api.NewServer(api.Config{ListenAddr: cfg.API.ListenAddr}, eng)
		go func() {
			apiDone <- apiServer.Start()
		}()
	} else {
		logger.Info("Operator API disabled")
	}

	// Wait for interrupt signal or API server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("offsync is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")

	case err := <-apiDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Operator API error", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if apiServer != nil {
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Operator API shutdown error", "error", err)
		}
	}
	eng.Stop()

	logger.Info("offsync stopped gracefully")
}

// getConfigSource returns a description of where the config was loaded from
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
