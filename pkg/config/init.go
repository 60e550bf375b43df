package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// sampleConfig is the commented configuration written by `offsync init`.
// Values shown are the defaults; uncommented keys are the ones every
// deployment has to look at.
const sampleConfig = `# offsync configuration
#
# Every key can be overridden with an environment variable:
#   OFFSYNC_<SECTION>_<KEY>, e.g. OFFSYNC_LOGGING_LEVEL=DEBUG

logging:
  # DEBUG, INFO, WARN or ERROR
  level: INFO
  # text or json
  format: text
  # stdout, stderr, or a file path
  output: stdout

# The upstream server queued requests are replayed against.
sync:
  base_url: https://api.example.com
  # Periodic drain period; a connectivity transition to Online also
  # triggers a drain.
  interval: 5m
  # Per-request replay deadline.
  attempt_timeout: 30s

storage:
  # badger (durable) or memory (lost on restart)
  backend: badger
  # path: /var/lib/offsync/store

cache:
  # fifo, lru, lfu or ttl
  strategy: lru
  # Accepts human-readable sizes: 256Mi, 1GB, ...
  max_size: 256Mi
  # 0 = unlimited
  max_entries: 0
  # 0 = entries never expire unless a TTL is given per entry
  default_ttl: 0s

queue:
  max_retries: 5
  base_backoff: 2s
  max_backoff: 5m
  jitter_ratio: 0.1

connectivity:
  debounce_window: 500ms
  probe_timeout: 2s
  probe_url: http://clients3.google.com/generate_204

api:
  enabled: true
  listen_addr: 127.0.0.1:7033

metrics:
  enabled: false

telemetry:
  enabled: false
  endpoint: localhost:4317
  insecure: true
  sample_rate: 1.0

shutdown_timeout: 30s
`

// InitConfig writes the sample configuration to the default location.
// Returns the path written.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	return path, InitConfigToPath(path, force)
}

// InitConfigToPath writes the sample configuration to the given path.
// Refuses to overwrite an existing file unless force is set.
func InitConfigToPath(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
