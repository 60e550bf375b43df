// Package metrics gates metric collection behind an explicit opt-in.
//
// Nothing is collected until InitRegistry is called; the New*Metrics
// constructors return nil before that, and every consumer treats a nil
// metrics handle as "collection disabled" with zero overhead.
//
// The Prometheus implementations live in pkg/metrics/prometheus and hook
// themselves in via Register*Constructor at package initialization, which
// keeps this package free of an import cycle with the packages whose
// interfaces it returns. Binaries that want metrics blank-import the
// prometheus subpackage.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	mu       sync.Mutex
	registry *prometheus.Registry
)

// InitRegistry creates the process-wide metrics registry and enables
// collection. Safe to call more than once; later calls are no-ops.
func InitRegistry() {
	mu.Lock()
	defer mu.Unlock()

	if registry != nil {
		return
	}

	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// IsEnabled returns whether InitRegistry has been called.
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return registry != nil
}

// GetRegistry returns the process-wide registry, or nil when metrics are
// disabled.
func GetRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	return registry
}
