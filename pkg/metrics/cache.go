package metrics

import (
	"github.com/marmos91/offsync/pkg/cache"
)

// NewCacheMetrics creates a Prometheus-backed cache.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
// A nil Metrics is valid for the cache and skips collection entirely.
func NewCacheMetrics(namespace string) cache.Metrics {
	if !IsEnabled() || newPrometheusCacheMetrics == nil {
		return nil
	}
	return newPrometheusCacheMetrics(namespace)
}

// newPrometheusCacheMetrics is implemented in pkg/metrics/prometheus.
// The indirection avoids an import cycle while keeping the API clean.
var newPrometheusCacheMetrics func(namespace string) cache.Metrics

// RegisterCacheMetricsConstructor registers the Prometheus cache metrics
// constructor. Called by pkg/metrics/prometheus during package
// initialization.
func RegisterCacheMetricsConstructor(constructor func(namespace string) cache.Metrics) {
	newPrometheusCacheMetrics = constructor
}
