package metrics

import (
	syncpkg "github.com/marmos91/offsync/pkg/sync"
)

// NewSyncMetrics creates a Prometheus-backed sync.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewSyncMetrics() syncpkg.Metrics {
	if !IsEnabled() || newPrometheusSyncMetrics == nil {
		return nil
	}
	return newPrometheusSyncMetrics()
}

var newPrometheusSyncMetrics func() syncpkg.Metrics

// RegisterSyncMetricsConstructor registers the Prometheus sync metrics
// constructor. Called by pkg/metrics/prometheus during package
// initialization.
func RegisterSyncMetricsConstructor(constructor func() syncpkg.Metrics) {
	newPrometheusSyncMetrics = constructor
}
