package metrics

import (
	"github.com/marmos91/offsync/pkg/queue"
)

// NewQueueMetrics creates a Prometheus-backed queue.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewQueueMetrics() queue.Metrics {
	if !IsEnabled() || newPrometheusQueueMetrics == nil {
		return nil
	}
	return newPrometheusQueueMetrics()
}

var newPrometheusQueueMetrics func() queue.Metrics

// RegisterQueueMetricsConstructor registers the Prometheus queue metrics
// constructor. Called by pkg/metrics/prometheus during package
// initialization.
func RegisterQueueMetricsConstructor(constructor func() queue.Metrics) {
	newPrometheusQueueMetrics = constructor
}
