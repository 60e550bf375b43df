package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/offsync/pkg/metrics"
	syncpkg "github.com/marmos91/offsync/pkg/sync"
)

func init() {
	metrics.RegisterSyncMetricsConstructor(NewSyncMetrics)
}

// syncMetrics is the Prometheus implementation of sync.Metrics.
type syncMetrics struct {
	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	attempts      *prometheus.CounterVec
}

// NewSyncMetrics creates a Prometheus-backed sync.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewSyncMetrics() syncpkg.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &syncMetrics{
		cycles: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "offsync_sync_cycles_total",
			Help: "Total number of sync cycles by trigger",
		}, []string{"trigger"}), // "connectivity", "timer", "manual"
		cycleDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name: "offsync_sync_cycle_duration_seconds",
			Help: "Duration of sync cycles",
			Buckets: []float64{
				0.01, // empty queue
				0.05,
				0.25,
				1,
				5,
				15,
				60, // long drains after extended offline periods
			},
		}),
		attempts: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "offsync_sync_attempts_total",
			Help: "Total number of replay attempts by outcome",
		}, []string{"outcome"}), // "completed", "retried", "dead_lettered"
	}
}

func (m *syncMetrics) RecordCycle(trigger string, duration time.Duration) {
	m.cycles.WithLabelValues(trigger).Inc()
	m.cycleDuration.Observe(duration.Seconds())
}

func (m *syncMetrics) RecordAttempt(outcome string) {
	m.attempts.WithLabelValues(outcome).Inc()
}
