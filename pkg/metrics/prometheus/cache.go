// Package prometheus contains the Prometheus-backed implementations of the
// metrics interfaces defined next to their consumers. Importing this
// package (typically as a blank import in the binary) registers the
// constructors with pkg/metrics.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/offsync/pkg/cache"
	"github.com/marmos91/offsync/pkg/metrics"
)

func init() {
	metrics.RegisterCacheMetricsConstructor(NewCacheMetrics)
}

// cacheMetrics is the Prometheus implementation of cache.Metrics.
type cacheMetrics struct {
	hits         prometheus.Counter
	misses       prometheus.Counter
	evictions    *prometheus.CounterVec
	usageBytes   prometheus.Gauge
	usageEntries prometheus.Gauge
}

// NewCacheMetrics creates a Prometheus-backed cache.Metrics instance for
// the given cache namespace.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewCacheMetrics(namespace string) cache.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()
	labels := prometheus.Labels{"namespace": namespace}

	return &cacheMetrics{
		hits: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name:        "offsync_cache_hits_total",
			Help:        "Total number of cache reads that returned a value",
			ConstLabels: labels,
		}),
		misses: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name:        "offsync_cache_misses_total",
			Help:        "Total number of cache reads that missed (absent or expired)",
			ConstLabels: labels,
		}),
		evictions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name:        "offsync_cache_evictions_total",
			Help:        "Total number of entries removed by the cache itself",
			ConstLabels: labels,
		}, []string{"reason"}), // "capacity", "expired"
		usageBytes: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name:        "offsync_cache_usage_bytes",
			Help:        "Tracked size of all live cache entries",
			ConstLabels: labels,
		}),
		usageEntries: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name:        "offsync_cache_entries",
			Help:        "Number of live cache entries",
			ConstLabels: labels,
		}),
	}
}

func (m *cacheMetrics) ObserveHit() {
	m.hits.Inc()
}

func (m *cacheMetrics) ObserveMiss() {
	m.misses.Inc()
}

func (m *cacheMetrics) RecordEviction(reason string) {
	m.evictions.WithLabelValues(reason).Inc()
}

func (m *cacheMetrics) RecordUsage(totalBytes int64, entries int) {
	m.usageBytes.Set(float64(totalBytes))
	m.usageEntries.Set(float64(entries))
}
