package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/offsync/pkg/metrics"
	"github.com/marmos91/offsync/pkg/queue"
)

func init() {
	metrics.RegisterQueueMetricsConstructor(NewQueueMetrics)
}

// queueMetrics is the Prometheus implementation of queue.Metrics.
type queueMetrics struct {
	enqueued    prometheus.Counter
	completed   prometheus.Counter
	retries     prometheus.Counter
	deadLetters prometheus.Counter
	depth       *prometheus.GaugeVec
}

// NewQueueMetrics creates a Prometheus-backed queue.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewQueueMetrics() queue.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &queueMetrics{
		enqueued: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "offsync_queue_enqueued_total",
			Help: "Total number of requests accepted into the queue",
		}),
		completed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "offsync_queue_completed_total",
			Help: "Total number of requests acknowledged by the server",
		}),
		retries: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "offsync_queue_retries_total",
			Help: "Total number of failed attempts that were rescheduled",
		}),
		deadLetters: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "offsync_queue_dead_letters_total",
			Help: "Total number of requests moved to the dead-letter set",
		}),
		depth: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "offsync_queue_depth",
			Help: "Current queue depth by state",
		}, []string{"state"}), // "live", "dead_lettered"
	}
}

func (m *queueMetrics) RecordEnqueue() {
	m.enqueued.Inc()
}

func (m *queueMetrics) RecordCompleted() {
	m.completed.Inc()
}

func (m *queueMetrics) RecordRetry() {
	m.retries.Inc()
}

func (m *queueMetrics) RecordDeadLetter() {
	m.deadLetters.Inc()
}

func (m *queueMetrics) RecordDepth(pending, deadLettered int) {
	m.depth.WithLabelValues("live").Set(float64(pending))
	m.depth.WithLabelValues("dead_lettered").Set(float64(deadLettered))
}
