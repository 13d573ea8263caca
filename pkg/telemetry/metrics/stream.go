package metrics

import (
	"time"

	"mercator-hq/relay/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// StreamMetrics tracks streaming sessions.
//
// Metrics:
//   - relay_streams_active: Streams currently registered
//   - relay_streams_total: Finished streams by outcome
//   - relay_stream_duration_seconds: Stream lifetime by outcome
//   - relay_stream_chunks_total: Chunks delivered to clients
//   - relay_session_aborts_total: Abort calls by result
type StreamMetrics struct {
	active   prometheus.Gauge
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	chunks   prometheus.Counter
	aborts   *prometheus.CounterVec
}

// NewStreamMetrics creates and registers stream metrics with the provided registry.
func NewStreamMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *StreamMetrics {
	sm := &StreamMetrics{
		active: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "streams_active",
				Help:      "Number of streams currently being relayed",
			},
		),

		total: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "streams_total",
				Help:      "Total number of finished streams",
			},
			[]string{"outcome"},
		),

		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "stream_duration_seconds",
				Help:      "Stream lifetime from first relay to terminal state",
				Buckets:   cfg.StreamDurationBuckets,
			},
			[]string{"outcome"},
		),

		chunks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "stream_chunks_total",
				Help:      "Total number of chunks delivered to clients",
			},
		),

		aborts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "session_aborts_total",
				Help:      "Abort requests by whether the session was active",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		sm.active,
		sm.total,
		sm.duration,
		sm.chunks,
		sm.aborts,
	)

	return sm
}

// SetActive sets the number of active streams.
func (sm *StreamMetrics) SetActive(n int) {
	sm.active.Set(float64(n))
}

// RecordChunk counts one delivered chunk.
func (sm *StreamMetrics) RecordChunk() {
	sm.chunks.Inc()
}

// RecordFinished records a terminal stream.
func (sm *StreamMetrics) RecordFinished(outcome string, duration time.Duration) {
	sm.total.WithLabelValues(outcome).Inc()
	sm.duration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordAbort counts an abort request.
func (sm *StreamMetrics) RecordAbort(result string) {
	sm.aborts.WithLabelValues(result).Inc()
}
