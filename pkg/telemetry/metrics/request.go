package metrics

import (
	"time"

	"mercator-hq/relay/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestMetrics tracks non-streaming exchanges and upstream failures.
//
// Metrics:
//   - relay_oneshot_requests_total: One-shot requests by response status
//   - relay_oneshot_duration_seconds: One-shot round trip duration
//   - relay_upstream_errors_total: Upstream failures by kind
type RequestMetrics struct {
	oneshotTotal    *prometheus.CounterVec
	oneshotDuration prometheus.Histogram
	upstreamErrors  *prometheus.CounterVec
}

// NewRequestMetrics creates and registers request metrics with the provided registry.
func NewRequestMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RequestMetrics {
	rm := &RequestMetrics{
		oneshotTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "oneshot_requests_total",
				Help:      "Total number of non-streaming requests relayed",
			},
			[]string{"status"},
		),

		oneshotDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "oneshot_duration_seconds",
				Help:      "Duration of non-streaming requests in seconds",
				Buckets:   cfg.StreamDurationBuckets,
			},
		),

		upstreamErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "upstream_errors_total",
				Help:      "Upstream failures by kind",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		rm.oneshotTotal,
		rm.oneshotDuration,
		rm.upstreamErrors,
	)

	return rm
}

// RecordOneShot records a finished non-streaming request.
func (rm *RequestMetrics) RecordOneShot(status string, duration time.Duration) {
	rm.oneshotTotal.WithLabelValues(status).Inc()
	rm.oneshotDuration.Observe(duration.Seconds())
}

// RecordUpstreamError counts an upstream failure.
func (rm *RequestMetrics) RecordUpstreamError(kind string) {
	rm.upstreamErrors.WithLabelValues(kind).Inc()
}
