package metrics

import (
	"strconv"
	"time"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/proxy"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns every relay metric. It is wired into the session registry
// as a session.Observer, into the pump as a proxy.StreamObserver, and into
// the HTTP handlers as their RequestMetrics. All labels come from small
// fixed sets, so no cardinality limiting is needed.
//
// A collector built from a disabled config accepts every call and records
// nothing.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	streams  *StreamMetrics
	requests *RequestMetrics
}

// NewCollector creates a collector with the specified configuration and
// Prometheus registry. If registry is nil, a fresh registry is created.
//
// Example:
//
//	cfg := &config.MetricsConfig{Enabled: true, Namespace: "relay"}
//	collector := metrics.NewCollector(cfg, nil)
//	registry := session.NewRegistry(session.WithObserver(collector))
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	resolved := *cfg
	if resolved.Namespace == "" {
		resolved.Namespace = config.DefaultMetricsNamespace
	}
	if len(resolved.StreamDurationBuckets) == 0 {
		resolved.StreamDurationBuckets = config.DefaultStreamDurationBuckets
	}

	c := &Collector{
		config:   &resolved,
		registry: registry,
	}

	c.streams = NewStreamMetrics(&resolved, registry)
	c.requests = NewRequestMetrics(&resolved, registry)

	return c
}

// Registry returns the registry the collector registered into.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ActiveStreams sets the active stream gauge.
func (c *Collector) ActiveStreams(n int) {
	if !c.config.Enabled {
		return
	}
	c.streams.SetActive(n)
}

// AbortRequested counts an abort call by whether the session was found.
func (c *Collector) AbortRequested(found bool) {
	if !c.config.Enabled {
		return
	}
	result := "not_found"
	if found {
		result = "found"
	}
	c.streams.RecordAbort(result)
}

// StreamChunk counts one relayed chunk.
func (c *Collector) StreamChunk() {
	if !c.config.Enabled {
		return
	}
	c.streams.RecordChunk()
}

// StreamFinished records a stream's terminal state and lifetime.
func (c *Collector) StreamFinished(state proxy.State, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.streams.RecordFinished(string(state), duration)
}

// OneShotFinished records a non-streaming exchange by response status.
func (c *Collector) OneShotFinished(status int, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.requests.RecordOneShot(strconv.Itoa(status), duration)
}

// UpstreamError counts an upstream failure by kind (see proxy.ErrorKind).
func (c *Collector) UpstreamError(kind string) {
	if !c.config.Enabled {
		return
	}
	c.requests.RecordUpstreamError(kind)
}

// ArchiveStats is the read side of the transcript recorder.
type ArchiveStats interface {
	Recorded() int64
	Dropped() int64
}

// RegisterArchive exposes the recorder's counters. Values are read at
// scrape time.
func (c *Collector) RegisterArchive(stats ArchiveStats) {
	if !c.config.Enabled || stats == nil {
		return
	}
	c.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "archive_transcripts_recorded_total",
			Help:      "Transcripts written to the archive",
		}, func() float64 { return float64(stats.Recorded()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: c.config.Namespace,
			Subsystem: c.config.Subsystem,
			Name:      "archive_transcripts_dropped_total",
			Help:      "Transcripts dropped because the archive queue was full",
		}, func() float64 { return float64(stats.Dropped()) }),
	)
}
