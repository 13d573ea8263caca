// Package metrics provides Prometheus metrics collection for the relay.
//
// # Overview
//
// A single Collector owns a registry and the relay's metric families. It
// is passed to the components that produce events rather than being
// reached through globals:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	registry := session.NewRegistry(session.WithObserver(collector))
//	pump := proxy.NewPump(registry, proxy.WithStreamObserver(collector))
//	relay := &handlers.Relay{Metrics: collector, ...}
//	router.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
// # Metrics
//
//   - relay_streams_active (gauge)
//   - relay_streams_total{outcome}
//   - relay_stream_duration_seconds{outcome} (histogram)
//   - relay_stream_chunks_total
//   - relay_session_aborts_total{result}
//   - relay_oneshot_requests_total{status}
//   - relay_oneshot_duration_seconds (histogram)
//   - relay_upstream_errors_total{kind}
//   - relay_archive_transcripts_recorded_total, relay_archive_transcripts_dropped_total
//
// Outcomes are the terminal stream states: completed, aborted, errored.
package metrics
