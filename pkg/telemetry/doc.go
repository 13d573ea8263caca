// Package telemetry groups the relay's observability packages.
//
// # Components
//
//   - logging: slog setup with request and session ids carried in context,
//     and credential redaction
//   - metrics: Prometheus collector for streams, one-shot requests, upstream
//     errors and the transcript archive
//   - tracing: OpenTelemetry tracer with OTLP/gRPC export and W3C propagation
//   - health: liveness, readiness and version endpoints
//
// # Usage
//
//	logger, _ := logging.New(logging.Config{Level: "info", Format: "json", RedactSecrets: true})
//	slog.SetDefault(logger.Slog())
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	registry := session.NewRegistry(session.WithObserver(collector))
//
//	tracer, _ := tracing.New(&cfg.Telemetry.Tracing, tracing.WithServiceVersion(version))
//	defer tracer.Shutdown(ctx)
//
//	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
//	checker.SetActiveStreams(registry.Len)
//
// # Credential Redaction
//
// With redaction on, log output never carries upstream keys:
//
//   - API keys: sk-abc123 → sk-***
//   - Bearer tokens: Bearer abc.def → Bearer ***
package telemetry
