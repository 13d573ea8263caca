// Package tracing provides OpenTelemetry distributed tracing for the relay.
//
// # Overview
//
// Each proxied request gets one server span named "relay.proxy" carrying
// the session id, transport, mode, model and, once the request is done,
// its outcome. Spans are exported in batches to an OTLP gRPC collector.
//
// # Trace Context Propagation
//
// W3C Trace Context is installed as the global propagator even when export
// is disabled. HTTPMiddleware extracts an incoming traceparent, and the
// upstream client injects the current context into every upstream call, so
// the relay is transparent in a caller's trace.
//
// # Sampling Strategies
//
//   - always: Sample all traces
//   - never: Sample no root traces
//   - ratio: Sample a fraction of traces by trace ID
//
// Samplers are parent-based: an upstream sampling decision is respected.
//
// # Usage
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, tracing.WithServiceVersion(version))
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	relay := &handlers.Relay{Tracer: tracer.Tracer(), ...}
package tracing
