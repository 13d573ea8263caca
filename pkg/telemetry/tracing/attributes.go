package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys used on relay spans.
const (
	AttrSessionID = attribute.Key("relay.session_id")
	AttrTransport = attribute.Key("relay.transport")
	AttrMode      = attribute.Key("relay.mode")
	AttrModel     = attribute.Key("relay.model")
	AttrPath      = attribute.Key("relay.path")
	AttrOutcome   = attribute.Key("relay.outcome")
	AttrChunks    = attribute.Key("relay.chunks")
	AttrErrorKind = attribute.Key("relay.error_kind")
	AttrStatus    = attribute.Key("http.response.status_code")
)

// RequestAttributes describes a proxied request. An empty model is omitted.
func RequestAttributes(sessionID, transport, mode, model, path string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		AttrSessionID.String(sessionID),
		AttrTransport.String(transport),
		AttrMode.String(mode),
		AttrPath.String(path),
	}
	if model != "" {
		attrs = append(attrs, AttrModel.String(model))
	}
	return attrs
}

// SetOutcome records how a stream ended.
func SetOutcome(span trace.Span, outcome string, chunks int) {
	span.SetAttributes(
		AttrOutcome.String(outcome),
		AttrChunks.Int(chunks),
	)
}

// SetStatusCode records the HTTP status returned to the client.
func SetStatusCode(span trace.Span, status int) {
	span.SetAttributes(AttrStatus.Int(status))
}

// SetError marks the span as failed. kind is a short, low-cardinality
// classification used as the status description.
func SetError(span trace.Span, err error, kind string) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetAttributes(AttrErrorKind.String(kind))
	span.SetStatus(codes.Error, kind)
}

// SpanContext returns the span context carried by ctx. It is invalid when
// ctx holds no span.
func SpanContext(ctx context.Context) trace.SpanContext {
	return trace.SpanContextFromContext(ctx)
}

// TraceID returns the trace ID in ctx as a string, or "" when there is none.
func TraceID(ctx context.Context) string {
	sc := SpanContext(ctx)
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
