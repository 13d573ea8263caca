package handlers

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/relay/pkg/proxy"
	"mercator-hq/relay/pkg/session"
	"mercator-hq/relay/pkg/telemetry/tracing"
	"mercator-hq/relay/pkg/upstream"
)

// Upstream starts completion calls against the caller's provider.
type Upstream interface {
	Initiate(req upstream.Request, creds upstream.Credentials, token *session.Token) (*upstream.Result, error)
}

// StreamRegistry is the part of the session registry the relay handlers use.
type StreamRegistry interface {
	Register(id string, sink session.Sink, token *session.Token, metadata map[string]string) *session.Record
}

// RequestMetrics receives outcomes the stream pump does not see.
type RequestMetrics interface {
	OneShotFinished(status int, duration time.Duration)
	UpstreamError(kind string)
}

// Relay bundles the collaborators shared by the HTTP and WebSocket entry
// points. Recorder, Metrics and Tracer are optional.
type Relay struct {
	Resolver *proxy.Resolver
	Upstream Upstream
	Registry StreamRegistry
	Pump     *proxy.Pump

	Recorder proxy.TranscriptRecorder
	Metrics  RequestMetrics
	Tracer   trace.Tracer

	// PathPrefix is stripped from request paths before they are appended
	// to the upstream base URL.
	PathPrefix string

	// MaxBodySize bounds request bodies. 0 uses proxy.MaxRequestBodySize.
	MaxBodySize int64
}

func (rl *Relay) tracer() trace.Tracer {
	if rl.Tracer != nil {
		return rl.Tracer
	}
	return otel.Tracer(tracing.InstrumentationName)
}

// startSpan opens the per-request span.
func (rl *Relay) startSpan(ctx context.Context, transport, sessionID string, env *proxy.Envelope) (context.Context, trace.Span) {
	return rl.tracer().Start(ctx, "relay.proxy",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(tracing.RequestAttributes(sessionID, transport, env.Mode.String(), env.Model, env.Path)...),
	)
}

// newToken creates the session token for a request. It fires with
// ErrClientDisconnected when the client's request context ends. The returned
// func must be called once the request is done.
func newToken(ctx context.Context, r *http.Request) (*session.Token, func()) {
	token := session.NewToken(ctx)
	stop := context.AfterFunc(r.Context(), func() {
		token.Cancel(session.ErrClientDisconnected)
	})
	return token, func() {
		stop()
		token.Cancel(context.Canceled)
	}
}

// upstreamFailed records a failed upstream call on the span and in metrics.
func (rl *Relay) upstreamFailed(span trace.Span, err error) {
	tracing.SetError(span, err, proxy.ErrorKind(err))
	if rl.Metrics != nil {
		rl.Metrics.UpstreamError(proxy.ErrorKind(err))
	}
}

// finishSpan annotates the span with the stream outcome.
func finishSpan(span trace.Span, res proxy.PumpResult) {
	tracing.SetOutcome(span, string(res.State), res.Chunks)
	if res.State == proxy.StateErrored {
		tracing.SetError(span, res.Err, proxy.ErrorKind(res.Err))
	}
}
