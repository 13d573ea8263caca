package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"mercator-hq/relay/pkg/archive"
	"mercator-hq/relay/pkg/proxy"
	"mercator-hq/relay/pkg/session"
	"mercator-hq/relay/pkg/telemetry/logging"
	"mercator-hq/relay/pkg/telemetry/tracing"
	"mercator-hq/relay/pkg/upstream"
)

// ProxyHandler relays /v1/* calls to the upstream named by the request's
// credential headers. Requests with "stream": true are relayed as Server-Sent
// Events and registered as abortable sessions; everything else is forwarded
// one-shot.
type ProxyHandler struct {
	*Relay
}

// NewProxyHandler creates a new proxy handler.
func NewProxyHandler(relay *Relay) *ProxyHandler {
	return &ProxyHandler{Relay: relay}
}

// ServeHTTP implements the http.Handler interface.
func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	creds, err := h.Resolver.Resolve(r.Header)
	if err != nil {
		slog.WarnContext(ctx, "request rejected", "error", err)
		_ = proxy.WriteErrorResponse(w, proxy.HandleError(err))
		return
	}

	env, err := proxy.ParseEnvelope(r, h.PathPrefix, h.MaxBodySize)
	if err != nil {
		slog.WarnContext(ctx, "request body rejected", "error", err)
		_ = proxy.WriteErrorResponse(w, proxy.HandleError(err))
		return
	}

	sessionID := proxy.ResolveSessionID(r.Header)
	w.Header().Set(proxy.SessionIDHeader, sessionID)
	ctx = logging.WithSessionID(ctx, sessionID)

	ctx, span := h.startSpan(ctx, "http", sessionID, env)
	defer span.End()

	token, release := newToken(ctx, r)
	defer release()

	slog.DebugContext(ctx, "relaying request",
		"mode", env.Mode.String(),
		"model", env.Model,
		"path", env.Path,
		"target", creds.BaseURL,
		"api_key", logging.RedactAPIKey(creds.APIKey),
	)

	if env.Streaming() {
		h.serveStream(ctx, w, r, span, env, creds, sessionID, token)
		return
	}
	h.serveOneShot(ctx, w, span, env, creds, sessionID, token)
}

// serveStream opens the upstream stream, registers the session and pumps
// chunks until a terminal state. An aborted sink ends the handler with
// http.ErrAbortHandler so the connection is dropped without a terminal event.
func (h *ProxyHandler) serveStream(ctx context.Context, w http.ResponseWriter, r *http.Request, span trace.Span,
	env *proxy.Envelope, creds upstream.Credentials, sessionID string, token *session.Token) {
	res, err := h.Upstream.Initiate(env.UpstreamRequest(), creds, token)
	if err != nil {
		if token.Silent() {
			slog.InfoContext(ctx, "stream cancelled before upstream responded", "cause", token.Cause())
			return
		}
		h.upstreamFailed(span, err)
		slog.WarnContext(ctx, "upstream stream failed to open",
			"error", err,
			"status", proxy.ErrorStatus(err),
		)
		_ = proxy.WriteError(w, err)
		return
	}

	sink := proxy.NewSSESink(w)
	rec := h.Registry.Register(sessionID, sink, token, env.Metadata(r))
	if err := sink.Open(); err != nil {
		token.Cancel(session.ErrClientDisconnected)
	}

	result := h.Pump.Run(ctx, rec, res.Stream, env)
	finishSpan(span, result)

	// An admin abort may claim the stream before its sink is aborted.
	if sink.Aborted() || errors.Is(result.Err, session.ErrAbortedByCaller) {
		panic(http.ErrAbortHandler)
	}
}

// serveOneShot forwards the call and copies the upstream answer verbatim.
func (h *ProxyHandler) serveOneShot(ctx context.Context, w http.ResponseWriter, span trace.Span,
	env *proxy.Envelope, creds upstream.Credentials, sessionID string, token *session.Token) {
	start := time.Now()

	res, err := h.Upstream.Initiate(env.UpstreamRequest(), creds, token)
	if err != nil {
		if token.Silent() {
			slog.InfoContext(ctx, "request cancelled before upstream responded", "cause", token.Cause())
			return
		}
		status := proxy.ErrorStatus(err)
		h.upstreamFailed(span, err)
		h.oneShotFinished(status, start)
		slog.WarnContext(ctx, "upstream request failed",
			"error", err,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		)
		_ = proxy.WriteError(w, err)
		return
	}

	resp := res.Response
	upstream.CopyResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.Status)
	if _, err := w.Write(resp.Body); err != nil {
		slog.DebugContext(ctx, "client went away during one-shot response", "error", err)
	}

	tracing.SetStatusCode(span, resp.Status)
	h.oneShotFinished(resp.Status, start)

	if h.Recorder != nil {
		h.Recorder.Record(&archive.Transcript{
			SessionID:   sessionID,
			Model:       env.Model,
			Mode:        proxy.ModeOneShot.String(),
			Path:        env.Path,
			Messages:    env.MessageCount,
			Content:     archive.MessageContent(resp.Body),
			Outcome:     string(proxy.StateCompleted),
			StartedAt:   start,
			CompletedAt: time.Now(),
		})
	}

	slog.InfoContext(ctx, "one-shot request completed",
		"model", env.Model,
		"status", resp.Status,
		"latency_ms", time.Since(start).Milliseconds(),
	)
}

func (h *ProxyHandler) oneShotFinished(status int, start time.Time) {
	if h.Metrics != nil {
		h.Metrics.OneShotFinished(status, time.Since(start))
	}
}
