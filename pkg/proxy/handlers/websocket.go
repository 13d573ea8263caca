package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"mercator-hq/relay/pkg/proxy"
	"mercator-hq/relay/pkg/proxy/types"
	"mercator-hq/relay/pkg/session"
	"mercator-hq/relay/pkg/telemetry/logging"
)

// wsRequestWait bounds how long a client may take to send the request
// message after the upgrade.
const wsRequestWait = 30 * time.Second

// WebSocketHandler relays a streaming completion over a WebSocket. The
// client sends one text message holding the request body; every upstream
// chunk comes back as one text message, then "[DONE]" and a normal closure.
// Closing the socket cancels the session.
type WebSocketHandler struct {
	*Relay
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler. allowedOrigins is
// checked against the Origin header; "*" allows any origin and an empty list
// only allows same-origin browsers.
func NewWebSocketHandler(relay *Relay, allowedOrigins []string) *WebSocketHandler {
	h := &WebSocketHandler{
		Relay: relay,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	if slices.Contains(allowedOrigins, "*") {
		h.upgrader.CheckOrigin = func(*http.Request) bool { return true }
	} else if len(allowedOrigins) > 0 {
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowedOrigins, origin)
		}
	}
	return h
}

// ServeHTTP implements the http.Handler interface.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Credentials are checked before the upgrade so failures get a plain
	// HTTP error response.
	creds, err := h.Resolver.Resolve(r.Header)
	if err != nil {
		slog.WarnContext(ctx, "websocket request rejected", "error", err)
		_ = proxy.WriteErrorResponse(w, proxy.HandleError(err))
		return
	}

	sessionID := proxy.ResolveSessionID(r.Header)
	ctx = logging.WithSessionID(ctx, sessionID)

	conn, err := h.upgrader.Upgrade(w, r, http.Header{proxy.SessionIDHeader: {sessionID}})
	if err != nil {
		// Upgrade already wrote the HTTP error.
		slog.WarnContext(ctx, "websocket upgrade failed", "error", err)
		return
	}
	sink := proxy.NewWebSocketSink(conn)

	maxBody := h.MaxBodySize
	if maxBody <= 0 {
		maxBody = proxy.MaxRequestBodySize
	}
	conn.SetReadLimit(maxBody)
	_ = conn.SetReadDeadline(time.Now().Add(wsRequestWait))

	_, body, err := conn.ReadMessage()
	if err != nil {
		slog.InfoContext(ctx, "websocket closed before request", "error", err)
		sink.Abort()
		return
	}

	path := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, h.PathPrefix), "/ws")
	env := proxy.NewEnvelope(http.MethodPost, path, "", r.Header.Clone(), body)
	if !env.Streaming() {
		_ = sink.Write(proxy.ErrorPayload(types.NewErrorResponse(
			`websocket requests must set "stream": true`, types.CodeInvalidRequest, nil,
		)))
		_ = sink.End()
		return
	}

	ctx, span := h.startSpan(ctx, "websocket", sessionID, env)
	defer span.End()

	token, release := newToken(ctx, r)
	defer release()

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go sink.WatchPeer(watchCtx, func() {
		token.Cancel(session.ErrClientDisconnected)
	})

	res, err := h.Upstream.Initiate(env.UpstreamRequest(), creds, token)
	if err != nil {
		if token.Silent() {
			slog.InfoContext(ctx, "stream cancelled before upstream responded", "cause", token.Cause())
			sink.Abort()
			return
		}
		h.upstreamFailed(span, err)
		slog.WarnContext(ctx, "upstream stream failed to open", "error", err)
		_ = sink.Write(proxy.ErrorPayload(proxy.HandleError(err)))
		_ = sink.End()
		return
	}

	rec := h.Registry.Register(sessionID, sink, token, env.Metadata(r))
	result := h.Pump.Run(ctx, rec, res.Stream, env)
	finishSpan(span, result)

	// The connection is hijacked, so nothing else closes it. Completed and
	// errored streams were ended by the pump; shutdown ends them gracefully.
	if errors.Is(result.Err, session.ErrShutdown) {
		_ = sink.End()
	} else {
		sink.Abort()
	}
}
