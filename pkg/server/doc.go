// Package server provides the relay's HTTP server.
//
// It routes requests with chi, applies the middleware chain (recovery,
// request IDs, trace context extraction, access logging, CORS) and owns the
// listener lifecycle including TLS and graceful shutdown.
//
// # Routes
//
//	<prefix>/*              relayed to the upstream provider (HTTP or WebSocket)
//	GET    /health           liveness
//	GET    /ready            readiness, 503 while draining
//	GET    /version          build information
//	GET    <metrics path>    Prometheus scrape endpoint, when enabled
//	GET    /admin/sessions            active streams
//	DELETE /admin/sessions/{id}       abort one stream
//	GET    /admin/transcripts         archived transcripts
//	GET    /admin/transcripts/{id}    one transcript
//
// Requests under the prefix whose path ends in /ws and carry a WebSocket
// upgrade go to the WebSocket transport. Admin routes require the admin
// token when one is configured.
//
// # Shutdown
//
// Shutdown marks the health checker as draining, stops accepting
// connections, ends every active stream through the session registry and
// waits for handlers to return. Connections still open when the shutdown
// timeout expires are closed.
//
// # Usage
//
//	srv := server.New(cfg, server.Dependencies{
//	    Relay:    relay,
//	    Sessions: registry,
//	    Health:   checker,
//	})
//	if err := srv.Start(ctx); err != nil {
//	    return err
//	}
package server
