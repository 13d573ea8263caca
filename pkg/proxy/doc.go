// Package proxy is the core of the relay: it turns a client request into an
// upstream call and pumps the upstream's event stream back to the client.
//
// The package is transport-agnostic. HTTP routing lives in the handlers
// subpackage; here are the pieces those handlers are assembled from:
//
//   - Resolver: maps request headers to upstream credentials
//   - Envelope: the request body plus the decision to stream or not
//   - Pump: drains upstream chunks into a session sink
//   - SSESink, WebSocketSink: the two client-facing sinks
//   - HandleError, WriteError: the single error body shape
//
// # Credentials
//
// Resolve accepts, in order of precedence:
//
//	Authorization: Bearer <key>  +  X-Target-URL: <base>
//	X-Base-URL: <base>           +  X-Api-Key: <key>
//	Authorization: Bearer <key>     (against the default target)
//
// Anything else fails with ErrAuthMissing. The default target can be swapped
// with SetDefaultTarget while requests are in flight.
//
// # Streaming vs one-shot
//
// ParseEnvelope reads the body once and peeks at it with gjson. A JSON body
// with "stream": true is relayed as a stream and tracked as a session; every
// other body, including one that is not JSON, is forwarded one-shot and the
// upstream response copied back unchanged.
//
// # Stream lifecycle
//
// A stream moves through these states:
//
//	started -> relaying -> completed
//	                    -> aborted   (client gone, admin abort, shutdown)
//	                    -> errored   (upstream failure, idle timeout)
//
// Pump.Run owns the upstream source for the stream's lifetime. Each chunk is
// written to the sink as one event; a natural end writes the terminal
// "[DONE]" event. Errors that reach the client after the stream opened are
// sent as one final error event, since the status line is already gone.
// The record is always released from the registry before Run returns.
//
// Example:
//
//	pump := proxy.NewPump(registry,
//	    proxy.WithIdleTimeout(2*time.Minute),
//	    proxy.WithStreamObserver(collector),
//	)
//	rec := registry.Register(id, proxy.NewSSESink(w), session.NewToken(ctx), env.Metadata(r))
//	result := pump.Run(ctx, rec, source, env)
//
// # Error Handling
//
// Every error the relay produces has one shape:
//
//	{"error": "upstream unreachable", "code": "connection_error", "details": "..."}
//
// Upstream HTTP errors on a one-shot request are the exception: WriteError
// passes the upstream status, content type and body through verbatim.
//
// # Thread Safety
//
// Resolver and Pump are safe for concurrent use. A sink is owned by one
// stream, but Abort may be called from any goroutine.
package proxy
