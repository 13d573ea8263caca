// Package middleware provides HTTP middleware for cross-cutting concerns.
//
// # Middleware Chain
//
// The server installs the middleware in this order (outermost first):
//
//	Recovery → RequestID → Logging → CORS → handler
//
// Admin routes additionally sit behind AdminAuthMiddleware.
//
// # Streaming
//
// The logging wrapper implements Flush, Hijack and Unwrap so SSE flushing,
// write deadlines and WebSocket upgrades reach the real connection.
// RecoveryMiddleware re-raises http.ErrAbortHandler, which handlers use to
// hard-close an aborted stream.
package middleware
