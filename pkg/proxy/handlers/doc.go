// Package handlers provides the HTTP handlers of the relay.
//
// # Handlers
//
//   - ProxyHandler: /v1/* calls. Streaming requests are relayed as Server-Sent
//     Events and registered as sessions; other requests are forwarded one-shot.
//   - WebSocketHandler: /v1/chat/completions/ws, the same stream over a
//     WebSocket.
//   - AdminHandler: listing and aborting live sessions, browsing transcripts.
//
// # Request Flow
//
// For a streaming request:
//
//  1. Credentials are resolved from the request headers. Failures answer 400
//     before anything else happens.
//  2. The session id is taken from X-Session-Id or generated, and echoed back.
//  3. A session token is created; it fires when the client disconnects.
//  4. The upstream stream is opened. Errors are answered as plain HTTP
//     responses (upstream HTTP errors pass through unchanged).
//  5. The session is registered and the pump relays chunks until [DONE], an
//     error event, or a silent abort.
//
// An abort from DELETE /admin/sessions/{id} fires the token and hard-closes
// the connection; the client sees the stream end without a terminal event.
package handlers
