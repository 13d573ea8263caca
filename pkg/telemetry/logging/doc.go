// Package logging configures the process-wide slog logger.
//
// # Overview
//
// New builds a *Logger around a JSON or text slog handler and adds:
//   - Secret redaction for API keys and bearer tokens
//   - Request, session and trace identifiers taken from the context
//   - A level that can be changed at runtime (config reload)
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:         "info",
//	    Format:        "json",
//	    RedactSecrets: true,
//	})
//	slog.SetDefault(logger.Slog())
//
//	ctx = logging.WithSessionID(ctx, "chat-42")
//	slog.InfoContext(ctx, "stream completed") // includes session_id
//
// # Redaction
//
// Values under sensitive keys (authorization, api_key, token, ...) are
// shortened to a four character hint. String values anywhere else are
// scanned for sk- style keys and bearer tokens:
//
//   - sk-abc123xyz → sk-***
//   - Bearer eyJhbGci... → Bearer ***
package logging
