package upstream

import (
	"errors"
	"fmt"
)

// ErrCancelled is returned once the stream's token has been signalled. The
// token's cause says who cancelled.
var ErrCancelled = errors.New("upstream call cancelled")

// ConnectionError means the upstream could not be reached (DNS, connect,
// TLS, reset before a response).
type ConnectionError struct {
	// Target is the URL that was dialled
	Target string

	// Cause is the transport error
	Cause error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("upstream %q unreachable: %v", e.Target, e.Cause)
}

// Unwrap returns the underlying error for error chain support.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// InvalidTargetError means the resolved base URL cannot be used.
type InvalidTargetError struct {
	BaseURL string
	Reason  string
}

// Error implements the error interface.
func (e *InvalidTargetError) Error() string {
	return fmt.Sprintf("invalid upstream target %q: %s", e.BaseURL, e.Reason)
}

// HTTPError is a non-2xx answer from the upstream. Status and Body are relayed
// to the client as they are.
type HTTPError struct {
	Status      int
	Body        []byte
	ContentType string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if len(e.Body) > 0 {
		return fmt.Sprintf("upstream error (status %d): %s", e.Status, truncate(e.Body, 200))
	}
	return fmt.Sprintf("upstream error (status %d)", e.Status)
}

// StreamError is a failure while reading an already established stream.
type StreamError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("upstream stream error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("upstream stream error: %s", e.Message)
}

// Unwrap returns the underlying error for error chain support.
func (e *StreamError) Unwrap() error {
	return e.Cause
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
