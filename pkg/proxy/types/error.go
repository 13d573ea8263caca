package types

import "net/http"

// ErrorResponse is the body of every error the relay renders.
type ErrorResponse struct {
	// Error is a human-readable message.
	Error string `json:"error"`

	// Code is a machine-readable error code, one of the Code* constants.
	Code string `json:"code"`

	// Details carries optional context such as the offending header or the
	// upstream target.
	Details any `json:"details,omitempty"`
}

// Error codes.
const (
	// CodeAuthMissing indicates no usable credential headers were sent.
	CodeAuthMissing = "auth_missing"

	// CodeAuthInvalid indicates a credential header was present but malformed.
	CodeAuthInvalid = "auth_invalid"

	// CodeInvalidTargetURL indicates the resolved upstream base URL is unusable.
	CodeInvalidTargetURL = "invalid_target_url"

	// CodeInvalidRequest indicates the request could not be read.
	CodeInvalidRequest = "invalid_request"

	// CodeRequestTooLarge indicates the request body exceeded the limit.
	CodeRequestTooLarge = "request_too_large"

	// CodeConnectionError indicates the upstream could not be reached.
	CodeConnectionError = "connection_error"

	// CodeUpstreamError indicates the upstream answered with an error status.
	CodeUpstreamError = "upstream_error"

	// CodeStreamError indicates an established upstream stream broke.
	CodeStreamError = "stream_error"

	// CodeUpstreamIdleTimeout indicates the upstream stopped producing chunks.
	CodeUpstreamIdleTimeout = "upstream_idle_timeout"

	// CodeSessionNotFound indicates an admin call named an unknown session.
	CodeSessionNotFound = "session_not_found"

	// CodeUnauthorized indicates an admin call without a valid admin token.
	CodeUnauthorized = "unauthorized"

	// CodeInternalError is the catch-all.
	CodeInternalError = "internal_error"
)

// NewErrorResponse creates a new error response.
func NewErrorResponse(message, code string, details any) *ErrorResponse {
	return &ErrorResponse{Error: message, Code: code, Details: details}
}

// NewInternalError creates the catch-all 500 response.
func NewInternalError(message string) *ErrorResponse {
	return NewErrorResponse(message, CodeInternalError, nil)
}

// HTTPStatusCode returns the HTTP status that goes with the error code.
func (e *ErrorResponse) HTTPStatusCode() int {
	switch e.Code {
	case CodeAuthMissing, CodeAuthInvalid, CodeInvalidTargetURL, CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeSessionNotFound:
		return http.StatusNotFound
	case CodeRequestTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeConnectionError:
		return http.StatusServiceUnavailable
	case CodeUpstreamError, CodeStreamError:
		return http.StatusBadGateway
	case CodeUpstreamIdleTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
