package proxy

import (
	"errors"
	"strconv"

	"mercator-hq/relay/pkg/proxy/types"
	"mercator-hq/relay/pkg/session"
	"mercator-hq/relay/pkg/upstream"
)

// HandleError converts an error into the relay's error body. Upstream HTTP
// errors are normally passed through verbatim by WriteError instead.
//
// Example usage:
//
//	if err != nil {
//	    WriteErrorResponse(w, HandleError(err))
//	    return
//	}
func HandleError(err error) *types.ErrorResponse {
	switch {
	case errors.Is(err, ErrAuthMissing):
		return types.NewErrorResponse(err.Error(), types.CodeAuthMissing, nil)
	case errors.Is(err, ErrAuthInvalid):
		return types.NewErrorResponse(err.Error(), types.CodeAuthInvalid, AuthorizationHeader)
	case errors.Is(err, session.ErrIdleTimeout):
		return types.NewErrorResponse("upstream stopped sending data", types.CodeUpstreamIdleTimeout, nil)
	}

	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		if reqErr.TooLarge {
			return types.NewErrorResponse(reqErr.Error(), types.CodeRequestTooLarge, nil)
		}
		return types.NewErrorResponse(reqErr.Error(), types.CodeInvalidRequest, nil)
	}

	var targetErr *upstream.InvalidTargetError
	if errors.As(err, &targetErr) {
		return types.NewErrorResponse("invalid upstream target", types.CodeInvalidTargetURL, targetErr.Error())
	}

	var connErr *upstream.ConnectionError
	if errors.As(err, &connErr) {
		var details any
		if connErr.Cause != nil {
			details = connErr.Cause.Error()
		}
		return types.NewErrorResponse("upstream unreachable", types.CodeConnectionError, details)
	}

	var httpErr *upstream.HTTPError
	if errors.As(err, &httpErr) {
		return types.NewErrorResponse(httpErr.Error(), types.CodeUpstreamError, map[string]int{"status": httpErr.Status})
	}

	var streamErr *upstream.StreamError
	if errors.As(err, &streamErr) {
		return types.NewErrorResponse("upstream stream interrupted", types.CodeStreamError, streamErr.Error())
	}

	return types.NewInternalError("an internal error occurred")
}

// ErrorStatus returns the HTTP status WriteError uses for err.
func ErrorStatus(err error) int {
	var httpErr *upstream.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	return HandleError(err).HTTPStatusCode()
}

// ErrorKind classifies err for metrics labels.
func ErrorKind(err error) string {
	var (
		targetErr *upstream.InvalidTargetError
		connErr   *upstream.ConnectionError
		httpErr   *upstream.HTTPError
		streamErr *upstream.StreamError
	)
	switch {
	case errors.As(err, &targetErr):
		return "invalid_target"
	case errors.As(err, &connErr):
		return "connection"
	case errors.As(err, &httpErr):
		return "http_" + strconv.Itoa(httpErr.Status/100) + "xx"
	case errors.As(err, &streamErr):
		return "stream"
	case errors.Is(err, session.ErrIdleTimeout):
		return "idle_timeout"
	case errors.Is(err, upstream.ErrCancelled):
		return "cancelled"
	default:
		return "other"
	}
}
