package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"mercator-hq/relay/pkg/proxy/types"
	"mercator-hq/relay/pkg/upstream"
)

// DonePayload is the data of the terminal event of a completed stream.
var DonePayload = []byte("[DONE]")

// WriteJSONResponse writes a JSON response to the HTTP response writer.
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON response: %w", err)
	}

	return nil
}

// WriteErrorResponse writes an error body with the status that goes with its code.
func WriteErrorResponse(w http.ResponseWriter, errResp *types.ErrorResponse) error {
	return WriteJSONResponse(w, errResp.HTTPStatusCode(), errResp)
}

// WriteError renders err for a response that has not started yet. Upstream
// HTTP errors keep the upstream status, content type and body.
func WriteError(w http.ResponseWriter, err error) error {
	var httpErr *upstream.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.ContentType != "" {
			w.Header().Set("Content-Type", httpErr.ContentType)
		}
		w.WriteHeader(httpErr.Status)
		_, werr := w.Write(httpErr.Body)
		return werr
	}
	return WriteErrorResponse(w, HandleError(err))
}

// ErrorPayload encodes errResp as the data of a stream's error event.
func ErrorPayload(errResp *types.ErrorResponse) []byte {
	data, err := json.Marshal(errResp)
	if err != nil {
		return []byte(`{"error":"an internal error occurred","code":"internal_error"}`)
	}
	return data
}

// SetSSEHeaders sets the appropriate headers for Server-Sent Events streaming.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}
