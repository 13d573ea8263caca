package proxy

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"mercator-hq/relay/pkg/upstream"
)

// MaxRequestBodySize is the default limit for request bodies (10MB).
const MaxRequestBodySize = 10 * 1024 * 1024

// Mode is how a request is served.
type Mode int

const (
	// ModeOneShot forwards a single response body.
	ModeOneShot Mode = iota

	// ModeStreaming relays an event stream and tracks it as a session.
	ModeStreaming
)

// String returns the mode name used in logs and metrics.
func (m Mode) String() string {
	if m == ModeStreaming {
		return "streaming"
	}
	return "oneshot"
}

// Envelope is a client request after the relay has decided how to serve it.
// The body is kept as received; only a few fields are peeked at.
type Envelope struct {
	Mode Mode

	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte

	// Model and MessageCount are read for observability only.
	Model        string
	MessageCount int
}

// RequestError is a request that could not be read.
type RequestError struct {
	Message  string
	TooLarge bool
	Cause    error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for error chain support.
func (e *RequestError) Unwrap() error {
	return e.Cause
}

// ParseEnvelope reads the request body (at most maxBody bytes) and decides
// the mode. A JSON body with "stream": true is streaming; everything else,
// including bodies that are not JSON, is forwarded one-shot. prefix is
// stripped from the path before it is appended to the upstream base URL.
func ParseEnvelope(r *http.Request, prefix string, maxBody int64) (*Envelope, error) {
	if maxBody <= 0 {
		maxBody = MaxRequestBodySize
	}

	var body []byte
	if r.Body != nil && r.Body != http.NoBody {
		var err error
		body, err = io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBody))
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return nil, &RequestError{
					Message:  fmt.Sprintf("request body exceeds %d bytes", maxBody),
					TooLarge: true,
				}
			}
			return nil, &RequestError{Message: "failed to read request body", Cause: err}
		}
	}

	return NewEnvelope(r.Method, strings.TrimPrefix(r.URL.Path, prefix), r.URL.RawQuery, r.Header.Clone(), body), nil
}

// NewEnvelope builds an envelope from an already-read body.
func NewEnvelope(method, path, rawQuery string, header http.Header, body []byte) *Envelope {
	env := &Envelope{
		Mode:     ModeOneShot,
		Method:   method,
		Path:     path,
		RawQuery: rawQuery,
		Header:   header,
		Body:     body,
	}

	if len(body) > 0 && gjson.ValidBytes(body) {
		doc := gjson.ParseBytes(body)
		if doc.Get("stream").Bool() {
			env.Mode = ModeStreaming
		}
		env.Model = doc.Get("model").String()
		env.MessageCount = int(doc.Get("messages.#").Int())
	}

	return env
}

// Streaming reports whether the envelope is served as a stream.
func (e *Envelope) Streaming() bool {
	return e.Mode == ModeStreaming
}

// UpstreamRequest converts the envelope into the upstream call.
func (e *Envelope) UpstreamRequest() upstream.Request {
	return upstream.Request{
		Method:   e.Method,
		Path:     e.Path,
		RawQuery: e.RawQuery,
		Header:   e.Header,
		Body:     e.Body,
		Stream:   e.Streaming(),
	}
}

// Metadata describes the request for the session registry and logs.
func (e *Envelope) Metadata(r *http.Request) map[string]string {
	md := map[string]string{
		"mode":     e.Mode.String(),
		"messages": strconv.Itoa(e.MessageCount),
		"path":     e.Path,
	}
	if e.Model != "" {
		md["model"] = e.Model
	}
	if ua := r.UserAgent(); ua != "" {
		md["client"] = ua
	}
	return md
}

// ResolveSessionID returns the caller-supplied session id, or a new one when
// the header is absent or blank. It is called once per request.
func ResolveSessionID(h http.Header) string {
	if id := strings.TrimSpace(h.Get(SessionIDHeader)); id != "" {
		return id
	}
	return uuid.NewString()
}
