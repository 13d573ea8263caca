package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"mercator-hq/relay/pkg/session"
)

// maxErrorBody bounds how much of a non-2xx upstream body is buffered.
const maxErrorBody = 1 << 20

// hopHeaders are connection-scoped and never forwarded.
var hopHeaders = map[string]struct{}{
	"Connection":          {},
	"Proxy-Connection":    {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// routingHeaders steer the relay itself and are not meant for the upstream.
var routingHeaders = map[string]struct{}{
	"Authorization":  {},
	"X-Target-Url":   {},
	"X-Base-Url":     {},
	"X-Api-Key":      {},
	"X-Session-Id":   {},
	"Content-Length": {},
	"Host":           {},
	"Cookie":         {},
}

// Credentials identify where to send a call and with which key.
type Credentials struct {
	BaseURL string
	APIKey  string
}

// Request is the client request as it should be replayed upstream.
type Request struct {
	Method string

	// Path is appended to the credentials' base URL, e.g. "/chat/completions".
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte

	// Stream selects streaming mode.
	Stream bool
}

// Response is a complete one-shot answer.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Result is what Initiate produced: Stream in streaming mode, Response in
// one-shot mode.
type Result struct {
	Stream   *ChunkStream
	Response *Response
}

// Config tunes the upstream HTTP client.
type Config struct {
	// Timeout bounds one-shot calls. Streaming calls are bounded by their token.
	Timeout             time.Duration
	MaxRetries          int
	RetryBackoff        time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

// Client issues completion calls against whatever target the credentials name.
type Client struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// NewClient creates a client with a pooled transport.
func NewClient(config Config) *Client {
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = time.Second
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}

	return &Client{
		config: config,
		// No client-level timeout: it would cut long streams.
		client: &http.Client{Transport: transport},
		logger: slog.Default().With("component", "upstream"),
	}
}

// Initiate starts the call described by req. The HTTP exchange is bound to
// token: once the token fires the connection is torn down and further reads
// fail with ErrCancelled.
func (c *Client) Initiate(req Request, creds Credentials, token *session.Token) (*Result, error) {
	if req.Stream {
		stream, err := c.openStream(token, req, creds)
		if err != nil {
			return nil, err
		}
		return &Result{Stream: stream}, nil
	}

	resp, err := c.do(token, req, creds)
	if err != nil {
		return nil, err
	}
	return &Result{Response: resp}, nil
}

func (c *Client) openStream(token *session.Token, req Request, creds Credentials) (*ChunkStream, error) {
	target, err := TargetURL(creds.BaseURL, req.Path, req.RawQuery)
	if err != nil {
		return nil, err
	}

	httpReq, err := c.newRequest(token.Context(), req, creds, target)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	c.logger.DebugContext(token.Context(), "opening upstream stream", "url", target)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, c.transportError(token, target, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, readHTTPError(resp)
	}

	return newChunkStream(resp.Body, token), nil
}

func (c *Client) do(token *session.Token, req Request, creds Credentials) (*Response, error) {
	target, err := TargetURL(creds.BaseURL, req.Path, req.RawQuery)
	if err != nil {
		return nil, err
	}

	ctx := token.Context()
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * c.config.RetryBackoff
			c.logger.Debug("retrying upstream call",
				"attempt", attempt,
				"max_retries", c.config.MaxRetries,
				"backoff", backoff,
			)

			select {
			case <-ctx.Done():
				if token.Cancelled() {
					return nil, ErrCancelled
				}
				return nil, lastErr
			case <-time.After(backoff):
			}
		}

		httpReq, err := c.newRequest(ctx, req, creds, target)
		if err != nil {
			return nil, err
		}

		resp, err := c.client.Do(httpReq)
		if err != nil {
			lastErr = c.transportError(token, target, err)
			// Only a failed dial is safe to repeat: once the request was
			// written the upstream may already be generating (and billing).
			if !retryable(err) || ctx.Err() != nil {
				return nil, lastErr
			}
			c.logger.Warn("upstream call failed, will retry", "attempt", attempt+1, "error", err)
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, readHTTPError(resp)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			if token.Cancelled() {
				return nil, ErrCancelled
			}
			return nil, &StreamError{Message: "failed to read response", Cause: err}
		}

		return &Response{Status: resp.StatusCode, Header: resp.Header.Clone(), Body: body}, nil
	}

	return nil, lastErr
}

func (c *Client) newRequest(ctx context.Context, req Request, creds Credentials, target string) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &InvalidTargetError{BaseURL: target, Reason: err.Error()}
	}

	copyHeaders(httpReq.Header, req.Header)
	if httpReq.Header.Get("Content-Type") == "" && req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if creds.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+creds.APIKey)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	return httpReq, nil
}

// transportError classifies an error returned by http.Client.Do.
func (c *Client) transportError(token *session.Token, target string, err error) error {
	if token.Cancelled() {
		return ErrCancelled
	}
	return &ConnectionError{Target: target, Cause: err}
}

// retryable reports whether err happened before the request left the
// client, i.e. while dialling (DNS, connect refused, connect timeout).
func retryable(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// CloseIdleConnections releases pooled connections.
func (c *Client) CloseIdleConnections() {
	c.client.CloseIdleConnections()
}

// TargetURL joins base, path and query into the upstream URL.
func TargetURL(base, path, rawQuery string) (string, error) {
	if strings.TrimSpace(base) == "" {
		return "", &InvalidTargetError{BaseURL: base, Reason: "empty base URL"}
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", &InvalidTargetError{BaseURL: base, Reason: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &InvalidTargetError{BaseURL: base, Reason: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}
	if u.Host == "" {
		return "", &InvalidTargetError{BaseURL: base, Reason: "missing host"}
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	u.RawPath = ""
	if rawQuery != "" {
		u.RawQuery = rawQuery
	}
	return u.String(), nil
}

func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		ck := http.CanonicalHeaderKey(k)
		if _, hop := hopHeaders[ck]; hop {
			continue
		}
		if _, routing := routingHeaders[ck]; routing {
			continue
		}
		for _, v := range vv {
			dst.Add(ck, v)
		}
	}
	// Headers named in Connection are hop-by-hop too.
	for _, f := range src.Values("Connection") {
		for _, name := range strings.Split(f, ",") {
			dst.Del(strings.TrimSpace(name))
		}
	}
}

// CopyResponseHeaders copies end-to-end headers of an upstream response to
// the client response. Content-Length is recomputed by net/http.
func CopyResponseHeaders(dst, src http.Header) {
	for k, vv := range src {
		ck := http.CanonicalHeaderKey(k)
		if _, hop := hopHeaders[ck]; hop || ck == "Content-Length" || ck == "Set-Cookie" {
			continue
		}
		dst[ck] = append([]string(nil), vv...)
	}
}

func readHTTPError(resp *http.Response) *HTTPError {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &HTTPError{
		Status:      resp.StatusCode,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
	}
}
