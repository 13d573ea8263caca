package proxy

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"mercator-hq/relay/pkg/upstream"
)

// Header names recognized by the relay.
const (
	AuthorizationHeader = "Authorization"
	TargetURLHeader     = "X-Target-URL"
	BaseURLHeader       = "X-Base-URL"
	APIKeyHeader        = "X-Api-Key"
	SessionIDHeader     = "X-Session-Id"
)

var (
	// ErrAuthMissing means none of the accepted credential header
	// combinations was present.
	ErrAuthMissing = errors.New("no credentials: send Authorization, or X-Base-URL with X-Api-Key")

	// ErrAuthInvalid means the Authorization header was not "Bearer <token>".
	ErrAuthInvalid = errors.New("malformed Authorization header, expected \"Bearer <token>\"")
)

// Resolver turns request headers into upstream credentials. It holds the
// default target used when a caller sends only a bearer token; the default can
// be swapped at runtime when configuration is reloaded.
type Resolver struct {
	defaultTarget atomic.Pointer[string]
}

// NewResolver creates a resolver with the given default target.
func NewResolver(defaultTarget string) *Resolver {
	r := &Resolver{}
	r.SetDefaultTarget(defaultTarget)
	return r
}

// SetDefaultTarget replaces the default target.
func (r *Resolver) SetDefaultTarget(target string) {
	r.defaultTarget.Store(&target)
}

// DefaultTarget returns the current default target.
func (r *Resolver) DefaultTarget() string {
	return *r.defaultTarget.Load()
}

// Resolve applies the credential rules in priority order:
//
//  1. Authorization and X-Target-URL
//  2. X-Base-URL and X-Api-Key
//  3. Authorization alone, against the default target
//
// Anything else, including a bare bearer token while no default target is
// set, is ErrAuthMissing. Resolve performs no I/O; the target URL is
// validated when the upstream call is built.
func (r *Resolver) Resolve(h http.Header) (upstream.Credentials, error) {
	authorization := strings.TrimSpace(h.Get(AuthorizationHeader))
	targetURL := strings.TrimSpace(h.Get(TargetURLHeader))
	baseURL := strings.TrimSpace(h.Get(BaseURLHeader))
	apiKey := strings.TrimSpace(h.Get(APIKeyHeader))

	switch {
	case authorization != "" && targetURL != "":
		key, err := parseBearer(authorization)
		if err != nil {
			return upstream.Credentials{}, err
		}
		return upstream.Credentials{BaseURL: targetURL, APIKey: key}, nil

	case baseURL != "" && apiKey != "":
		return upstream.Credentials{BaseURL: baseURL, APIKey: apiKey}, nil

	case authorization != "":
		key, err := parseBearer(authorization)
		if err != nil {
			return upstream.Credentials{}, err
		}
		target := r.DefaultTarget()
		if target == "" {
			return upstream.Credentials{}, fmt.Errorf("%w: no X-Target-URL and no default target configured", ErrAuthMissing)
		}
		return upstream.Credentials{BaseURL: target, APIKey: key}, nil
	}

	return upstream.Credentials{}, ErrAuthMissing
}

// parseBearer extracts the token from "Bearer <token>". The scheme is
// case-insensitive.
func parseBearer(value string) (string, error) {
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", ErrAuthInvalid
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", ErrAuthInvalid
	}
	return token, nil
}
