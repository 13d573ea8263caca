package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
)

// CORSConfig contains configuration for CORS middleware.
type CORSConfig struct {
	// Enabled controls whether CORS headers are emitted.
	Enabled bool

	// AllowedOrigins lists origins allowed to call the relay. "*" allows any.
	AllowedOrigins []string

	// AllowedMethods lists methods allowed in preflight responses.
	AllowedMethods []string

	// AllowedHeaders lists request headers allowed in preflight responses.
	AllowedHeaders []string

	// ExposedHeaders lists response headers readable by browser clients.
	ExposedHeaders []string

	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int

	// AllowCredentials controls Access-Control-Allow-Credentials.
	AllowCredentials bool
}

// DefaultCORSConfig returns a CORS configuration suited to browser clients
// of the relay: routing headers may be sent and the session id can be read.
func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Authorization", "Content-Type", "X-Request-ID",
			"X-Target-URL", "X-Base-URL", "X-Api-Key", "X-Session-Id",
		},
		ExposedHeaders: []string{"X-Request-ID", "X-Session-Id"},
		MaxAge:         3600,
	}
}

// CORSMiddleware adds CORS headers and answers preflight requests with 204.
func CORSMiddleware(config *CORSConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if config == nil || !config.Enabled {
			return next
		}

		methods := strings.Join(config.AllowedMethods, ", ")
		headers := strings.Join(config.AllowedHeaders, ", ")
		exposed := strings.Join(config.ExposedHeaders, ", ")
		wildcard := slices.Contains(config.AllowedOrigins, "*")

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			h := w.Header()
			h.Add("Vary", "Origin")

			switch {
			case origin == "":
			case wildcard && !config.AllowCredentials:
				h.Set("Access-Control-Allow-Origin", "*")
			case wildcard || slices.Contains(config.AllowedOrigins, origin):
				h.Set("Access-Control-Allow-Origin", origin)
				if config.AllowCredentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			default:
				// Unknown origin: no CORS headers, browser blocks the response.
				origin = ""
			}

			if origin != "" && exposed != "" {
				h.Set("Access-Control-Expose-Headers", exposed)
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if methods != "" {
					h.Set("Access-Control-Allow-Methods", methods)
				}
				if headers != "" {
					h.Set("Access-Control-Allow-Headers", headers)
				}
				if config.MaxAge > 0 {
					h.Set("Access-Control-Max-Age", strconv.Itoa(config.MaxAge))
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
