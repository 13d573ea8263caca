package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"mercator-hq/relay/pkg/proxy"
	"mercator-hq/relay/pkg/proxy/types"
)

// AdminAuthMiddleware requires "Authorization: Bearer <token>" on admin
// routes. An empty token disables the check.
func AdminAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		want := []byte(token)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), want) != 1 {
				_ = proxy.WriteErrorResponse(w, types.NewErrorResponse(
					"admin token required", types.CodeUnauthorized, nil,
				))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
