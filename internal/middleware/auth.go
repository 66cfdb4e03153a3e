package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/opensensor/sensorcache/internal/apierr"
)

// AdminToken returns a middleware that gates admin endpoints behind a
// static Bearer token. An empty token disables the endpoints entirely
// rather than leaving them open.
func AdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				apierr.WriteErrorWithContext(w, r, apierr.AuthForbidden("Admin API is not configured"))
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				apierr.WriteErrorWithContext(w, r, apierr.AuthMissing(""))
				return
			}

			presented, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok {
				apierr.WriteErrorWithContext(w, r, apierr.AuthInvalid("Authorization header must use Bearer scheme"))
				return
			}

			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				apierr.WriteErrorWithContext(w, r, apierr.AuthInvalid(""))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
