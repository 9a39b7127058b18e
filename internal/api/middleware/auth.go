package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/cloo-solutions/kbpipe/internal/api"
	"github.com/cloo-solutions/kbpipe/internal/domain"
)

// ServiceTokenAuth admits requests carrying "Authorization: Bearer <token>".
// Tokens are compared as SHA-256 digests in constant time. An optional
// X-Caller header names the calling service in logs.
func ServiceTokenAuth(token string) func(http.Handler) http.Handler {
	want := sha256.Sum256([]byte(token))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			presented, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				api.Error(w, http.StatusUnauthorized, "invalid authorization format")
				return
			}

			got := sha256.Sum256([]byte(presented))
			if token == "" || subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
				api.HandleError(w, r, domain.ErrInvalidServiceToken)
				return
			}

			if info := requestInfo(r.Context()); info != nil {
				info.Caller = r.Header.Get("X-Caller")
			}
			next.ServeHTTP(w, r)
		})
	}
}
