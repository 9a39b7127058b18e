package middleware

import (
	"net/http"
	"strings"

	"github.com/cloo-solutions/kbpipe/internal/api"
)

// MaxBodyBytes caps request bodies. Multipart uploads get uploadLimit, every
// other body gets limit. A non-positive limit disables the cap.
func MaxBodyBytes(limit, uploadLimit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			max := limit
			if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
				max = uploadLimit
			}
			if max <= 0 || r.Body == nil {
				next.ServeHTTP(w, r)
				return
			}

			if r.ContentLength > max {
				api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, max)
			next.ServeHTTP(w, r)
		})
	}
}
