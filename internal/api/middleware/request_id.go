package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const requestInfoKey contextKey = "request_info"

// RequestInfo is the mutable per-request record shared by the logging and
// tracing middleware. Handlers fill OrgID once they have decoded the payload.
type RequestInfo struct {
	ID     string
	OrgID  string
	Caller string
}

// RequestID injects a request ID into context and response headers.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}

		info := &RequestInfo{ID: requestID}
		ctx := context.WithValue(r.Context(), requestInfoKey, info)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestInfo(ctx context.Context) *RequestInfo {
	info, _ := ctx.Value(requestInfoKey).(*RequestInfo)
	return info
}

// GetRequestID returns the request ID from context.
func GetRequestID(ctx context.Context) string {
	if info := requestInfo(ctx); info != nil {
		return info.ID
	}
	return ""
}

// SetOrgID records the organization a request acts on.
func SetOrgID(ctx context.Context, orgID string) {
	if info := requestInfo(ctx); info != nil {
		info.OrgID = orgID
	}
}

// GetOrgID returns the organization recorded by SetOrgID.
func GetOrgID(ctx context.Context) string {
	if info := requestInfo(ctx); info != nil {
		return info.OrgID
	}
	return ""
}
