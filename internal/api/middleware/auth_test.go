package middleware

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestServiceTokenAuth(t *testing.T) {
	handler := RequestID(ServiceTokenAuth("s3cret-token")(http.HandlerFunc(okHandler)))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer s3cret-token", http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic s3cret-token", http.StatusUnauthorized},
		{"wrong token", "Bearer s3cret-tokem", http.StatusUnauthorized},
		{"token prefix only", "Bearer s3cret", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/knowledge", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestServiceTokenAuth_EmptyTokenRejectsEverything(t *testing.T) {
	handler := ServiceTokenAuth("")(http.HandlerFunc(okHandler))
	req := httptest.NewRequest(http.MethodGet, "/knowledge", nil)
	req.Header.Set("Authorization", "Bearer ")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequestID(t *testing.T) {
	t.Run("keeps the caller's id", func(t *testing.T) {
		var seen string
		handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = GetRequestID(r.Context())
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "req-42")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, "req-42", seen)
		assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
	})

	t.Run("generates one when absent or oversized", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", strings.Repeat("x", 200))
		w := httptest.NewRecorder()

		RequestID(http.HandlerFunc(okHandler)).ServeHTTP(w, req)

		assert.Len(t, w.Header().Get("X-Request-ID"), 36)
	})
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() { log.SetOutput(nil); log.SetFlags(log.LstdFlags) })

	handler := RequestID(AccessLog(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetOrgID(r.Context(), "org-1")
		w.Header().Set("X-Import-Log-ID", "log-3")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ok"))
	})))

	t.Run("logs org and status", func(t *testing.T) {
		buf.Reset()
		req := httptest.NewRequest(http.MethodPost, "/knowledge/reprocess", nil)
		req.Header.Set("X-Request-ID", "req-7")

		handler.ServeHTTP(httptest.NewRecorder(), req)

		var entry accessLogEntry
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
		assert.Equal(t, "org-1", entry.OrgID)
		assert.Equal(t, "req-7", entry.RequestID)
		assert.Equal(t, http.StatusAccepted, entry.Status)
		assert.Equal(t, 2, entry.Bytes)
		assert.Equal(t, "log-3", entry.ImportLog)
		assert.Empty(t, entry.Route)
	})

	t.Run("skips health probes", func(t *testing.T) {
		buf.Reset()

		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Empty(t, buf.String())
	})
}

func TestMaxBodyBytes(t *testing.T) {
	handler := MaxBodyBytes(8, 64)(http.HandlerFunc(okHandler))

	t.Run("json body over the limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":"0123456789"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	t.Run("multipart gets the upload limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 32)))
		req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}
