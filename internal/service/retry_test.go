package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryOn429(t *testing.T) {
	ctx := context.Background()

	t.Run("retries rate limiting until success", func(t *testing.T) {
		calls := 0
		err := RetryOn429(ctx, fastRetry, func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return &RateLimitError{Status: http.StatusTooManyRequests}
			}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("returns the last rate limit error when attempts run out", func(t *testing.T) {
		calls := 0
		err := RetryOn429(ctx, fastRetry, func(ctx context.Context) error {
			calls++
			return &RateLimitError{Status: http.StatusTooManyRequests}
		})

		var rl *RateLimitError
		require.ErrorAs(t, err, &rl)
		assert.Equal(t, fastRetry.MaxAttempts, calls)
	})

	t.Run("does not retry other errors", func(t *testing.T) {
		boom := errors.New("connection reset")
		calls := 0
		err := RetryOn429(ctx, fastRetry, func(ctx context.Context) error {
			calls++
			return boom
		})

		assert.Equal(t, boom, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("stops when the context is cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		calls := 0
		err := RetryOn429(cctx, RetryPolicy{MaxAttempts: 10, InitialInterval: time.Hour, MaxInterval: time.Hour}, func(ctx context.Context) error {
			calls++
			cancel()
			return &RateLimitError{Status: http.StatusTooManyRequests}
		})

		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}

func TestRetryAfterBackOff(t *testing.T) {
	b := &retryAfterBackOff{BackOff: backoff.NewConstantBackOff(10 * time.Millisecond)}

	assert.Equal(t, 10*time.Millisecond, b.NextBackOff())

	b.hint = 2 * time.Second
	assert.Equal(t, 2*time.Second, b.NextBackOff())
	assert.Equal(t, 10*time.Millisecond, b.NextBackOff(), "hint applies to one wait only")

	stopped := &retryAfterBackOff{BackOff: &backoff.StopBackOff{}, hint: time.Second}
	assert.Equal(t, backoff.Stop, stopped.NextBackOff())
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"empty", "", 0},
		{"seconds", "7", 7 * time.Second},
		{"http date", now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second},
		{"date in the past", now.Add(-time.Minute).Format(http.TimeFormat), 0},
		{"negative", "-3", 0},
		{"garbage", "soon", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseRetryAfter(tt.value, now))
		})
	}
}

func TestNewRateLimitError(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{"Retry-After": []string{"3"}}}

	err := NewRateLimitError(resp)

	assert.Equal(t, 3*time.Second, err.RetryAfter)
	assert.Contains(t, err.Error(), "retry after 3s")
}
