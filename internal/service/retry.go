package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RateLimitError reports an HTTP 429 from a third party. RetryAfter is the
// server's hint, zero when it sent none.
type RateLimitError struct {
	Status     int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (status %d), retry after %s", e.Status, e.RetryAfter)
	}
	return fmt.Sprintf("rate limited (status %d)", e.Status)
}

// NewRateLimitError builds a RateLimitError from a 429 response.
func NewRateLimitError(resp *http.Response) *RateLimitError {
	return &RateLimitError{
		Status:     resp.StatusCode,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
	}
}

// RetryPolicy bounds the exponential backoff used against rate-limited APIs.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     4,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
	}
}

// RetryOn429 runs op until it succeeds, fails with something other than a
// *RateLimitError, or MaxAttempts is reached. Only rate limiting is retried.
func RetryOn429(ctx context.Context, policy RetryPolicy, op func(ctx context.Context) error) error {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy()
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = policy.InitialInterval
	exp.MaxInterval = policy.MaxInterval
	exp.MaxElapsedTime = 0

	hinted := &retryAfterBackOff{BackOff: exp}
	b := backoff.WithContext(backoff.WithMaxRetries(hinted, uint64(policy.MaxAttempts-1)), ctx)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		var rl *RateLimitError
		if !errors.As(err, &rl) {
			return backoff.Permanent(err)
		}
		hinted.hint = rl.RetryAfter
		return err
	}, b, func(err error, wait time.Duration) {
		log.Printf("Rate limited on attempt %d/%d, retrying in %s: %v", attempt, policy.MaxAttempts, wait, err)
	})
}

// retryAfterBackOff waits at least as long as the last Retry-After hint.
type retryAfterBackOff struct {
	backoff.BackOff
	hint time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if b.hint > next {
		next = b.hint
	}
	b.hint = 0
	return next
}

func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}
