package fetch

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryPolicy controls how failed attempts are retried.
type RetryPolicy struct {
	// MaxAttempts includes the first attempt. Values < 1 mean 1.
	MaxAttempts int

	// BaseBackoff doubles per attempt up to MaxBackoff.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// NetworkBackoff is the minimum wait after an attempt that got no
	// response at all.
	NetworkBackoff time.Duration
}

// DefaultRetryPolicy is used when Options.Retry is the zero value.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:    3,
	BaseBackoff:    time.Second,
	MaxBackoff:     30 * time.Second,
	NetworkBackoff: 2 * time.Second,
}

// nextRetryDelay returns how long to wait after a failed attempt.
// A 429 with Retry-After is honoured as is; everything else backs off
// exponentially from BaseBackoff, clamped at MaxBackoff.
func nextRetryDelay(p RetryPolicy, status int, retryAfter time.Duration, attempt int) time.Duration {
	if status == http.StatusTooManyRequests && retryAfter > 0 {
		return retryAfter
	}

	d := p.BaseBackoff << uint(attempt-1)
	if d > p.MaxBackoff || d <= 0 {
		d = p.MaxBackoff
	}

	if status == 0 && d < p.NetworkBackoff {
		d = p.NetworkBackoff
	}
	return d
}

// statusFinal marks an attempt that failed before or after the exchange in a
// way another attempt cannot fix.
const statusFinal = -1

// retryable reports whether another attempt can change the outcome.
func retryable(status int) bool {
	return status != statusFinal && status != http.StatusNotFound && status != http.StatusGone
}

// parseRetryAfter reads Retry-After as delta-seconds or an HTTP date.
func parseRetryAfter(h http.Header) time.Duration {
	ra := strings.TrimSpace(h.Get("Retry-After"))
	if ra == "" {
		return 0
	}

	if secs, err := strconv.Atoi(ra); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}

	if t, err := http.ParseTime(ra); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// sleepContext waits for d or until ctx is done. It reports whether the full
// wait elapsed.
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
