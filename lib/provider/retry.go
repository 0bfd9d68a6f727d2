package provider

import (
	"context"
	"fmt"
	"time"
)

const (
	// DefaultMaxRetries is how many times a provider is tried before the
	// caller falls back to local scoring.
	DefaultMaxRetries = 3

	baseBackoff = 1000 * time.Millisecond
	maxBackoff  = 5000 * time.Millisecond
)

// replaced in tests so retry schedules don't slow the suite down
var after = time.After

// Backoff returns the delay after a failed attempt (1-based). The schedule is
// 1s, 2s, 4s, ... capped at 5s, so three retries block the caller for at most
// ~7s of delay on top of the per-call timeouts.
func Backoff(attempt int) time.Duration {
	d := baseBackoff << (attempt - 1)
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// WithRetry calls a provider up to maxRetries times with exponential backoff
// between attempts. On exhaustion the last error is returned wrapped in
// ErrUnavailable so the caller can switch to the built-in scorer.
func WithRetry(ctx context.Context, v Verifier, req *Request, maxRetries int) (*Response, error) {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		resp, err := v.Verify(ctx, req)
		if err == nil {
			Attempts.WithLabelValues("ok").Inc()
			return resp, nil
		}

		Attempts.WithLabelValues("error").Inc()
		lastErr = err

		if attempt == maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
		case <-after(Backoff(attempt)):
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrUnavailable, maxRetries, lastErr)
}
