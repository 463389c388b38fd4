// Package backoff implements the shared exponential retry policy: a bounded
// retry loop rather than stacked timers, cancellable through the context.
package backoff

import (
	"context"
	"time"
)

// Delay returns the wait before retry number attempt (0-indexed):
// base * 2^attempt.
func Delay(attempt int, base time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	return base << uint(attempt)
}

// Policy bounds a retry sequence. Retries are never unbounded; once
// MaxRetries is exceeded the caller falls back per its own policy.
type Policy struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int
	// BaseDelay is the delay before the first retry; it doubles each time.
	BaseDelay time.Duration
}

// Do runs fn once, then retries it up to MaxRetries times with exponential
// delays while retryable reports the error as worth retrying. A nil
// retryable retries every error. The last error is returned; context
// cancellation aborts the wait immediately.
func (p Policy) Do(ctx context.Context, fn func(context.Context) error, retryable func(error) bool) error {
	err := fn(ctx)
	for attempt := 0; err != nil && attempt < p.MaxRetries; attempt++ {
		if retryable != nil && !retryable(err) {
			return err
		}
		timer := time.NewTimer(Delay(attempt, p.BaseDelay))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		err = fn(ctx)
	}
	return err
}
