// Package retry provides an explicit retry policy with exponential
// backoff and jitter for calls against flaky external services.
//
// The policy retries transient errors only; callers mark unrecoverable
// failures with Permanent so they surface immediately.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Policy describes how a call is retried. The zero value is not usable;
// construct with DefaultPolicy or fill every field.
type Policy struct {
	MaxAttempts int           // total attempts including the first
	BaseDelay   time.Duration // first backoff step
	MaxDelay    time.Duration // backoff ceiling
}

// DefaultPolicy is the retry ceiling used for mail-service calls:
// 4 attempts total, exponential backoff from 1s capped at 30s.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 4, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

// permanentError wraps an error that must not be retried.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-retryable. Do returns the wrapped error
// unmodified on the first occurrence.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Do runs fn under the policy. It retries every error except those marked
// Permanent, sleeping an exponentially growing, jittered delay between
// attempts. Context cancellation stops retries immediately.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(p.delay(attempt))
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			var pe *permanentError
			errors.As(err, &pe)
			return pe.err
		}
		if ctx.Err() != nil {
			return err
		}
		lastErr = err
	}

	return lastErr
}

// delay computes the backoff for the given attempt using full jitter:
// random(0, min(maxDelay, baseDelay * 2^(attempt-1))), floored at 100ms
// to avoid busy-looping.
func (p Policy) delay(attempt int) time.Duration {
	exp := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	if exp > float64(p.MaxDelay) {
		exp = float64(p.MaxDelay)
	}
	jittered := time.Duration(rand.Float64() * exp)
	if jittered < 100*time.Millisecond {
		jittered = 100 * time.Millisecond
	}
	return jittered
}
