// Package retry runs an operation under a bounded exponential backoff
// policy. Backoff, jitter and sleeping are all injectable.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// Policy describes how many times to try an operation and how long to wait
// between tries. Attempt numbers passed to Backoff start at 0.
type Policy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Jitter      func() time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error
}

// Exponential returns initial * 2^attempt.
func Exponential(initial time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		if attempt < 0 {
			attempt = 0
		}
		return initial << uint(attempt)
	}
}

// UniformJitter returns a uniformly distributed duration in [0, max).
func UniformJitter(max time.Duration) func() time.Duration {
	return func() time.Duration {
		if max <= 0 {
			return 0
		}
		return rand.N(max)
	}
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Default mirrors the pipeline defaults: 3 attempts, 1s doubling backoff,
// up to 1s of jitter.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		Backoff:     Exponential(time.Second),
		Jitter:      UniformJitter(time.Second),
		Sleep:       SleepContext,
	}
}

// RetryFunc is notified before each backoff sleep.
type RetryFunc func(attempt int, err error, delay time.Duration)

// Do calls op until it succeeds, returns a permanent error, the policy runs
// out of attempts, or ctx is done. It returns the number of attempts made
// and the last error. Nothing is retried once ctx is done.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error, onRetry RetryFunc) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			return attempts, lastErr
		}

		attempts++
		lastErr = op(ctx, attempt)
		if lastErr == nil {
			return attempts, nil
		}
		if IsPermanent(lastErr) || ctx.Err() != nil {
			return attempts, lastErr
		}
		if attempt >= maxAttempts-1 {
			break
		}

		delay := p.delay(attempt)
		if onRetry != nil {
			onRetry(attempt, lastErr, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return attempts, lastErr
		}
	}
	return attempts, lastErr
}

func (p Policy) delay(attempt int) time.Duration {
	var d time.Duration
	if p.Backoff != nil {
		d = p.Backoff(attempt)
	}
	if p.Jitter != nil {
		d += p.Jitter()
	}
	return d
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
