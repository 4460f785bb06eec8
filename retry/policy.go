// Package retry runs an operation under a bounded, sequential retry policy.
package retry

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
	goretry "github.com/sethvargo/go-retry"
)

// BackoffFunc returns how long to wait after the given failed attempt (1-based).
type BackoffFunc func(attempt int) time.Duration

// Constant waits the same duration after every failed attempt.
func Constant(d time.Duration) BackoffFunc {
	return func(int) time.Duration { return d }
}

// Exponential doubles the wait after every failed attempt, starting at base.
func Exponential(base time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		return base << (attempt - 1)
	}
}

// Policy describes how many times an operation may run and how long to wait
// between runs. The zero value runs the operation exactly once.
type Policy struct {
	MaxAttempts int
	Backoff     BackoffFunc
	// Retryable reports whether a failed attempt may be retried.
	// Nil means only timeouts are retried.
	Retryable func(error) bool
}

// Do runs fn until it succeeds, fails with a non-retryable error, exhausts
// MaxAttempts or ctx is done. The error of the last attempt is returned.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTimeout
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := p.Backoff
	if backoff == nil {
		backoff = Constant(0)
	}

	failed := 0
	b := goretry.WithMaxRetries(uint64(attempts-1), goretry.BackoffFunc(func() (time.Duration, bool) {
		failed++
		return backoff(failed), false
	}))

	return goretry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && retryable(err) {
			return goretry.RetryableError(err)
		}
		return err
	})
}

// IsTimeout reports whether err is a transient timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
