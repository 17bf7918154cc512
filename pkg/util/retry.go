package util

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryPolicy is a fixed attempt budget with jittered exponential backoff.
type RetryPolicy struct {
	Attempts   int
	BackoffMin time.Duration
	BackoffMax time.Duration
	// Retryable decides whether a failed attempt may be repeated.
	// nil retries everything not wrapped with Permanent.
	Retryable func(error) bool
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Retry runs fn until it succeeds, the budget is spent, the error is not
// retryable, or ctx is done. The last error is returned as is.
func Retry(ctx context.Context, p RetryPolicy, fn func(context.Context) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if IsPermanent(err) || (p.Retryable != nil && !p.Retryable(err)) || attempt == attempts {
			return err
		}
		select {
		case <-time.After(Backoff(p.BackoffMin, p.BackoffMax, attempt)):
		case <-ctx.Done():
			return err
		}
	}
	return err
}

// Backoff returns the sleep before retry number attempt (1-based), capped at max
// and reduced by up to 50% jitter.
func Backoff(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	if attempt < 1 {
		attempt = 1
	}
	exp := max
	if attempt < 32 {
		if e := min * time.Duration(1<<uint(attempt-1)); e > 0 && e < max {
			exp = e
		}
	}
	half := int64(exp) / 2
	if half <= 0 {
		return exp
	}
	return exp - time.Duration(rand.Int63n(half))
}
