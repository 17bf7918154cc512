package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryPolicy{Attempts: 5, BackoffMin: time.Millisecond, BackoffMax: time.Millisecond}, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("expected success after 3 calls, got err=%v calls=%d", err, calls)
	}
}

func TestRetryBudget(t *testing.T) {
	calls := 0
	boom := errors.New("down")
	err := Retry(context.Background(), RetryPolicy{Attempts: 3, BackoffMin: time.Millisecond, BackoffMax: 2 * time.Millisecond}, func(context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) || calls != 3 {
		t.Fatalf("expected 3 attempts and last error, got err=%v calls=%d", err, calls)
	}
}

func TestRetryPermanent(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryPolicy{Attempts: 4}, func(context.Context) error {
		calls++
		return Permanent(errors.New("schema"))
	})
	if err == nil || calls != 1 || !IsPermanent(err) {
		t.Fatalf("permanent error must not be retried: err=%v calls=%d", err, calls)
	}
}

func TestRetryClassifier(t *testing.T) {
	calls := 0
	fatal := errors.New("fatal")
	p := RetryPolicy{Attempts: 4, Retryable: func(err error) bool { return !errors.Is(err, fatal) }}
	_ = Retry(context.Background(), p, func(context.Context) error {
		calls++
		return fatal
	})
	if calls != 1 {
		t.Fatalf("classifier ignored, calls=%d", calls)
	}
}

func TestBackoffBounds(t *testing.T) {
	min, max := 10*time.Millisecond, 80*time.Millisecond
	for attempt := 1; attempt <= 40; attempt++ {
		d := Backoff(min, max, attempt)
		if d <= 0 || d > max {
			t.Fatalf("attempt %d: backoff %v out of bounds", attempt, d)
		}
	}
}
