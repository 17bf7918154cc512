package ratelimit

import (
	"testing"
	"time"
)

func TestLimiterRefill(t *testing.T) {
	now := time.Unix(0, 0)
	l := New(2, 0.5)
	l.now = func() time.Time { return now }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatalf("burst of capacity should pass")
	}
	if l.Allow("a") {
		t.Fatalf("third call should be limited")
	}
	if d := l.RetryAfter("a"); d != 2*time.Second {
		t.Fatalf("retry after = %v", d)
	}
	if !l.Allow("b") {
		t.Fatalf("keys are independent")
	}
	now = now.Add(2 * time.Second)
	if !l.Allow("a") {
		t.Fatalf("token should refill after 2s at 0.5/s")
	}
}
