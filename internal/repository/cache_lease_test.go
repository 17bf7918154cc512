package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"CoinPull/pkg/cache"
)

func TestCacheLeaseExclusive(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	l := NewCacheLease(mc)
	ctx := context.Background()

	ok, err := l.Acquire(ctx, "lease:series", "run-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire: %v %v", ok, err)
	}
	ok, _ = l.Acquire(ctx, "lease:series", "run-b", time.Minute)
	if ok {
		t.Fatalf("second holder must not acquire")
	}
	if err := l.Release(ctx, "lease:series", "run-b"); !errors.Is(err, cache.ErrNotOwner) {
		t.Fatalf("foreign release should fail with ErrNotOwner, got %v", err)
	}
	if err := l.Release(ctx, "lease:series", "run-a"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := l.Acquire(ctx, "lease:series", "run-b", time.Minute); !ok {
		t.Fatalf("lease should be free after release")
	}
}
