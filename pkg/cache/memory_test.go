package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type payload struct {
	Rows  int      `json:"rows"`
	Coins []string `json:"coins"`
}

func TestMemoryTypedRoundTrip(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	if err := mc.Set(ctx, "k", payload{Rows: 2, Coins: []string{"bitcoin"}}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got payload
	if err := mc.Get(ctx, "k", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Rows != 2 || len(got.Coins) != 1 {
		t.Fatalf("unexpected value %+v", got)
	}
	var s string
	_ = mc.Set(ctx, "s", "plain", 0)
	if err := mc.Get(ctx, "s", &s); err != nil || s != "plain" {
		t.Fatalf("string value: %q %v", s, err)
	}
}

func TestMemoryExpiry(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	now := time.Unix(1000, 0)
	mc.now = func() time.Time { return now }
	ctx := context.Background()

	_ = mc.Set(ctx, "k", "v", time.Second)
	now = now.Add(2 * time.Second)
	var s string
	if err := mc.Get(ctx, "k", &s); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after expiry, got %v", err)
	}
}

func TestMemoryEvictsLRU(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	now := time.Unix(1000, 0)
	mc.now = func() time.Time { now = now.Add(time.Millisecond); return now }
	ctx := context.Background()

	_ = mc.Set(ctx, "a", "1", time.Minute)
	_ = mc.Set(ctx, "b", "2", time.Minute)
	var s string
	_ = mc.Get(ctx, "a", &s)
	_ = mc.Set(ctx, "c", "3", time.Minute)
	if err := mc.Get(ctx, "b", &s); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("least recently used key should be evicted")
	}
	if err := mc.Get(ctx, "a", &s); err != nil {
		t.Fatalf("recently used key evicted: %v", err)
	}
}

func TestMemoryLockOwnership(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	now := time.Unix(1000, 0)
	mc.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := mc.TryLock(ctx, "lease", "run-1", time.Minute)
	if !ok {
		t.Fatalf("first lock should succeed")
	}
	if ok, _ := mc.TryLock(ctx, "lease", "run-2", time.Minute); ok {
		t.Fatalf("second lock must fail while held")
	}
	if err := mc.Unlock(ctx, "lease", "run-2"); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("foreign unlock must fail, got %v", err)
	}
	now = now.Add(2 * time.Minute)
	if ok, _ := mc.TryLock(ctx, "lease", "run-2", time.Minute); !ok {
		t.Fatalf("expired lock should be claimable")
	}
	if err := mc.Unlock(ctx, "lease", "run-2"); err != nil {
		t.Fatalf("owner unlock: %v", err)
	}
	if ok, _ := mc.TryLock(ctx, "lease", "run-3", time.Minute); !ok {
		t.Fatalf("released lock should be claimable")
	}
}

func TestMemoryLockExtend(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	now := time.Unix(1000, 0)
	mc.now = func() time.Time { return now }
	ctx := context.Background()

	if ok, _ := mc.TryLock(ctx, "lease", "run-1", time.Minute); !ok {
		t.Fatalf("lock should succeed")
	}
	if ok, _ := mc.Extend(ctx, "lease", "run-2", time.Minute); ok {
		t.Fatalf("only the owner may extend")
	}
	now = now.Add(50 * time.Second)
	if ok, _ := mc.Extend(ctx, "lease", "run-1", time.Minute); !ok {
		t.Fatalf("owner extend should succeed")
	}
	now = now.Add(50 * time.Second)
	if ok, _ := mc.TryLock(ctx, "lease", "run-2", time.Minute); ok {
		t.Fatalf("extended lock must still be held")
	}
	now = now.Add(time.Minute)
	if ok, _ := mc.Extend(ctx, "lease", "run-1", time.Minute); ok {
		t.Fatalf("expired lock cannot be extended")
	}
}
