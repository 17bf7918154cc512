package repository

import (
	"context"
	"time"

	"CoinPull/internal/domain/repository"
	"CoinPull/pkg/cache"
)

// CacheLease implements Lease on the cache's owner-token locks. With the
// Redis cache the lease is shared across processes.
type CacheLease struct {
	c cache.Service
}

func NewCacheLease(c cache.Service) repository.Lease {
	return &CacheLease{c: c}
}

func (l *CacheLease) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return l.c.TryLock(ctx, key, token, ttl)
}

func (l *CacheLease) Renew(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return l.c.Extend(ctx, key, token, ttl)
}

// Release is a no-op when the lease already expired; it fails only if
// another holder owns the key now.
func (l *CacheLease) Release(ctx context.Context, key, token string) error {
	return l.c.Unlock(ctx, key, token)
}
