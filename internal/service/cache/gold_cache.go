package cache

import (
	"context"
	"errors"
	"time"

	"CoinPull/internal/domain/models"
	drepo "CoinPull/internal/domain/repository"
	pkgcache "CoinPull/pkg/cache"
	applogger "CoinPull/pkg/logger"
)

var goldKey = pkgcache.GenerateKey("gold", "table")

// GoldCache serves Gold reads from the cache and falls back to the reader.
// Publishing a new table must call Invalidate.
type GoldCache struct {
	next drepo.GoldReader
	c    pkgcache.Service
	ttl  time.Duration
	l    *applogger.Logger
}

func NewGoldCache(next drepo.GoldReader, c pkgcache.Service, ttl time.Duration, l *applogger.Logger) *GoldCache {
	if l == nil {
		l = applogger.Nop()
	}
	return &GoldCache{next: next, c: c, ttl: ttl, l: l}
}

var _ drepo.GoldReader = (*GoldCache)(nil)

func (g *GoldCache) ReadGold(ctx context.Context) ([]models.AnalyticRow, error) {
	var views []models.GoldRowView
	err := g.c.Get(ctx, goldKey, &views)
	if err == nil {
		return fromViews(views)
	}
	if !errors.Is(err, pkgcache.ErrCacheMiss) {
		g.l.Warn("gold cache read failed", applogger.Error(err))
	}

	rows, err := g.next.ReadGold(ctx)
	if err != nil {
		return nil, err
	}
	views = make([]models.GoldRowView, len(rows))
	for i, r := range rows {
		views[i] = models.NewGoldRowView(r)
	}
	if err := g.c.Set(ctx, goldKey, views, g.ttl); err != nil {
		g.l.Warn("gold cache write failed", applogger.Error(err))
	}
	return rows, nil
}

// Invalidate drops the cached table.
func (g *GoldCache) Invalidate(ctx context.Context) error {
	return g.c.Delete(ctx, goldKey)
}

func fromViews(views []models.GoldRowView) ([]models.AnalyticRow, error) {
	out := make([]models.AnalyticRow, 0, len(views))
	for _, v := range views {
		r, err := v.Row()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
