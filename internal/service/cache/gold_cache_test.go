package cache

import (
	"context"
	"testing"
	"time"

	"CoinPull/internal/domain/models"
	pkgcache "CoinPull/pkg/cache"

	"github.com/shopspring/decimal"
)

type countingReader struct {
	calls int
	rows  []models.AnalyticRow
}

func (r *countingReader) ReadGold(context.Context) ([]models.AnalyticRow, error) {
	r.calls++
	return r.rows, nil
}

func TestGoldCacheHitAndInvalidate(t *testing.T) {
	vol := decimal.RequireFromString("1.41")
	src := &countingReader{rows: []models.AnalyticRow{{
		Observation:  models.Observation{RecordedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), AssetID: "bitcoin", PriceUSD: decimal.RequireFromString("102.00")},
		SMA7d:        decimal.RequireFromString("101.00"),
		Volatility7d: &vol,
		Signal:       models.SignalWait,
	}}}
	mc := pkgcache.NewMemoryCache()
	defer mc.Close()
	g := NewGoldCache(src, mc, time.Minute, nil)
	ctx := context.Background()

	first, err := g.ReadGold(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	second, err := g.ReadGold(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if src.calls != 1 {
		t.Fatalf("second read should hit the cache, reader calls=%d", src.calls)
	}
	if len(second) != 1 || !second[0].RecordedAt.Equal(first[0].RecordedAt) || second[0].Volatility7d.StringFixed(2) != "1.41" {
		t.Fatalf("cached row differs: %+v", second)
	}

	if err := g.Invalidate(ctx); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := g.ReadGold(ctx); err != nil || src.calls != 2 {
		t.Fatalf("read after invalidate should reach the reader, calls=%d err=%v", src.calls, err)
	}
}
