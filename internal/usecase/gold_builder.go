package usecase

import (
	"context"
	"fmt"
	"time"

	"CoinPull/internal/domain/models"
	drepo "CoinPull/internal/domain/repository"
	"CoinPull/internal/services/analytics"
	"CoinPull/internal/services/history"
	"CoinPull/internal/services/publish"
	applogger "CoinPull/pkg/logger"
	pkgmetrics "CoinPull/pkg/metrics"
)

// Invalidator drops derived read caches after a publish.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// GoldResult describes one published Gold table.
type GoldResult struct {
	Location string   `json:"location"`
	Rows     int      `json:"rows"`
	Assets   []string `json:"assets"`
}

// GoldBuilder recomputes the Gold table from the full Silver series.
type GoldBuilder struct {
	acc       *history.Accumulator
	engine    *analytics.WindowEngine
	publisher *publish.Publisher
	cache     Invalidator
	events    drepo.EventPublisher
	metrics   drepo.Metrics
	l         *applogger.Logger
	now       func() time.Time
}

func NewGoldBuilder(acc *history.Accumulator, engine *analytics.WindowEngine, publisher *publish.Publisher, cache Invalidator, events drepo.EventPublisher, metrics drepo.Metrics, l *applogger.Logger) *GoldBuilder {
	if l == nil {
		l = applogger.Nop()
	}
	if metrics == nil {
		metrics = pkgmetrics.Nop{}
	}
	return &GoldBuilder{acc: acc, engine: engine, publisher: publisher, cache: cache, events: events, metrics: metrics, l: l, now: time.Now}
}

// Build publishes a fresh Gold table. An empty series returns ErrNoSeries and
// leaves the published table untouched.
func (g *GoldBuilder) Build(ctx context.Context, runID string) (GoldResult, error) {
	start := time.Now()
	series, err := g.acc.Load(ctx)
	if err != nil {
		g.metrics.RecordError("storage")
		return GoldResult{}, fmt.Errorf("load series: %w", err)
	}
	g.metrics.RecordSeriesSize(len(series))
	if len(series) == 0 {
		return GoldResult{}, models.ErrNoSeries
	}

	rows := g.engine.Analyze(series)
	if err := g.publisher.Publish(ctx, rows); err != nil {
		g.metrics.RecordError("publish")
		return GoldResult{}, err
	}
	g.metrics.RecordGoldRows(len(rows))

	latest := models.Latest(rows)
	res := GoldResult{Location: g.publisher.Location(), Rows: len(rows), Assets: make([]string, len(latest))}
	for i, r := range latest {
		res.Assets[i] = r.AssetID
		g.metrics.RecordLastPrice(r.AssetID, r.PriceUSD.InexactFloat64())
	}

	if g.cache != nil {
		if err := g.cache.Invalidate(ctx); err != nil {
			g.l.Warn("gold cache invalidation failed", applogger.Error(err))
		}
	}
	if g.events != nil {
		ev := models.GoldPublishedEvent{RunID: runID, Location: res.Location, Rows: res.Rows, Assets: res.Assets, PublishedAt: g.now().UTC()}
		if err := g.events.PublishGoldEvent(ctx, ev); err != nil {
			g.metrics.RecordError("notify")
			g.l.Warn("gold notification failed", applogger.String("run_id", runID), applogger.Error(err))
		}
	}
	g.metrics.RecordLatency("gold", time.Since(start).Seconds())
	g.l.Info("gold table built",
		applogger.String("run_id", runID),
		applogger.Int("series_rows", len(series)),
		applogger.Int("rows", res.Rows),
		applogger.Strings("assets", res.Assets),
	)
	return res, nil
}
