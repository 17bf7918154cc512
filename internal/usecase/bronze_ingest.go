package usecase

import (
	"context"
	"fmt"
	"time"

	"CoinPull/internal/domain/models"
	drepo "CoinPull/internal/domain/repository"
	"CoinPull/internal/services/normalize"
	applogger "CoinPull/pkg/logger"
	pkgmetrics "CoinPull/pkg/metrics"
	"CoinPull/pkg/util"
)

// BronzeConfig tunes BronzeIngest.
type BronzeConfig struct {
	Bucket     string
	Prefix     string
	Layout     string
	Coins      []string
	FetchRetry util.RetryPolicy
	StoreRetry util.RetryPolicy
	Timeout    time.Duration
}

// BronzeIngest fetches one provider snapshot and stores it verbatim under a
// timestamped object name.
type BronzeIngest struct {
	fetcher drepo.SnapshotFetcher
	blobs   drepo.BlobStore
	events  drepo.EventPublisher
	metrics drepo.Metrics
	l       *applogger.Logger
	cfg     BronzeConfig
	now     func() time.Time
}

func NewBronzeIngest(fetcher drepo.SnapshotFetcher, blobs drepo.BlobStore, events drepo.EventPublisher, metrics drepo.Metrics, l *applogger.Logger, cfg BronzeConfig) *BronzeIngest {
	if cfg.FetchRetry.Retryable == nil {
		cfg.FetchRetry.Retryable = models.IsRetryable
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if l == nil {
		l = applogger.Nop()
	}
	if metrics == nil {
		metrics = pkgmetrics.Nop{}
	}
	return &BronzeIngest{fetcher: fetcher, blobs: blobs, events: events, metrics: metrics, l: l, cfg: cfg, now: time.Now}
}

// Ingest stores a snapshot for coins (the configured list when empty) and
// returns the object key.
func (b *BronzeIngest) Ingest(ctx context.Context, coins []string) (string, error) {
	start := time.Now()
	if len(coins) == 0 {
		coins = b.cfg.Coins
	}
	var body []byte
	err := util.Retry(ctx, b.cfg.FetchRetry, func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
		defer cancel()
		var err error
		body, err = b.fetcher.FetchSnapshot(cctx, coins)
		if err != nil {
			b.l.Warn("snapshot fetch attempt failed", applogger.Error(err))
		}
		return err
	})
	if err != nil {
		b.metrics.RecordSnapshot("bronze", "fetch_error")
		b.metrics.RecordError("fetch")
		return "", fmt.Errorf("fetch snapshot: %w", err)
	}

	key := normalize.ObjectName(b.cfg.Prefix, b.now(), b.cfg.Layout)
	err = util.Retry(ctx, b.cfg.StoreRetry, func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
		defer cancel()
		return b.blobs.Put(cctx, key, body)
	})
	if err != nil {
		b.metrics.RecordSnapshot("bronze", "store_error")
		b.metrics.RecordError("storage")
		return "", fmt.Errorf("store snapshot %s: %w", key, err)
	}
	b.metrics.RecordSnapshot("bronze", "ok")
	b.metrics.RecordLatency("bronze", time.Since(start).Seconds())
	b.l.Info("bronze snapshot stored",
		applogger.String("object", key),
		applogger.Strings("coins", coins),
		applogger.Int("bytes", len(body)),
	)

	if err := b.events.PublishObjectEvent(ctx, models.ObjectEvent{Bucket: b.cfg.Bucket, Name: key}); err != nil {
		// The object is stored; a scheduled full run still picks it up.
		b.metrics.RecordError("notify")
		b.l.Warn("object notification failed", applogger.String("object", key), applogger.Error(err))
	}
	return key, nil
}
