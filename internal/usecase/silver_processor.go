package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"CoinPull/internal/domain/models"
	drepo "CoinPull/internal/domain/repository"
	"CoinPull/internal/services/history"
	"CoinPull/internal/services/normalize"
	applogger "CoinPull/pkg/logger"
	pkgmetrics "CoinPull/pkg/metrics"
	"CoinPull/pkg/util"
)

// SilverStats summarizes one Silver pass.
type SilverStats struct {
	Objects  int      `json:"objects"`
	Skipped  []string `json:"skipped,omitempty"`
	Rows     int      `json:"rows"`
	Rejected int      `json:"rejected"`
	Dropped  int      `json:"dropped"`
}

// SilverProcessor normalizes Bronze objects and accumulates them into the
// canonical series.
type SilverProcessor struct {
	blobs      drepo.BlobStore
	normalizer *normalize.Normalizer
	acc        *history.Accumulator
	metrics    drepo.Metrics
	l          *applogger.Logger
	prefix     string
	retry      util.RetryPolicy
	timeout    time.Duration
}

func NewSilverProcessor(blobs drepo.BlobStore, normalizer *normalize.Normalizer, acc *history.Accumulator, metrics drepo.Metrics, l *applogger.Logger, prefix string, retry util.RetryPolicy, timeout time.Duration) *SilverProcessor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if l == nil {
		l = applogger.Nop()
	}
	if metrics == nil {
		metrics = pkgmetrics.Nop{}
	}
	return &SilverProcessor{blobs: blobs, normalizer: normalizer, acc: acc, metrics: metrics, l: l, prefix: prefix, retry: retry, timeout: timeout}
}

// ProcessAll processes every Bronze object under the configured prefix.
func (s *SilverProcessor) ProcessAll(ctx context.Context) (SilverStats, error) {
	var keys []string
	err := util.Retry(ctx, s.retry, func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		var err error
		keys, err = s.blobs.List(cctx, s.prefix)
		return err
	})
	if err != nil {
		return SilverStats{}, fmt.Errorf("list bronze: %w", err)
	}
	return s.ProcessObjects(ctx, keys)
}

// ProcessObjects normalizes keys in lexical order. Snapshots without a timestamp or
// with a malformed body are skipped; storage failures abort. In rewrite mode
// all batches are merged in one write, in append mode each object becomes its
// own partition.
func (s *SilverProcessor) ProcessObjects(ctx context.Context, keys []string) (SilverStats, error) {
	start := time.Now()
	var (
		stats SilverStats
		batch []models.Observation
	)
	keys = append([]string(nil), keys...)
	sort.Strings(keys)
	for _, key := range keys {
		ev := models.ObjectEvent{Name: key}
		if !ev.IsSnapshot() {
			stats.Skipped = append(stats.Skipped, key)
			s.metrics.RecordSnapshot("silver", "skipped")
			continue
		}
		res, err := s.normalizeObject(ctx, key)
		if err != nil {
			if models.IsRetryable(err) {
				s.metrics.RecordSnapshot("silver", "error")
				s.metrics.RecordError("storage")
				return stats, err
			}
			stats.Skipped = append(stats.Skipped, key)
			s.metrics.RecordSnapshot("silver", "rejected")
			s.l.Warn("snapshot skipped", applogger.String("object", key), applogger.Error(err))
			continue
		}
		stats.Objects++
		stats.Rows += len(res.Rows)
		stats.Rejected += len(res.Rejected)
		stats.Dropped += len(res.Dropped)
		for _, r := range res.Rejected {
			s.metrics.RecordRowsRejected(r.Asset, 1)
		}
		s.metrics.RecordAssetsDropped(len(res.Dropped))
		s.metrics.RecordSnapshot("silver", "ok")

		if s.acc.Mode() == history.ModeAppend {
			if err := s.acc.Accumulate(ctx, key, res.Rows); err != nil {
				s.metrics.RecordError("accumulate")
				return stats, fmt.Errorf("accumulate %s: %w", key, err)
			}
			continue
		}
		batch = append(batch, res.Rows...)
	}
	if len(batch) > 0 {
		if err := s.acc.Accumulate(ctx, "", batch); err != nil {
			s.metrics.RecordError("accumulate")
			return stats, fmt.Errorf("accumulate: %w", err)
		}
	}
	s.metrics.RecordLatency("silver", time.Since(start).Seconds())
	s.l.Info("silver pass complete",
		applogger.Int("objects", stats.Objects),
		applogger.Int("skipped", len(stats.Skipped)),
		applogger.Int("rows", stats.Rows),
		applogger.Int("rejected", stats.Rejected),
		applogger.String("mode", string(s.acc.Mode())),
	)
	return stats, nil
}

func (s *SilverProcessor) normalizeObject(ctx context.Context, key string) (normalize.Result, error) {
	// Reject before reading when the name carries no timestamp.
	if _, err := normalize.ParseTimestamp(key); err != nil {
		return normalize.Result{}, err
	}
	var body []byte
	err := util.Retry(ctx, s.retry, func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		var err error
		body, err = s.blobs.Get(cctx, key)
		return err
	})
	if err != nil {
		return normalize.Result{}, fmt.Errorf("read %s: %w", key, err)
	}
	snap, err := models.DecodeSnapshot(key, body)
	if err != nil {
		return normalize.Result{}, err
	}
	res, err := s.normalizer.Normalize(snap)
	if err != nil {
		var tpe *models.TimestampParseError
		if errors.As(err, &tpe) {
			return res, err
		}
		return res, fmt.Errorf("normalize %s: %w", key, err)
	}
	return res, nil
}
