package history

import (
	"context"
	"fmt"
	"time"

	"CoinPull/internal/domain/models"
	"CoinPull/internal/domain/repository"
	applogger "CoinPull/pkg/logger"
	"CoinPull/pkg/util"
)

// Mode selects how batches reach the series store.
type Mode string

const (
	// ModeRewrite reads the whole series, merges and writes it back.
	ModeRewrite Mode = "rewrite"
	// ModeAppend writes each batch as its own partition; reads dedup lazily.
	ModeAppend Mode = "append"
)

// Merge unions existing and incoming rows on (asset_id, recorded_at).
// Incoming rows win; within incoming, later rows win. Inputs are not mutated.
func Merge(existing, incoming []models.Observation) []models.Observation {
	all := make([]models.Observation, 0, len(existing)+len(incoming))
	all = append(all, existing...)
	all = append(all, incoming...)
	return Dedup(all)
}

// Dedup keeps the last row per key and returns the series in storage order.
func Dedup(rows []models.Observation) []models.Observation {
	idx := make(map[models.SeriesKey]int, len(rows))
	out := make([]models.Observation, 0, len(rows))
	for _, r := range rows {
		r.RecordedAt = r.RecordedAt.UTC()
		if i, ok := idx[r.Key()]; ok {
			out[i] = r
			continue
		}
		idx[r.Key()] = len(out)
		out = append(out, r)
	}
	models.SortSeries(out)
	return out
}

// Accumulator merges normalized batches into the canonical series.
type Accumulator struct {
	store   repository.SeriesStore
	mode    Mode
	retry   util.RetryPolicy
	timeout time.Duration
	l       *applogger.Logger
}

type Option func(*Accumulator)

func WithRetry(p util.RetryPolicy) Option { return func(a *Accumulator) { a.retry = p } }

func WithTimeout(d time.Duration) Option { return func(a *Accumulator) { a.timeout = d } }

func WithLogger(l *applogger.Logger) Option { return func(a *Accumulator) { a.l = l } }

func New(store repository.SeriesStore, mode Mode, opts ...Option) *Accumulator {
	a := &Accumulator{
		store:   store,
		mode:    mode,
		retry:   util.RetryPolicy{Attempts: 1},
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.mode != ModeAppend {
		a.mode = ModeRewrite
	}
	return a
}

func (a *Accumulator) Mode() Mode { return a.mode }

// Accumulate persists one batch. partition names the batch in append mode
// (usually the source object) and is ignored in rewrite mode.
func (a *Accumulator) Accumulate(ctx context.Context, partition string, batch []models.Observation) error {
	if len(batch) == 0 {
		return nil
	}
	if a.mode == ModeAppend {
		rows := Dedup(batch)
		return util.Retry(ctx, a.retry, func(ctx context.Context) error {
			cctx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()
			return a.store.AppendPartition(cctx, partition, rows)
		})
	}
	return util.Retry(ctx, a.retry, func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		existing, version, err := a.store.ReadSeries(cctx)
		if err != nil {
			return fmt.Errorf("read series: %w", err)
		}
		merged := Merge(existing, batch)
		if err := a.store.ReplaceSeries(cctx, merged, version); err != nil {
			return fmt.Errorf("write series: %w", err)
		}
		if a.l != nil {
			a.l.Debug("series rewritten",
				applogger.String("location", a.store.Location()),
				applogger.Int("before", len(existing)),
				applogger.Int("after", len(merged)),
			)
		}
		return nil
	})
}

// Load returns the deduplicated series in storage order.
func (a *Accumulator) Load(ctx context.Context) ([]models.Observation, error) {
	var rows []models.Observation
	err := util.Retry(ctx, a.retry, func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		r, _, err := a.store.ReadSeries(cctx)
		if err != nil {
			return fmt.Errorf("read series: %w", err)
		}
		rows = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return Dedup(rows), nil
}
