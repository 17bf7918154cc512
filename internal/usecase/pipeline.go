package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"CoinPull/internal/domain/models"
	drepo "CoinPull/internal/domain/repository"
	applogger "CoinPull/pkg/logger"
	"CoinPull/pkg/util"

	"github.com/google/uuid"
)

// LeaseConfig bounds how long a run waits for the series lease.
type LeaseConfig struct {
	Key  string
	TTL  time.Duration
	Wait time.Duration
}

// RunReport summarizes one pipeline run.
type RunReport struct {
	RunID     string        `json:"run_id"`
	BronzeKey string        `json:"bronze_key,omitempty"`
	Silver    SilverStats   `json:"silver"`
	Gold      GoldResult    `json:"gold"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
}

// Pipeline chains Bronze, Silver and Gold. Accumulation and publishing run
// under an exclusive lease so concurrent runs never interleave writes.
type Pipeline struct {
	bronze *BronzeIngest
	silver *SilverProcessor
	gold   *GoldBuilder
	lease  drepo.Lease
	cfg    LeaseConfig
	l      *applogger.Logger
	newID  func() string
}

func NewPipeline(bronze *BronzeIngest, silver *SilverProcessor, gold *GoldBuilder, lease drepo.Lease, cfg LeaseConfig, l *applogger.Logger) *Pipeline {
	if l == nil {
		l = applogger.Nop()
	}
	if cfg.Key == "" {
		cfg.Key = "lease:series"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 2 * time.Minute
	}
	return &Pipeline{bronze: bronze, silver: silver, gold: gold, lease: lease, cfg: cfg, l: l, newID: uuid.NewString}
}

// RunAll optionally ingests a fresh snapshot, then reprocesses every Bronze
// object and republishes Gold.
func (p *Pipeline) RunAll(ctx context.Context, fetch bool, coins []string) (RunReport, error) {
	rep := RunReport{RunID: p.newID(), StartedAt: time.Now().UTC()}
	log := p.l.With(applogger.String("run_id", rep.RunID))
	if fetch {
		key, err := p.bronze.Ingest(ctx, coins)
		if err != nil {
			log.Error("bronze stage failed", applogger.Error(err))
			return rep, fmt.Errorf("bronze: %w", err)
		}
		rep.BronzeKey = key
	}
	err := p.withLease(ctx, rep.RunID, func(ctx context.Context) error {
		stats, err := p.silver.ProcessAll(ctx)
		rep.Silver = stats
		if err != nil {
			return fmt.Errorf("silver: %w", err)
		}
		rep.Gold, err = p.gold.Build(ctx, rep.RunID)
		if err != nil {
			return fmt.Errorf("gold: %w", err)
		}
		return nil
	})
	rep.Duration = time.Since(rep.StartedAt)
	p.logRun(log, rep, err)
	return rep, err
}

// RunObjects processes only the named Bronze objects, then republishes Gold.
func (p *Pipeline) RunObjects(ctx context.Context, keys []string) (RunReport, error) {
	rep := RunReport{RunID: p.newID(), StartedAt: time.Now().UTC()}
	log := p.l.With(applogger.String("run_id", rep.RunID))
	err := p.withLease(ctx, rep.RunID, func(ctx context.Context) error {
		stats, err := p.silver.ProcessObjects(ctx, keys)
		rep.Silver = stats
		if err != nil {
			return fmt.Errorf("silver: %w", err)
		}
		if stats.Objects == 0 {
			return nil
		}
		rep.Gold, err = p.gold.Build(ctx, rep.RunID)
		if err != nil {
			return fmt.Errorf("gold: %w", err)
		}
		return nil
	})
	rep.Duration = time.Since(rep.StartedAt)
	p.logRun(log, rep, err)
	return rep, err
}

// Ingest runs only the Bronze stage.
func (p *Pipeline) Ingest(ctx context.Context, coins []string) (string, error) {
	return p.bronze.Ingest(ctx, coins)
}

// RunSilver reprocesses every Bronze object without republishing Gold.
func (p *Pipeline) RunSilver(ctx context.Context) (RunReport, error) {
	rep := RunReport{RunID: p.newID(), StartedAt: time.Now().UTC()}
	err := p.withLease(ctx, rep.RunID, func(ctx context.Context) error {
		var err error
		rep.Silver, err = p.silver.ProcessAll(ctx)
		return err
	})
	rep.Duration = time.Since(rep.StartedAt)
	p.logRun(p.l.With(applogger.String("run_id", rep.RunID)), rep, err)
	return rep, err
}

// RunGold republishes Gold from the stored series.
func (p *Pipeline) RunGold(ctx context.Context) (RunReport, error) {
	rep := RunReport{RunID: p.newID(), StartedAt: time.Now().UTC()}
	err := p.withLease(ctx, rep.RunID, func(ctx context.Context) error {
		var err error
		rep.Gold, err = p.gold.Build(ctx, rep.RunID)
		return err
	})
	rep.Duration = time.Since(rep.StartedAt)
	p.logRun(p.l.With(applogger.String("run_id", rep.RunID)), rep, err)
	return rep, err
}

// withLease runs fn while holding the series lease. A heartbeat renews the
// lease every third of its TTL; if renewal fails fn's context is cancelled
// and the run reports ErrLeaseLost.
func (p *Pipeline) withLease(ctx context.Context, token string, fn func(context.Context) error) error {
	if err := p.acquire(ctx, token); err != nil {
		return err
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.lease.Release(rctx, p.cfg.Key, token); err != nil {
			p.l.Warn("lease release failed", applogger.String("key", p.cfg.Key), applogger.Error(err))
		}
	}()

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stop := p.keepAlive(runCtx, token, cancel)
	err := fn(runCtx)
	stop()
	if cause := context.Cause(runCtx); errors.Is(cause, models.ErrLeaseLost) {
		if err == nil || errors.Is(err, context.Canceled) {
			return cause
		}
		return errors.Join(cause, err)
	}
	return err
}

// keepAlive renews the lease until stop is called. A renewal error is
// tolerated while the last successful renewal still covers the next tick.
func (p *Pipeline) keepAlive(ctx context.Context, token string, lost context.CancelCauseFunc) (stop func()) {
	every := max(p.cfg.TTL/3, time.Millisecond)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		renewed := time.Now()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			ok, err := p.lease.Renew(ctx, p.cfg.Key, token, p.cfg.TTL)
			switch {
			case err == nil && ok:
				renewed = time.Now()
				continue
			case err == nil:
				err = errors.New("held by another owner")
			case time.Since(renewed)+every < p.cfg.TTL:
				p.l.Warn("lease renewal failed", applogger.String("key", p.cfg.Key), applogger.Error(err))
				continue
			}
			p.l.Error("series lease lost", applogger.String("key", p.cfg.Key), applogger.Error(err))
			lost(fmt.Errorf("%w: %s: %v", models.ErrLeaseLost, p.cfg.Key, err))
			return
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

// acquire polls the lease with backoff until cfg.Wait elapses.
func (p *Pipeline) acquire(ctx context.Context, token string) error {
	deadline := time.Now().Add(p.cfg.Wait)
	for attempt := 1; ; attempt++ {
		ok, err := p.lease.Acquire(ctx, p.cfg.Key, token, p.cfg.TTL)
		if err != nil {
			return fmt.Errorf("acquire lease %s: %w", p.cfg.Key, err)
		}
		if ok {
			return nil
		}
		wait := util.Backoff(50*time.Millisecond, time.Second, attempt)
		if time.Now().Add(wait).After(deadline) {
			return fmt.Errorf("%w: %s held after %s", models.ErrLeaseUnavailable, p.cfg.Key, p.cfg.Wait)
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return errors.Join(models.ErrLeaseUnavailable, ctx.Err())
		}
	}
}

func (p *Pipeline) logRun(log *applogger.Logger, rep RunReport, err error) {
	if err != nil {
		log.Error("pipeline run failed",
			applogger.Bool("retryable", models.IsRetryable(err)),
			applogger.Duration("duration", rep.Duration),
			applogger.Error(err),
		)
		return
	}
	log.Info("pipeline run complete",
		applogger.Int("objects", rep.Silver.Objects),
		applogger.Int("rows", rep.Silver.Rows),
		applogger.Int("gold_rows", rep.Gold.Rows),
		applogger.Duration("duration", rep.Duration),
	)
}
