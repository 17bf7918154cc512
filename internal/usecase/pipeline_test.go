package usecase

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"CoinPull/internal/domain/models"
	drepo "CoinPull/internal/domain/repository"
	"CoinPull/internal/repository"
	"CoinPull/internal/services/analytics"
	"CoinPull/internal/services/history"
	"CoinPull/internal/services/normalize"
	"CoinPull/internal/services/publish"
	pkgcache "CoinPull/pkg/cache"
	"CoinPull/pkg/util"
)

type fakeFetcher struct {
	mu    sync.Mutex
	fails int
	calls int
	body  string
}

func (f *fakeFetcher) FetchSnapshot(_ context.Context, _ []string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fails > 0 {
		f.fails--
		return nil, &models.FetchError{Status: 503, Retryable: true, Err: errors.New("unavailable")}
	}
	return []byte(f.body), nil
}

type recordingEvents struct {
	mu      sync.Mutex
	objects []models.ObjectEvent
	gold    []models.GoldPublishedEvent
}

func (r *recordingEvents) PublishObjectEvent(_ context.Context, ev models.ObjectEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.objects = append(r.objects, ev)
	return nil
}

func (r *recordingEvents) PublishGoldEvent(_ context.Context, ev models.GoldPublishedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gold = append(r.gold, ev)
	return nil
}

func (r *recordingEvents) Close() error { return nil }

type countingInvalidator struct{ n int }

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.n++
	return nil
}

// slowBlobs delays Get and records how many reads overlap.
type slowBlobs struct {
	drepo.BlobStore
	delay time.Duration
	onGet func()

	mu       sync.Mutex
	inflight int
	peak     int
}

func (s *slowBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	s.inflight++
	if s.inflight > s.peak {
		s.peak = s.inflight
	}
	hook := s.onGet
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	time.Sleep(s.delay)
	s.mu.Lock()
	s.inflight--
	s.mu.Unlock()
	return s.BlobStore.Get(ctx, key)
}

type harness struct {
	blobs    *slowBlobs
	gold     *repository.ParquetGoldStore
	goldPath string
	events   *recordingEvents
	cache    *countingInvalidator
	fetcher  *fakeFetcher
	lease    drepo.Lease
	mem      *pkgcache.MemoryCache
	pipeline *Pipeline
}

func newHarness(t *testing.T, mode history.Mode) *harness {
	t.Helper()
	dir := t.TempDir()
	fast := util.RetryPolicy{Attempts: 3, BackoffMin: time.Millisecond, BackoffMax: time.Millisecond}

	h := &harness{
		blobs:    &slowBlobs{BlobStore: repository.NewFSBlobStore(filepath.Join(dir, "bronze"))},
		goldPath: filepath.Join(dir, "gold", "market_summary.parquet"),
		events:   &recordingEvents{},
		cache:    &countingInvalidator{},
		fetcher:  &fakeFetcher{body: `{"bitcoin":{"usd":100}}`},
		mem:      pkgcache.NewMemoryCache(),
	}
	h.gold = repository.NewParquetGoldStore(h.goldPath)
	t.Cleanup(func() { _ = h.mem.Close() })
	h.lease = repository.NewCacheLease(h.mem)

	series := repository.NewParquetSeriesStore(filepath.Join(dir, "silver"), "market_history.parquet", "processed")
	acc := history.New(series, mode, history.WithRetry(fast))
	bronze := NewBronzeIngest(h.fetcher, h.blobs, h.events, nil, nil, BronzeConfig{
		Prefix:     "raw_data/raw_prices_",
		Layout:     normalize.LayoutCompact,
		Coins:      []string{"bitcoin"},
		FetchRetry: fast,
		StoreRetry: fast,
	})
	bronze.now = func() time.Time { return time.Date(2025, 1, 4, 0, 0, 0, 0, time.UTC) }
	silver := NewSilverProcessor(h.blobs, normalize.New(models.NewAssetSchema("bitcoin", "ethereum"), nil), acc, nil, nil, "raw_data/", fast, time.Second)
	gold := NewGoldBuilder(acc, analytics.NewWindowEngine(7), publish.New([]drepo.GoldSink{h.gold}), h.cache, h.events, nil, nil)
	h.pipeline = NewPipeline(bronze, silver, gold, h.lease, LeaseConfig{Key: "lease:test", TTL: time.Minute, Wait: 20 * time.Millisecond}, nil)
	return h
}

func (h *harness) put(t *testing.T, key, body string) {
	t.Helper()
	if err := h.blobs.Put(context.Background(), key, []byte(body)); err != nil {
		t.Fatalf("put %s: %v", key, err)
	}
}

func signals(t *testing.T, store drepo.GoldReader, asset string) []models.Signal {
	t.Helper()
	rows, err := store.ReadGold(context.Background())
	if err != nil {
		t.Fatalf("read gold: %v", err)
	}
	var out []models.Signal
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].AssetID == asset {
			out = append(out, rows[i].Signal)
		}
	}
	return out
}

func TestRunAllBuildsGold(t *testing.T) {
	for _, mode := range []history.Mode{history.ModeRewrite, history.ModeAppend} {
		t.Run(string(mode), func(t *testing.T) {
			h := newHarness(t, mode)
			h.put(t, "raw_data/raw_prices_20250101_000000.json", `{"bitcoin":{"usd":100},"dogecoin":{"usd":1}}`)
			h.put(t, "raw_data/raw_prices_20250102_000000.json", `{"bitcoin":{"usd":110}}`)
			h.put(t, "raw_data/raw_prices_20250103_000000.json", `{"bitcoin":{"usd":90},"ethereum":{"usd":"oops"}}`)
			h.put(t, "raw_data/notes.txt", "ignored")

			rep, err := h.pipeline.RunAll(context.Background(), false, nil)
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if rep.Silver.Objects != 3 || rep.Silver.Rows != 3 || rep.Silver.Rejected != 1 || rep.Silver.Dropped != 1 {
				t.Fatalf("unexpected silver stats %+v", rep.Silver)
			}
			if rep.Gold.Rows != 3 {
				t.Fatalf("expected 3 gold rows, got %d", rep.Gold.Rows)
			}
			got := signals(t, h.gold, "bitcoin")
			want := []models.Signal{models.SignalHold, models.SignalWait, models.SignalBuy}
			if len(got) != len(want) {
				t.Fatalf("signals %v", got)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("signal %d: got %s want %s", i, got[i], want[i])
				}
			}
			if h.cache.n != 1 || len(h.events.gold) != 1 || h.events.gold[0].RunID != rep.RunID {
				t.Fatalf("expected one invalidation and one gold event")
			}
		})
	}
}

func TestRerunPublishesIdenticalGold(t *testing.T) {
	for _, mode := range []history.Mode{history.ModeRewrite, history.ModeAppend} {
		t.Run(string(mode), func(t *testing.T) {
			h := newHarness(t, mode)
			h.put(t, "raw_data/raw_prices_20250101_000000.json", `{"bitcoin":{"usd":100,"usd_market_cap":1900000000000},"ethereum":{"usd":3300.5}}`)
			h.put(t, "raw_data/raw_prices_20250102_000000.json", `{"bitcoin":{"usd":110},"ethereum":{"usd":3250.25,"usd_24h_vol":12000000000}}`)
			h.put(t, "raw_data/raw_prices_20250103_000000.json", `{"bitcoin":{"usd":90},"ethereum":{"usd":3400}}`)

			if _, err := h.pipeline.RunAll(context.Background(), false, nil); err != nil {
				t.Fatalf("first run: %v", err)
			}
			first, err := os.ReadFile(h.goldPath)
			if err != nil {
				t.Fatalf("read gold: %v", err)
			}

			if _, err := h.pipeline.RunAll(context.Background(), false, nil); err != nil {
				t.Fatalf("second run: %v", err)
			}
			if _, err := h.pipeline.RunObjects(context.Background(), []string{"raw_data/raw_prices_20250102_000000.json"}); err != nil {
				t.Fatalf("reprocess: %v", err)
			}
			again, err := os.ReadFile(h.goldPath)
			if err != nil {
				t.Fatalf("read gold: %v", err)
			}
			if !bytes.Equal(first, again) {
				t.Fatalf("gold table changed across reruns (%d vs %d bytes)", len(first), len(again))
			}

			rows, err := h.gold.ReadGold(context.Background())
			if err != nil {
				t.Fatalf("read gold: %v", err)
			}
			if len(rows) != 6 {
				t.Fatalf("expected 6 rows after reruns, got %d", len(rows))
			}
		})
	}
}

func TestRunObjectsSkipsUnstampedSnapshot(t *testing.T) {
	h := newHarness(t, history.ModeRewrite)
	h.put(t, "raw_data/prices_latest.json", `{"bitcoin":{"usd":100}}`)
	rep, err := h.pipeline.RunObjects(context.Background(), []string{"raw_data/prices_latest.json"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Silver.Objects != 0 || len(rep.Silver.Skipped) != 1 {
		t.Fatalf("expected the snapshot to be skipped, got %+v", rep.Silver)
	}
	if len(h.events.gold) != 0 {
		t.Fatalf("gold must not be republished when nothing was processed")
	}
}

func TestRunAllEmptySeries(t *testing.T) {
	h := newHarness(t, history.ModeRewrite)
	_, err := h.pipeline.RunAll(context.Background(), false, nil)
	if !errors.Is(err, models.ErrNoSeries) {
		t.Fatalf("expected ErrNoSeries, got %v", err)
	}
}

func TestRunAllWithFetch(t *testing.T) {
	h := newHarness(t, history.ModeRewrite)
	h.fetcher.fails = 1
	rep, err := h.pipeline.RunAll(context.Background(), true, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.BronzeKey != "raw_data/raw_prices_20250104_000000.json" {
		t.Fatalf("unexpected bronze key %q", rep.BronzeKey)
	}
	if h.fetcher.calls != 2 {
		t.Fatalf("expected one retry, got %d calls", h.fetcher.calls)
	}
	if len(h.events.objects) != 1 || h.events.objects[0].Name != rep.BronzeKey {
		t.Fatalf("expected an object event for %s", rep.BronzeKey)
	}
	if rep.Gold.Rows != 1 {
		t.Fatalf("expected 1 gold row, got %d", rep.Gold.Rows)
	}
}

func TestBronzeFetchGivesUpOnClientError(t *testing.T) {
	h := newHarness(t, history.ModeRewrite)
	f := &models.FetchError{Status: 400, Err: errors.New("bad request")}
	bronze := NewBronzeIngest(fetchFunc(func() error { return f }), h.blobs, h.events, nil, nil, BronzeConfig{
		FetchRetry: util.RetryPolicy{Attempts: 5, BackoffMin: time.Millisecond, BackoffMax: time.Millisecond},
	})
	_, err := bronze.Ingest(context.Background(), []string{"bitcoin"})
	var fe *models.FetchError
	if !errors.As(err, &fe) || fe.Status != 400 {
		t.Fatalf("expected FetchError, got %v", err)
	}
	keys, _ := h.blobs.List(context.Background(), "")
	if len(keys) != 0 {
		t.Fatalf("nothing should be stored, got %v", keys)
	}
}

type fetchFunc func() error

func (f fetchFunc) FetchSnapshot(context.Context, []string) ([]byte, error) { return nil, f() }

func TestLeaseUnavailable(t *testing.T) {
	h := newHarness(t, history.ModeRewrite)
	h.put(t, "raw_data/raw_prices_20250101_000000.json", `{"bitcoin":{"usd":100}}`)
	ok, err := h.lease.Acquire(context.Background(), "lease:test", "other-run", time.Minute)
	if err != nil || !ok {
		t.Fatalf("pre-acquire: %v %v", ok, err)
	}
	_, err = h.pipeline.RunAll(context.Background(), false, nil)
	if !errors.Is(err, models.ErrLeaseUnavailable) {
		t.Fatalf("expected ErrLeaseUnavailable, got %v", err)
	}
	if !models.IsRetryable(err) {
		t.Fatalf("lease contention should be retryable")
	}
}

func TestConcurrentRunsSerialize(t *testing.T) {
	h := newHarness(t, history.ModeRewrite)
	h.pipeline.cfg.Wait = 10 * time.Second
	h.put(t, "raw_data/raw_prices_20250101_000000.json", `{"bitcoin":{"usd":100}}`)
	h.put(t, "raw_data/raw_prices_20250102_000000.json", `{"ethereum":{"usd":10}}`)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, key := range []string{"raw_data/raw_prices_20250101_000000.json", "raw_data/raw_prices_20250102_000000.json"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			_, err := h.pipeline.RunObjects(context.Background(), []string{key})
			errs <- err
		}(key)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	}
	rows, err := h.gold.ReadGold(context.Background())
	if err != nil {
		t.Fatalf("read gold: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("both batches must survive, got %d rows", len(rows))
	}
}

func TestLeaseHeldThroughSlowRun(t *testing.T) {
	h := newHarness(t, history.ModeRewrite)
	h.pipeline.cfg.TTL = 60 * time.Millisecond
	h.pipeline.cfg.Wait = 5 * time.Second
	h.put(t, "raw_data/raw_prices_20250101_000000.json", `{"bitcoin":{"usd":100}}`)
	h.put(t, "raw_data/raw_prices_20250102_000000.json", `{"ethereum":{"usd":10}}`)
	h.blobs.delay = 200 * time.Millisecond

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i, key := range []string{"raw_data/raw_prices_20250101_000000.json", "raw_data/raw_prices_20250102_000000.json"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			_, err := h.pipeline.RunObjects(context.Background(), []string{key})
			errs <- err
		}(key)
		if i == 0 {
			time.Sleep(30 * time.Millisecond)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	}
	if h.blobs.peak != 1 {
		t.Fatalf("runs overlapped inside the lease: peak %d", h.blobs.peak)
	}
	rows, err := h.gold.ReadGold(context.Background())
	if err != nil {
		t.Fatalf("read gold: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("both batches must survive, got %d rows", len(rows))
	}
}

func TestLeaseLossCancelsRun(t *testing.T) {
	h := newHarness(t, history.ModeRewrite)
	h.pipeline.cfg.TTL = 60 * time.Millisecond

	err := h.pipeline.withLease(context.Background(), "run-a", func(ctx context.Context) error {
		_ = h.mem.Delete(ctx, "lease:test")
		if ok, _ := h.mem.TryLock(ctx, "lease:test", "intruder", time.Minute); !ok {
			return errors.New("could not take over the lease")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
			return errors.New("run was not cancelled")
		}
	})
	if !errors.Is(err, models.ErrLeaseLost) {
		t.Fatalf("expected ErrLeaseLost, got %v", err)
	}
	if !models.IsRetryable(err) {
		t.Fatalf("a lost lease should be retryable")
	}
	if ok, _ := h.mem.TryLock(context.Background(), "lease:test", "run-b", time.Minute); ok {
		t.Fatalf("release must not drop the new owner's lease")
	}
}

func TestLeaseLossSkipsGoldPublish(t *testing.T) {
	h := newHarness(t, history.ModeRewrite)
	h.pipeline.cfg.TTL = 60 * time.Millisecond
	h.put(t, "raw_data/raw_prices_20250101_000000.json", `{"bitcoin":{"usd":100}}`)
	h.blobs.delay = 150 * time.Millisecond
	h.blobs.onGet = func() {
		ctx := context.Background()
		_ = h.mem.Delete(ctx, "lease:test")
		_, _ = h.mem.TryLock(ctx, "lease:test", "intruder", time.Minute)
	}

	_, err := h.pipeline.RunObjects(context.Background(), []string{"raw_data/raw_prices_20250101_000000.json"})
	if !errors.Is(err, models.ErrLeaseLost) {
		t.Fatalf("expected ErrLeaseLost, got %v", err)
	}
	if len(h.events.gold) != 0 || h.cache.n != 0 {
		t.Fatalf("gold must not be published after the lease is lost")
	}
	if _, err := os.Stat(h.goldPath); !os.IsNotExist(err) {
		t.Fatalf("gold file should not exist, stat err %v", err)
	}
}
