package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"CoinPull/internal/domain/models"
	"CoinPull/internal/service/ratelimit"
	"CoinPull/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type staticGold struct {
	rows []models.AnalyticRow
	err  error
}

func (s staticGold) ReadGold(context.Context) ([]models.AnalyticRow, error) {
	out := make([]models.AnalyticRow, len(s.rows))
	copy(out, s.rows)
	return out, s.err
}

type stubRunner struct {
	calls int
	fetch bool
	coins []string
	err   error
}

func (s *stubRunner) RunAll(_ context.Context, fetch bool, coins []string) (usecase.RunReport, error) {
	s.calls++
	s.fetch, s.coins = fetch, coins
	return usecase.RunReport{RunID: "run-1"}, s.err
}

func row(asset string, day int, price int64) models.AnalyticRow {
	p := decimal.NewFromInt(price)
	return models.AnalyticRow{
		Observation: models.Observation{RecordedAt: time.Date(2025, 1, day, 0, 0, 0, 0, time.UTC), AssetID: asset, PriceUSD: p},
		SMA7d:       p,
		Signal:      models.SignalHold,
	}
}

type envelope struct {
	Status int `json:"status"`
	Data   struct {
		Rows  []models.GoldRowView `json:"rows"`
		Total int64                `json:"total"`
	} `json:"data"`
}

func serve(t *testing.T, h *GoldHandler, method, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func newHandler(gold staticGold, runner *stubRunner) *GoldHandler {
	return NewGoldHandler(gold, runner, ratelimit.New(1, 0.001), nil)
}

func TestListFiltersAndOrders(t *testing.T) {
	gold := staticGold{rows: []models.AnalyticRow{
		row("bitcoin", 1, 100), row("ethereum", 1, 10),
		row("bitcoin", 2, 110), row("ethereum", 2, 11),
		row("bitcoin", 3, 90),
	}}
	h := newHandler(gold, &stubRunner{})

	rec, env := serve(t, h, http.MethodGet, "/api/gold?coin_id=bitcoin&from=2025-01-02")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if env.Data.Total != 2 || env.Data.Rows[0].RecordedAt != "2025-01-03T00:00:00Z" || env.Data.Rows[0].PriceUSD != "90.00" {
		t.Fatalf("unexpected rows %+v", env.Data.Rows)
	}

	_, env = serve(t, h, http.MethodGet, "/api/gold?limit=3")
	if env.Data.Total != 3 || env.Data.Rows[1].CoinID != "bitcoin" || env.Data.Rows[2].CoinID != "ethereum" {
		t.Fatalf("expected newest-first with asset tiebreak, got %+v", env.Data.Rows)
	}
}

func TestListRejectsBadQuery(t *testing.T) {
	h := newHandler(staticGold{}, &stubRunner{})
	for _, target := range []string{"/api/gold?from=yesterday", "/api/gold?limit=20000", "/api/gold?from=2025-01-02&to=2025-01-01"} {
		rec, _ := serve(t, h, http.MethodGet, target)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, rec.Code)
		}
	}
}

func TestListStorageError(t *testing.T) {
	h := newHandler(staticGold{err: errors.New("disk")}, &stubRunner{})
	rec, _ := serve(t, h, http.MethodGet, "/api/gold")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestLatest(t *testing.T) {
	gold := staticGold{rows: []models.AnalyticRow{row("ethereum", 1, 10), row("bitcoin", 2, 110), row("bitcoin", 1, 100)}}
	_, env := serve(t, newHandler(gold, &stubRunner{}), http.MethodGet, "/api/gold/latest")
	if env.Data.Total != 2 || env.Data.Rows[0].CoinID != "bitcoin" || env.Data.Rows[0].PriceUSD != "110.00" {
		t.Fatalf("unexpected latest rows %+v", env.Data.Rows)
	}
}

func TestRunIsRateLimited(t *testing.T) {
	runner := &stubRunner{}
	h := newHandler(staticGold{}, runner)
	rec, _ := serve(t, h, http.MethodPost, "/api/pipeline/run?fetch=true")
	if rec.Code != http.StatusOK {
		t.Fatalf("first run: status %d: %s", rec.Code, rec.Body.String())
	}
	if runner.calls != 1 || !runner.fetch {
		t.Fatalf("expected one fetching run, got calls=%d fetch=%v", runner.calls, runner.fetch)
	}
	rec, _ = serve(t, h, http.MethodPost, "/api/pipeline/run")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After header")
	}
	if runner.calls != 1 {
		t.Fatalf("limited request must not run the pipeline")
	}
}

func TestRunMapsErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{wrapped(models.ErrLeaseUnavailable), http.StatusConflict},
		{wrapped(models.ErrNoSeries), http.StatusNotFound},
		{&models.FetchError{Status: 400, Err: errors.New("bad")}, http.StatusBadRequest},
		{errors.New("disk"), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		h := NewGoldHandler(staticGold{}, &stubRunner{err: tc.err}, ratelimit.New(10, 1), nil)
		rec, _ := serve(t, h, http.MethodPost, "/api/pipeline/run")
		if rec.Code != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, rec.Code)
		}
	}
}

func wrapped(err error) error { return errors.Join(errors.New("gold"), err) }

func TestHealth(t *testing.T) {
	h := newHandler(staticGold{}, &stubRunner{})
	h.AddHealthCheck("storage", func(context.Context) error { return nil })
	rec, _ := serve(t, h, http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	h.AddHealthCheck("redis", func(context.Context) error { return errors.New("down") })
	rec, _ = serve(t, h, http.MethodGet, "/healthz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
