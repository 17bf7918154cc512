package publish

import (
	"context"
	"errors"
	"time"

	"CoinPull/internal/domain/models"
	"CoinPull/internal/domain/repository"
	applogger "CoinPull/pkg/logger"
	"CoinPull/pkg/util"
)

// Publisher writes the Gold table to every configured sink in order.
// Each sink replaces its prior content atomically; the first failure stops the
// publish and is returned as a PublishError.
type Publisher struct {
	sinks   []repository.GoldSink
	retry   util.RetryPolicy
	timeout time.Duration
	preview int
	l       *applogger.Logger
}

type Option func(*Publisher)

func WithRetry(p util.RetryPolicy) Option { return func(pb *Publisher) { pb.retry = p } }

func WithTimeout(d time.Duration) Option { return func(pb *Publisher) { pb.timeout = d } }

// WithPreview logs the first n rows after a successful publish.
func WithPreview(n int) Option { return func(pb *Publisher) { pb.preview = n } }

func WithLogger(l *applogger.Logger) Option { return func(pb *Publisher) { pb.l = l } }

func New(sinks []repository.GoldSink, opts ...Option) *Publisher {
	p := &Publisher{
		sinks:   sinks,
		retry:   util.RetryPolicy{Attempts: 1},
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Location is where readers find the table.
func (p *Publisher) Location() string {
	if len(p.sinks) == 0 {
		return ""
	}
	return p.sinks[0].Location()
}

func (p *Publisher) Publish(ctx context.Context, rows []models.AnalyticRow) error {
	if len(p.sinks) == 0 {
		return &models.PublishError{Location: "none", Err: errors.New("no gold sink configured")}
	}
	for _, s := range p.sinks {
		err := util.Retry(ctx, p.retry, func(ctx context.Context) error {
			cctx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()
			return s.WriteGold(cctx, rows)
		})
		if err != nil {
			var pe *models.PublishError
			if errors.As(err, &pe) {
				return err
			}
			return &models.PublishError{Location: s.Location(), Err: err}
		}
		if p.l != nil {
			p.l.Info("gold table published", applogger.String("location", s.Location()), applogger.Int("rows", len(rows)))
		}
	}
	p.logPreview(rows)
	return nil
}

func (p *Publisher) logPreview(rows []models.AnalyticRow) {
	if p.l == nil || p.preview <= 0 {
		return
	}
	for i, r := range rows {
		if i >= p.preview {
			break
		}
		v := models.NewGoldRowView(r)
		vol := "null"
		if v.Volatility7d != nil {
			vol = *v.Volatility7d
		}
		p.l.Info("market analysis",
			applogger.String("recorded_at", v.RecordedAt),
			applogger.String("coin_id", v.CoinID),
			applogger.String("price_usd", v.PriceUSD),
			applogger.String("sma_7d", v.SMA7d),
			applogger.String("volatility_7d", vol),
			applogger.String("signal", string(v.Signal)),
		)
	}
}
