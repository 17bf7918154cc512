package repository

import (
	"fmt"
	"time"

	"CoinPull/internal/domain/models"

	"github.com/shopspring/decimal"
)

// seriesRecord is the on-disk Silver row. Decimals are stored as fixed-scale
// strings so values survive the round trip exactly.
type seriesRecord struct {
	RecordedAt int64   `parquet:"recorded_at,timestamp"`
	CoinID     string  `parquet:"coin_id"`
	PriceUSD   string  `parquet:"price_usd"`
	MarketCap  *string `parquet:"market_cap,optional"`
	Volume24h  *string `parquet:"volume_24h,optional"`
	IngestedAt int64   `parquet:"ingested_at"`
}

// goldRecord is the on-disk Gold row.
type goldRecord struct {
	RecordedAt   int64   `parquet:"recorded_at,timestamp"`
	CoinID       string  `parquet:"coin_id"`
	PriceUSD     string  `parquet:"price_usd"`
	MarketCap    *string `parquet:"market_cap,optional"`
	Volume24h    *string `parquet:"volume_24h,optional"`
	SMA7d        string  `parquet:"sma_7d"`
	Volatility7d *string `parquet:"volatility_7d,optional"`
	Signal       string  `parquet:"signal"`
}

func toSeriesRecord(o models.Observation, ingestedAt int64) seriesRecord {
	return seriesRecord{
		RecordedAt: o.RecordedAt.UTC().UnixMilli(),
		CoinID:     o.AssetID,
		PriceUSD:   o.PriceUSD.StringFixed(models.Scale),
		MarketCap:  models.FixedString(o.MarketCap),
		Volume24h:  models.FixedString(o.Volume24h),
		IngestedAt: ingestedAt,
	}
}

func (r seriesRecord) observation() (models.Observation, error) {
	price, err := decimal.NewFromString(r.PriceUSD)
	if err != nil {
		return models.Observation{}, fmt.Errorf("price_usd %q: %w", r.PriceUSD, err)
	}
	mcap, err := models.ParseFixed(r.MarketCap)
	if err != nil {
		return models.Observation{}, fmt.Errorf("market_cap: %w", err)
	}
	vol, err := models.ParseFixed(r.Volume24h)
	if err != nil {
		return models.Observation{}, fmt.Errorf("volume_24h: %w", err)
	}
	return models.Observation{
		RecordedAt: time.UnixMilli(r.RecordedAt).UTC(),
		AssetID:    r.CoinID,
		PriceUSD:   price,
		MarketCap:  mcap,
		Volume24h:  vol,
	}, nil
}

func toGoldRecord(r models.AnalyticRow) goldRecord {
	return goldRecord{
		RecordedAt:   r.RecordedAt.UTC().UnixMilli(),
		CoinID:       r.AssetID,
		PriceUSD:     r.PriceUSD.StringFixed(models.Scale),
		MarketCap:    models.FixedString(r.MarketCap),
		Volume24h:    models.FixedString(r.Volume24h),
		SMA7d:        r.SMA7d.StringFixed(models.Scale),
		Volatility7d: models.FixedString(r.Volatility7d),
		Signal:       string(r.Signal),
	}
}

func (g goldRecord) analyticRow() (models.AnalyticRow, error) {
	obs, err := seriesRecord{
		RecordedAt: g.RecordedAt,
		CoinID:     g.CoinID,
		PriceUSD:   g.PriceUSD,
		MarketCap:  g.MarketCap,
		Volume24h:  g.Volume24h,
	}.observation()
	if err != nil {
		return models.AnalyticRow{}, err
	}
	sma, err := decimal.NewFromString(g.SMA7d)
	if err != nil {
		return models.AnalyticRow{}, fmt.Errorf("sma_7d %q: %w", g.SMA7d, err)
	}
	vol, err := models.ParseFixed(g.Volatility7d)
	if err != nil {
		return models.AnalyticRow{}, fmt.Errorf("volatility_7d: %w", err)
	}
	return models.AnalyticRow{Observation: obs, SMA7d: sma, Volatility7d: vol, Signal: models.Signal(g.Signal)}, nil
}
