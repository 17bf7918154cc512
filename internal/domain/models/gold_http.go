package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ViewTimeLayout renders recorded_at in API responses.
const ViewTimeLayout = "2006-01-02T15:04:05Z"

// Requests for the Gold read and trigger endpoints.

type GoldQueryRequest struct {
	CoinID string `query:"coin_id" json:"coin_id" validate:"omitempty,max=64"`
	From   string `query:"from" json:"from"`
	To     string `query:"to" json:"to"`
	Limit  int    `query:"limit" json:"limit" default:"500" validate:"gte=1,lte=10000"`
}

type PipelineRunRequest struct {
	Fetch bool     `query:"fetch" json:"fetch"`
	Coins []string `json:"coins" validate:"omitempty,max=50,dive,required"`
}

// GoldRowView is the JSON shape of a Gold row; decimals keep their fixed scale.
type GoldRowView struct {
	RecordedAt   string  `json:"recorded_at"`
	CoinID       string  `json:"coin_id"`
	PriceUSD     string  `json:"price_usd"`
	MarketCap    *string `json:"market_cap"`
	Volume24h    *string `json:"volume_24h"`
	SMA7d        string  `json:"sma_7d"`
	Volatility7d *string `json:"volatility_7d"`
	Signal       Signal  `json:"signal"`
}

func NewGoldRowView(r AnalyticRow) GoldRowView {
	return GoldRowView{
		RecordedAt:   r.RecordedAt.UTC().Format(ViewTimeLayout),
		CoinID:       r.AssetID,
		PriceUSD:     r.PriceUSD.StringFixed(Scale),
		MarketCap:    FixedString(r.MarketCap),
		Volume24h:    FixedString(r.Volume24h),
		SMA7d:        r.SMA7d.StringFixed(Scale),
		Volatility7d: FixedString(r.Volatility7d),
		Signal:       r.Signal,
	}
}

// Row parses the view back into a Gold row.
func (v GoldRowView) Row() (AnalyticRow, error) {
	at, err := time.Parse(ViewTimeLayout, v.RecordedAt)
	if err != nil {
		return AnalyticRow{}, fmt.Errorf("recorded_at: %w", err)
	}
	price, err := decimal.NewFromString(v.PriceUSD)
	if err != nil {
		return AnalyticRow{}, fmt.Errorf("price_usd: %w", err)
	}
	sma, err := decimal.NewFromString(v.SMA7d)
	if err != nil {
		return AnalyticRow{}, fmt.Errorf("sma_7d: %w", err)
	}
	mcap, err := ParseFixed(v.MarketCap)
	if err != nil {
		return AnalyticRow{}, fmt.Errorf("market_cap: %w", err)
	}
	vol, err := ParseFixed(v.Volume24h)
	if err != nil {
		return AnalyticRow{}, fmt.Errorf("volume_24h: %w", err)
	}
	volat, err := ParseFixed(v.Volatility7d)
	if err != nil {
		return AnalyticRow{}, fmt.Errorf("volatility_7d: %w", err)
	}
	return AnalyticRow{
		Observation:  Observation{RecordedAt: at.UTC(), AssetID: v.CoinID, PriceUSD: price, MarketCap: mcap, Volume24h: vol},
		SMA7d:        sma,
		Volatility7d: volat,
		Signal:       v.Signal,
	}, nil
}
