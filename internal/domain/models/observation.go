package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Observation is one normalized (asset, timestamp) price row of the Silver series.
type Observation struct {
	RecordedAt time.Time
	AssetID    string
	PriceUSD   decimal.Decimal
	MarketCap  *decimal.Decimal
	Volume24h  *decimal.Decimal
}

// SeriesKey identifies a row of the canonical series.
type SeriesKey struct {
	AssetID    string
	RecordedAt int64
}

// Key returns the dedup key of the observation.
func (o Observation) Key() SeriesKey {
	return SeriesKey{AssetID: o.AssetID, RecordedAt: o.RecordedAt.UnixNano()}
}

// SortSeries orders rows by recorded_at asc, then asset_id asc.
func SortSeries(rows []Observation) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.RecordedAt.Equal(b.RecordedAt) {
			return a.RecordedAt.Before(b.RecordedAt)
		}
		return a.AssetID < b.AssetID
	})
}

type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalWait Signal = "WAIT"
	SignalHold Signal = "HOLD"
)

// AnalyticRow is a Gold row: the observation plus its trailing-window statistics.
type AnalyticRow struct {
	Observation
	SMA7d        decimal.Decimal
	Volatility7d *decimal.Decimal
	Signal       Signal
}

// SortPresentation orders rows by recorded_at desc, then asset_id asc.
func SortPresentation(rows []AnalyticRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.RecordedAt.Equal(b.RecordedAt) {
			return a.RecordedAt.After(b.RecordedAt)
		}
		return a.AssetID < b.AssetID
	})
}

// GoldFilter narrows a Gold table read.
type GoldFilter struct {
	AssetID string
	From    time.Time
	To      time.Time
	Limit   int
}

// Match reports whether the row passes the filter (limit excluded).
func (f GoldFilter) Match(r AnalyticRow) bool {
	if f.AssetID != "" && r.AssetID != f.AssetID {
		return false
	}
	if !f.From.IsZero() && r.RecordedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && r.RecordedAt.After(f.To) {
		return false
	}
	return true
}

// Apply filters rows that are already in presentation order.
func (f GoldFilter) Apply(rows []AnalyticRow) []AnalyticRow {
	out := make([]AnalyticRow, 0, len(rows))
	for _, r := range rows {
		if !f.Match(r) {
			continue
		}
		out = append(out, r)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

// Latest returns the newest row per asset, in asset_id order.
func Latest(rows []AnalyticRow) []AnalyticRow {
	seen := make(map[string]int)
	out := make([]AnalyticRow, 0)
	for _, r := range rows {
		if i, ok := seen[r.AssetID]; ok {
			if r.RecordedAt.After(out[i].RecordedAt) {
				out[i] = r
			}
			continue
		}
		seen[r.AssetID] = len(out)
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out
}
