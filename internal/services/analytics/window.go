package analytics

import (
	"sort"

	"CoinPull/internal/domain/models"

	"github.com/shopspring/decimal"
)

// DefaultWindow is the trailing window length: current row plus 6 preceding.
const DefaultWindow = 7

// WindowEngine computes per-asset trailing statistics and signals.
type WindowEngine struct {
	window int
}

func NewWindowEngine(window int) *WindowEngine {
	if window < 1 {
		window = DefaultWindow
	}
	return &WindowEngine{window: window}
}

// Analyze expects a deduplicated series. Windows run over each asset in
// ascending time; the result is in presentation order.
func (e *WindowEngine) Analyze(series []models.Observation) []models.AnalyticRow {
	parts := make(map[string][]models.Observation)
	for _, o := range series {
		parts[o.AssetID] = append(parts[o.AssetID], o)
	}
	assets := make([]string, 0, len(parts))
	for id := range parts {
		assets = append(assets, id)
	}
	sort.Strings(assets)

	out := make([]models.AnalyticRow, 0, len(series))
	for _, id := range assets {
		out = append(out, e.analyzeAsset(parts[id])...)
	}
	models.SortPresentation(out)
	return out
}

func (e *WindowEngine) analyzeAsset(rows []models.Observation) []models.AnalyticRow {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].RecordedAt.Before(rows[j].RecordedAt) })

	out := make([]models.AnalyticRow, len(rows))
	sum, sumSq := decimal.Zero, decimal.Zero
	for i, r := range rows {
		p := r.PriceUSD
		sum = sum.Add(p)
		sumSq = sumSq.Add(p.Mul(p))
		if j := i - e.window; j >= 0 {
			old := rows[j].PriceUSD
			sum = sum.Sub(old)
			sumSq = sumSq.Sub(old.Mul(old))
		}
		n := int64(min(i+1, e.window))

		row := models.AnalyticRow{Observation: r}
		row.SMA7d = sum.DivRound(decimal.NewFromInt(n), models.Scale)
		if n > 1 {
			vol := SampleStdDev(sum, sumSq, n).Round(models.Scale)
			row.Volatility7d = &vol
		}
		row.Signal = Classify(p, row.SMA7d)
		out[i] = row
	}
	return out
}

// Classify compares a price against its stored moving average.
func Classify(price, sma decimal.Decimal) models.Signal {
	switch price.Cmp(sma) {
	case -1:
		return models.SignalBuy
	case 1:
		return models.SignalWait
	default:
		return models.SignalHold
	}
}
