package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	snapshots     *prometheus.CounterVec
	rowsRejected  *prometheus.CounterVec
	assetsDropped prometheus.Counter
	seriesSize    prometheus.Gauge
	goldRows      prometheus.Gauge
	errorsTotal   *prometheus.CounterVec
	lastPrice     *prometheus.GaugeVec
	latency       *prometheus.HistogramVec
}

// New registers the recorder's collectors with reg. A nil reg uses the
// default registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		snapshots: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinpull_snapshots_total",
				Help: "Snapshots handled per stage and result",
			},
			[]string{"stage", "result"},
		),
		rowsRejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinpull_rows_rejected_total",
				Help: "Asset rows dropped by the normalizer because a field failed to cast",
			},
			[]string{"asset"},
		),
		assetsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "coinpull_assets_dropped_total",
			Help: "Snapshot assets ignored because they are not in the schema",
		}),
		seriesSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "coinpull_series_rows",
			Help: "Rows in the canonical Silver series after the last run",
		}),
		goldRows: f.NewGauge(prometheus.GaugeOpts{
			Name: "coinpull_gold_rows",
			Help: "Rows in the last published Gold table",
		}),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinpull_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coinpull_last_price_usd",
				Help: "Last recorded USD price per asset",
			},
			[]string{"asset"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coinpull_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordSnapshot(stage, result string) {
	r.snapshots.WithLabelValues(stage, result).Inc()
}

func (r *Recorder) RecordRowsRejected(asset string, n int) {
	r.rowsRejected.WithLabelValues(asset).Add(float64(n))
}

func (r *Recorder) RecordAssetsDropped(n int) {
	r.assetsDropped.Add(float64(n))
}

func (r *Recorder) RecordSeriesSize(n int) {
	r.seriesSize.Set(float64(n))
}

func (r *Recorder) RecordGoldRows(n int) {
	r.goldRows.Set(float64(n))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for an asset.
func (r *Recorder) RecordLastPrice(asset string, price float64) {
	r.lastPrice.WithLabelValues(asset).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards all measurements.
type Nop struct{}

func (Nop) RecordSnapshot(string, string)   {}
func (Nop) RecordRowsRejected(string, int)  {}
func (Nop) RecordAssetsDropped(int)         {}
func (Nop) RecordSeriesSize(int)            {}
func (Nop) RecordGoldRows(int)              {}
func (Nop) RecordError(string)              {}
func (Nop) RecordLastPrice(string, float64) {}
func (Nop) RecordLatency(string, float64)   {}
