package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	GoldReadRows = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "coinpull",
			Subsystem: "api",
			Name:      "gold_rows_returned",
			Help:      "Rows returned per Gold read",
			Buckets:   []float64{0, 1, 10, 100, 1000, 10000},
		},
		[]string{"endpoint"},
	)

	PipelineTriggers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coinpull",
			Subsystem: "api",
			Name:      "pipeline_triggers_total",
			Help:      "Manual pipeline runs by outcome",
		},
		[]string{"result"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(GoldReadRows, PipelineTriggers)
	})
}
