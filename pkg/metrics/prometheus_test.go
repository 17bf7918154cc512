package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordSnapshot("silver", "ok")
	r.RecordSnapshot("silver", "ok")
	r.RecordRowsRejected("bitcoin", 1)
	r.RecordGoldRows(12)

	if got := testutil.ToFloat64(r.snapshots.WithLabelValues("silver", "ok")); got != 2 {
		t.Fatalf("snapshots = %v", got)
	}
	if got := testutil.ToFloat64(r.rowsRejected.WithLabelValues("bitcoin")); got != 1 {
		t.Fatalf("rows rejected = %v", got)
	}
	if got := testutil.ToFloat64(r.goldRows); got != 12 {
		t.Fatalf("gold rows = %v", got)
	}
}
