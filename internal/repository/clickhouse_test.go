package repository

import (
	"strings"
	"testing"

	pkgch "CoinPull/pkg/clickhouse"
)

func TestClickHouseTablesAreQualified(t *testing.T) {
	ch := pkgch.NewFromDB(nil, "coinpull")
	series := NewClickHouseSeriesStore(ch, "market_history")
	if series.Location() != "clickhouse://coinpull.market_history" {
		t.Fatalf("unexpected location %q", series.Location())
	}
	ddl := series.SchemaStatements()
	if len(ddl) != 2 || !strings.Contains(ddl[0], "coinpull.market_history (") || !strings.Contains(ddl[1], "coinpull.market_history_staging (") {
		t.Fatalf("unexpected series ddl: %v", ddl)
	}
	if !strings.Contains(ddl[0], "ReplacingMergeTree(ingested_at)") {
		t.Fatalf("series must collapse duplicates by ingestion stamp")
	}

	gold := NewClickHouseGoldSink(ch, "market_summary")
	gddl := gold.SchemaStatements()
	if !strings.Contains(gddl[0], "volatility_7d Nullable(Decimal(38, 2))") {
		t.Fatalf("volatility must be nullable: %s", gddl[0])
	}
}

func TestSeriesStampIncreases(t *testing.T) {
	s := NewClickHouseSeriesStore(pkgch.NewFromDB(nil, ""), "t")
	a, b := s.stamp(), s.stamp()
	if b <= a {
		t.Fatalf("stamps must increase: %d then %d", a, b)
	}
}

func TestSeriesVersionReadsCollapsedTable(t *testing.T) {
	s := NewClickHouseSeriesStore(pkgch.NewFromDB(nil, "coinpull"), "market_history")
	q := s.versionQuery()
	if !strings.HasSuffix(q, "FROM coinpull.market_history FINAL") {
		t.Fatalf("version must count the collapsed rows: %s", q)
	}
}
