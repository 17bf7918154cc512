package normalize

import (
	"errors"
	"reflect"
	"testing"

	"CoinPull/internal/domain/models"
)

func snapshot(t *testing.T, source, body string) models.RawSnapshot {
	t.Helper()
	snap, err := models.DecodeSnapshot(source, []byte(body))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return snap
}

func TestNormalizeSchemaOrder(t *testing.T) {
	n := New(models.NewAssetSchema("bitcoin", "ethereum", "solana"), nil)
	body := `{
		"solana":   {"usd": 150.123, "usd_market_cap": 70000000000.555, "usd_24h_vol": 2000000000},
		"bitcoin":  {"usd": 67000.5, "usd_market_cap": 1320000000000, "usd_24h_vol": 30000000000.1, "usd_24h_change": -1.2},
		"ethereum": {"usd": "3500.999"}
	}`
	res, err := n.Normalize(snapshot(t, "raw_prices_20250102_030405.json", body))
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	var ids []string
	for _, r := range res.Rows {
		ids = append(ids, r.AssetID)
		if !r.RecordedAt.Equal(res.RecordedAt) {
			t.Fatalf("row %s has wrong timestamp %v", r.AssetID, r.RecordedAt)
		}
	}
	if !reflect.DeepEqual(ids, []string{"bitcoin", "ethereum", "solana"}) {
		t.Fatalf("unexpected order %v", ids)
	}
	if got := res.Rows[0].PriceUSD.StringFixed(2); got != "67000.50" {
		t.Fatalf("bitcoin price %s", got)
	}
	if got := res.Rows[1].PriceUSD.StringFixed(2); got != "3501.00" {
		t.Fatalf("ethereum price %s", got)
	}
	if res.Rows[1].MarketCap != nil || res.Rows[1].Volume24h != nil {
		t.Fatalf("expected nil optional fields for ethereum")
	}
	if got := res.Rows[2].PriceUSD.StringFixed(2); got != "150.12" {
		t.Fatalf("solana price %s", got)
	}
	if got := res.Rows[2].MarketCap.StringFixed(2); got != "70000000000.56" {
		t.Fatalf("solana market cap %s", got)
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	n := New(models.NewAssetSchema("bitcoin", "ethereum", "solana"), nil)
	body := `{"solana":{"usd":1},"ethereum":{"usd":2},"bitcoin":{"usd":3}}`
	first, _ := n.Normalize(snapshot(t, "raw_2025-01-02_030405.json", body))
	for i := 0; i < 20; i++ {
		again, _ := n.Normalize(snapshot(t, "raw_2025-01-02_030405.json", body))
		if !reflect.DeepEqual(first.Rows, again.Rows) {
			t.Fatalf("run %d produced different rows", i)
		}
	}
}

func TestNormalizeDropsUnknownAsset(t *testing.T) {
	n := New(models.NewAssetSchema("bitcoin", "ethereum"), nil)
	body := `{"bitcoin":{"usd":1},"dogecoin":{"usd":0.1},"ethereum":{"usd":2}}`
	res, err := n.Normalize(snapshot(t, "raw_2025-01-02_030405.json", body))
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(res.Rows))
	}
	if !reflect.DeepEqual(res.Dropped, []string{"dogecoin"}) {
		t.Fatalf("unexpected dropped %v", res.Dropped)
	}
}

func TestNormalizeRejectsSnapshotWithoutTimestamp(t *testing.T) {
	n := New(models.NewAssetSchema("bitcoin"), nil)
	res, err := n.Normalize(snapshot(t, "raw_latest.json", `{"bitcoin":{"usd":1}}`))
	var tpe *models.TimestampParseError
	if !errors.As(err, &tpe) {
		t.Fatalf("expected TimestampParseError, got %v", err)
	}
	if len(res.Rows) != 0 {
		t.Fatalf("expected no rows, got %d", len(res.Rows))
	}
}

func TestNormalizeRejectsOnlyBadAsset(t *testing.T) {
	n := New(models.NewAssetSchema("bitcoin", "ethereum", "solana", "cardano"), nil)
	body := `{
		"bitcoin":  {"usd": "n/a"},
		"ethereum": {"usd": 2, "usd_24h_vol": true},
		"solana":   {"usd": 3},
		"cardano":  {"usd": null}
	}`
	res, err := n.Normalize(snapshot(t, "raw_2025-01-02_030405.json", body))
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if len(res.Rows) != 1 || res.Rows[0].AssetID != "solana" {
		t.Fatalf("expected only solana, got %+v", res.Rows)
	}
	if len(res.Rejected) != 3 {
		t.Fatalf("expected 3 rejected rows, got %d", len(res.Rejected))
	}
	wantFields := []string{models.FieldPriceUSD, models.FieldVolume24h, models.FieldPriceUSD}
	for i, e := range res.Rejected {
		if e.Field != wantFields[i] {
			t.Fatalf("rejection %d: field %s want %s", i, e.Field, wantFields[i])
		}
	}
}

func TestNormalizeOverflow(t *testing.T) {
	n := New(models.NewAssetSchema("bitcoin"), nil)
	res, err := n.Normalize(snapshot(t, "raw_2025-01-02_030405.json", `{"bitcoin":{"usd":12345678901234567}}`))
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if len(res.Rows) != 0 || len(res.Rejected) != 1 {
		t.Fatalf("expected overflow rejection, got rows=%d rejected=%d", len(res.Rows), len(res.Rejected))
	}
	res, _ = n.Normalize(snapshot(t, "raw_2025-01-02_030405.json", `{"bitcoin":{"usd":9999999999999999.99}}`))
	if len(res.Rows) != 1 {
		t.Fatalf("max DECIMAL(18,2) should fit")
	}
}

func TestNormalizeFieldSelection(t *testing.T) {
	schema := models.AssetSchema{{ID: "bitcoin", Fields: []string{models.FieldPriceUSD}}}
	n := New(schema, nil)
	res, _ := n.Normalize(snapshot(t, "raw_2025-01-02_030405.json", `{"bitcoin":{"usd":1,"usd_market_cap":"bad"}}`))
	if len(res.Rows) != 1 || res.Rows[0].MarketCap != nil {
		t.Fatalf("undeclared field should be ignored: %+v", res)
	}
}

func TestDecodeSnapshotMalformed(t *testing.T) {
	_, err := models.DecodeSnapshot("raw_2025-01-02_030405.json", []byte(`[1,2`))
	var sce *models.SchemaCastError
	if !errors.As(err, &sce) || sce.Asset != "" {
		t.Fatalf("expected body-level SchemaCastError, got %v", err)
	}
}
