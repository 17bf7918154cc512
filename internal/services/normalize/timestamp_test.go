package normalize

import (
	"errors"
	"testing"
	"time"

	"CoinPull/internal/domain/models"
)

func TestParseTimestampLayouts(t *testing.T) {
	want := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	cases := []string{
		"raw_2025-01-02_030405.json",
		"data/bronze/raw_2025-01-02_030405.json",
		"raw_prices_20250102_030405.json",
		"raw_data/raw_prices_20250102_030405.json",
		"processed/raw_prices_20250102_030405.parquet",
	}
	for _, src := range cases {
		got, err := ParseTimestamp(src)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", src, err)
		}
		if !got.Equal(want) || got.Location() != time.UTC {
			t.Fatalf("%s: got %v", src, got)
		}
	}
}

func TestParseTimestampRejects(t *testing.T) {
	cases := []string{
		"raw_prices.json",
		"raw_2025-13-02_030405.json",
		"raw_20250230_030405.json",
		"raw_2025-01-02_250405.json",
		"raw_2025-0102_030405.json",
		"raw_120250102_030405.json",
		"raw_20250102_0304051.json",
		"",
	}
	for _, src := range cases {
		_, err := ParseTimestamp(src)
		var tpe *models.TimestampParseError
		if !errors.As(err, &tpe) {
			t.Fatalf("%q: expected TimestampParseError, got %v", src, err)
		}
		if tpe.Source != src {
			t.Fatalf("%q: source not carried: %q", src, tpe.Source)
		}
	}
}

func TestObjectNameRoundTrip(t *testing.T) {
	ts := time.Date(2024, 12, 31, 23, 59, 58, 0, time.FixedZone("X", 7*3600))
	for _, layout := range []string{LayoutCompact, LayoutDashed} {
		name := ObjectName("raw_data/raw_prices_", ts, layout)
		got, err := ParseTimestamp(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if !got.Equal(ts) {
			t.Fatalf("%s: got %v want %v", name, got, ts.UTC())
		}
	}
	if got := ObjectName("raw_", time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), LayoutDashed); got != "raw_2025-01-02_030405.json" {
		t.Fatalf("unexpected dashed name %s", got)
	}
}
