package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	c, err := Parse(nil)
	if err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if !reflect.DeepEqual(c.AssetIDs(), []string{"bitcoin", "ethereum", "solana"}) {
		t.Fatalf("unexpected default assets %v", c.AssetIDs())
	}
	if c.Gold.Window != 7 || c.Silver.Mode != "rewrite" || c.Provider.Timeout != 10*time.Second {
		t.Fatalf("unexpected defaults %+v %+v", c.Gold, c.Silver)
	}
	if c.Log.Level != "info" || c.Provider.Retry.Attempts != 3 {
		t.Fatalf("nested defaults not applied")
	}
}

func TestParseOverrides(t *testing.T) {
	y := []byte(`
environment: production
assets:
  - id: bitcoin
    fields: [usd, usd_market_cap]
  - id: cardano
silver:
  mode: append
gold:
  window: 14
`)
	c, err := Parse(y)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Environment != "production" || c.Silver.Mode != "append" || c.Gold.Window != 14 {
		t.Fatalf("overrides not applied: %+v", c)
	}
	if len(c.Assets) != 2 || c.Assets[1].ID != "cardano" || len(c.Assets[0].Fields) != 2 {
		t.Fatalf("unexpected assets %+v", c.Assets)
	}
}

func TestParseInvalid(t *testing.T) {
	cases := map[string]string{
		"bad mode":       "silver:\n  mode: upsert\n",
		"bad field":      "assets:\n  - id: bitcoin\n    fields: [eur]\n",
		"duplicate":      "assets:\n  - id: bitcoin\n  - id: bitcoin\n",
		"kafka brokers":  "kafka:\n  enabled: true\n",
		"ch backend":     "silver:\n  backend: clickhouse\n",
		"redis lease":    "lease:\n  backend: redis\n",
		"bad log format": "log:\n  format: xml\n",
	}
	for name, y := range cases {
		if _, err := Parse([]byte(y)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	c, _ := Parse(nil)
	env := map[string]string{
		"COINS":         "bitcoin, dogecoin",
		"KAFKA_BROKERS": "k1:9092,k2:9092",
		"HTTP_PORT":     "9090",
	}
	c.ApplyEnv(func(k string) string { return env[k] })
	if !reflect.DeepEqual(c.AssetIDs(), []string{"bitcoin", "dogecoin"}) {
		t.Fatalf("COINS not applied: %v", c.AssetIDs())
	}
	if !c.Kafka.Enabled || len(c.Kafka.Brokers) != 2 || c.Server.Port != 9090 {
		t.Fatalf("env overrides missing: %+v", c.Kafka)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate after env: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("environment: test\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil || c.Environment != "test" {
		t.Fatalf("load: %v %+v", err, c)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
