package clickhouse

import (
	"testing"
	"time"
)

func TestBuildDSN(t *testing.T) {
	dsn := buildDSN(ClientConfig{
		Host:        "ch",
		Port:        9000,
		Database:    "coinpull",
		User:        "default",
		Password:    "secret",
		DialTimeout: 5 * time.Second,
		MaxExecTime: 60 * time.Second,
	})
	want := "clickhouse://default:secret@ch:9000/coinpull?dial_timeout=5s&max_execution_time=60"
	if dsn != want {
		t.Fatalf("dsn %s want %s", dsn, want)
	}
	if got := buildDSN(ClientConfig{Host: "ch", Port: 8123, UseHTTP: true}); got != "http://:@ch:8123/" {
		t.Fatalf("http dsn %s", got)
	}
}

func TestTableQualifies(t *testing.T) {
	if got := NewFromDB(nil, "coinpull").Table("market_history"); got != "coinpull.market_history" {
		t.Fatalf("unexpected table %s", got)
	}
	if got := NewFromDB(nil, "").Table("t"); got != "t" {
		t.Fatalf("unexpected table %s", got)
	}
}
