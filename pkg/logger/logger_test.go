package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestWriterLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "info").With(String("run_id", "r1"))
	l.Debug("hidden")
	l.Info("snapshot processed", String("source", "raw_1.json"), Int("rows", 3), Bool("ok", true))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if entry["run_id"] != "r1" || entry["source"] != "raw_1.json" || entry["rows"] != float64(3) || entry["ok"] != true {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New(&Config{Level: "loud", Output: "stdout"}); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

type capturePublisher struct {
	mu    sync.Mutex
	calls int
	topic string
	n     int
}

func (c *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.topic = topic
	if logs, ok := payload.([]AggregatedLogEntry); ok {
		for _, e := range logs {
			c.n += e.Count
		}
	}
	return nil
}

func TestCollectorAggregatesErrors(t *testing.T) {
	pub := &capturePublisher{}
	l := NewWriter(&bytes.Buffer{}, "info")
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Topic: "coinpull.logs", Publisher: pub})
	for i := 0; i < 3; i++ {
		l.Error("publish failed", String("location", "gold"))
	}
	l.RemoveCollector()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if pub.calls != 1 || pub.topic != "coinpull.logs" || pub.n != 3 {
		t.Fatalf("unexpected publish calls=%d topic=%s count=%d", pub.calls, pub.topic, pub.n)
	}
}
