package kafka

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	applogger "CoinPull/pkg/logger"

	"github.com/segmentio/kafka-go"
)

func TestHookChainOrder(t *testing.T) {
	var calls []string
	mk := func(name string) ConsumerHook {
		return HookFuncs{
			Before: func(ctx context.Context, _ string, km kafka.Message, d []byte) (context.Context, kafka.Message, []byte, error) {
				calls = append(calls, "before:"+name)
				return ctx, km, d, nil
			},
			After: func(context.Context, string, kafka.Message, []byte, error) { calls = append(calls, "after:"+name) },
		}
	}
	chain := NewHookChain(mk("a"), nil, mk("b"))
	ctx, km, data, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, []byte("x"))
	if err != nil {
		t.Fatalf("before: %v", err)
	}
	chain.AfterHandle(ctx, "t", km, data, nil)
	want := "before:a,before:b,after:b,after:a"
	if got := strings.Join(calls, ","); got != want {
		t.Fatalf("order %s want %s", got, want)
	}
}

func TestHookChainPanicBecomesError(t *testing.T) {
	var notified error
	chain := NewHookChain(
		HookFuncs{Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
			panic("boom")
		}},
		HookFuncs{Err: func(_ context.Context, _ string, _ kafka.Message, _ []byte, err error) { notified = err }},
	)
	_, _, _, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
	var he *HookError
	if !errors.As(err, &he) || he.Code != "ERR_PANIC" {
		t.Fatalf("expected ERR_PANIC, got %v", err)
	}
	if notified == nil {
		t.Fatalf("OnError should be notified")
	}
}

func TestLoggingHookCarriesTraceID(t *testing.T) {
	var buf bytes.Buffer
	h := NewLoggingHook(applogger.NewWriter(&buf, "debug"))
	km := kafka.Message{Headers: []kafka.Header{{Key: TraceHeader, Value: []byte("run-1")}}}
	ctx, _, _, err := h.BeforeHandle(context.Background(), "objects", km, nil)
	if err != nil {
		t.Fatalf("before: %v", err)
	}
	if TraceID(ctx) != "run-1" {
		t.Fatalf("trace id not propagated")
	}
	h.AfterHandle(ctx, "objects", km, nil, nil)
	if !strings.Contains(buf.String(), `"trace_id":"run-1"`) {
		t.Fatalf("log line missing trace id: %s", buf.String())
	}
}
