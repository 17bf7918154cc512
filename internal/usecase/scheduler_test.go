package usecase

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerRunsImmediatelyAndStops(t *testing.T) {
	var n atomic.Int32
	s := NewScheduler(time.Hour, func(context.Context) error {
		n.Add(1)
		return nil
	}, nil)
	s.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for n.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()
	if n.Load() != 1 {
		t.Fatalf("expected one immediate run, got %d", n.Load())
	}
}
