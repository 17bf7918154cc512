package usecase

import (
	"context"
	"sync"
	"time"

	applogger "CoinPull/pkg/logger"
)

// Scheduler runs a job on a fixed interval until stopped. Ticks that arrive
// while a job is still running are dropped.
type Scheduler struct {
	interval time.Duration
	job      func(ctx context.Context) error
	l        *applogger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(interval time.Duration, job func(ctx context.Context) error, l *applogger.Logger) *Scheduler {
	if l == nil {
		l = applogger.Nop()
	}
	return &Scheduler{interval: interval, job: job, l: l}
}

// Start runs the job once immediately, then every interval.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		s.tick(ctx)
		for {
			select {
			case <-ticker.C:
				s.tick(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
	s.l.Info("scheduler started", applogger.Duration("interval", s.interval))
}

func (s *Scheduler) tick(ctx context.Context) {
	if err := s.job(ctx); err != nil && ctx.Err() == nil {
		s.l.Error("scheduled run failed", applogger.Error(err))
	}
}

// Stop cancels the running job and waits for the loop to exit.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
}
