package app

import (
	"context"
	"sync"
	"time"

	"combolift/internal"
	"combolift/internal/errors"
)

// Scheduler triggers a job once at start and then on every interval.
// Ticks that arrive while the job is still running are dropped.
type Scheduler struct {
	interval time.Duration
	job      func(ctx context.Context)
	logger   *internal.Logger

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewScheduler builds a scheduler for job
func NewScheduler(interval time.Duration, job func(ctx context.Context)) *Scheduler {
	return &Scheduler{
		interval: interval,
		job:      job,
		logger:   internal.DefaultLogger.With("scheduler"),
	}
}

// RunAllJob adapts the service to the scheduler
func RunAllJob(svc *PatternSearchService) func(ctx context.Context) {
	return func(ctx context.Context) {
		reports, err := svc.RunAll(ctx)
		if err != nil {
			svc.logger.Error("scheduled run finished with errors: %v", err)
		}
		svc.logger.Info("scheduled run produced %d reports", len(reports))
	}
}

// Start launches the ticking goroutine; calling it twice is a no-op
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return errors.InvalidInput("schedule interval must be positive")
	}
	if s.job == nil {
		return errors.InvalidInput("scheduler has no job")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return nil
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go func(stop <-chan struct{}, done chan<- struct{}) {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.job(ctx)
		for {
			select {
			case <-ticker.C:
				s.job(ctx)
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}(s.stop, s.done)

	s.logger.Info("scheduled every %s", s.interval)
	return nil
}

// Stop halts the ticker and waits for a job in flight to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}
