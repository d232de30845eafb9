// Package schedule runs bridge jobs on a fixed interval inside kbridge serve.
package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is one unit of periodic work. A returned error is logged; the next
// tick runs regardless.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Scheduler runs its jobs sequentially, once at start and then on every
// tick. Ticks that fire while a run is in progress are dropped.
type Scheduler struct {
	jobs     []Job
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler for the given jobs.
func New(interval time.Duration, logger *slog.Logger, jobs ...Job) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		jobs:     jobs,
		interval: interval,
		logger:   logger,
	}
}

// Start begins periodic execution. It returns immediately.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current run (if any) to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	for _, job := range s.jobs {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		if err := job.Run(ctx); err != nil {
			s.logger.Error("scheduled job failed", "job", job.Name, "err", err)
			continue
		}
		s.logger.Debug("scheduled job completed", "job", job.Name, "duration", time.Since(start))
	}
}
