// Package scheduler runs armsd's periodic maintenance: expiring the
// processed-event ledger and re-auditing the catalog against stored beliefs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// Task is one periodic job.
type Task struct {
	Name string

	// Every is the base interval between runs. Jitter adds up to that much
	// random delay on top so replicas sharing a store do not run in lockstep.
	Every  time.Duration
	Jitter time.Duration

	// RunAtStart runs the task once as soon as the scheduler starts.
	RunAtStart bool

	Run func(ctx context.Context) error
}

// Scheduler manages the task loops.
type Scheduler struct {
	tasks  []Task
	logger *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New validates tasks and creates a Scheduler. Nothing runs until Start.
func New(logger *slog.Logger, tasks ...Task) (*Scheduler, error) {
	seen := make(map[string]bool, len(tasks))
	for i, t := range tasks {
		switch {
		case t.Name == "":
			return nil, fmt.Errorf("task %d has no name", i)
		case seen[t.Name]:
			return nil, fmt.Errorf("duplicate task %q", t.Name)
		case t.Every <= 0:
			return nil, fmt.Errorf("task %q: interval must be positive", t.Name)
		case t.Jitter < 0:
			return nil, fmt.Errorf("task %q: jitter must not be negative", t.Name)
		case t.Run == nil:
			return nil, fmt.Errorf("task %q has no run func", t.Name)
		}
		seen[t.Name] = true
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		tasks:  tasks,
		logger: logger.With("component", "scheduler"),
		stopCh: make(chan struct{}),
	}, nil
}

// Start launches one loop per task.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting scheduler", "tasks", len(s.tasks))
	for _, t := range s.tasks {
		s.wg.Add(1)
		go s.loop(ctx, t)
	}
}

// Stop ends every loop and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping scheduler")
		close(s.stopCh)
	})
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, t Task) {
	defer s.wg.Done()

	if t.RunAtStart {
		s.run(ctx, t)
	}

	timer := time.NewTimer(calculateJitteredInterval(t.Every, t.Jitter))
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			s.run(ctx, t)
			timer.Reset(calculateJitteredInterval(t.Every, t.Jitter))
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) run(ctx context.Context, t Task) {
	logger := s.logger.With("task", t.Name)
	start := time.Now()
	err := t.Run(ctx)
	switch {
	case err == nil:
		logger.Debug("task finished", "duration", time.Since(start))
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		// Shutdown interrupted the run.
	default:
		logger.Error("task failed", "duration", time.Since(start), "error", err)
	}
}

// calculateJitteredInterval returns base plus a random duration in [0, jitter).
func calculateJitteredInterval(base, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return base
	}
	return base + time.Duration(rand.Int63n(jitter.Nanoseconds()))
}
