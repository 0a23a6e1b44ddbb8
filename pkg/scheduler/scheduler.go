package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// Task is the unit of scheduled work.
type Task func(ctx context.Context) error

// Scheduler fires a task once per day at a fixed local time. Overlapping
// invocations are rejected by a single-flight guard so a slow scan can never
// race a newly triggered one on its dedup checks.
type Scheduler struct {
	task     Task
	at       string // HH:MM
	location *time.Location
	clock    Clock
	logger   *zap.Logger

	running int32
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// New builds a daily scheduler. at is "HH:MM" in the given timezone; an
// unknown timezone falls back to UTC.
func New(task Task, at, timezone string, clock Clock, logger *zap.Logger) *Scheduler {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	location, err := time.LoadLocation(timezone)
	if err != nil {
		location = time.UTC
	}
	return &Scheduler{task: task, at: at, location: location, clock: clock, logger: logger}
}

// Start launches the trigger loop. Safe to call once.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Sugar().Infow("scheduler started", "at", s.at, "timezone", s.location.String())
}

// Stop cancels the trigger loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
}

// RunNow executes the task immediately unless one is already in flight.
func (s *Scheduler) RunNow(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return fmt.Errorf("task already running")
	}
	defer atomic.StoreInt32(&s.running, 0)
	return s.task(ctx)
}

// NextRun computes the next trigger time after now.
func (s *Scheduler) NextRun(now time.Time) (time.Time, error) {
	parsed, err := time.Parse("15:04", s.at)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid schedule time %q: %w", s.at, err)
	}
	local := now.In(s.location)
	next := time.Date(local.Year(), local.Month(), local.Day(), parsed.Hour(), parsed.Minute(), 0, 0, s.location)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next, nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	for {
		next, err := s.NextRun(s.clock.Now())
		if err != nil {
			s.logger.Sugar().Errorw("scheduler disabled", "error", err)
			return
		}
		timer := time.NewTimer(next.Sub(s.clock.Now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if err := s.RunNow(ctx); err != nil {
				s.logger.Sugar().Warnw("scheduled task skipped or failed", "error", err)
			}
		}
	}
}
