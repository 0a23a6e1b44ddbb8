package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func TestSchedulerNextRunSameDay(t *testing.T) {
	s := New(func(ctx context.Context) error { return nil }, "06:00", "UTC", nil, nil)

	now := time.Date(2026, 3, 2, 4, 30, 0, 0, time.UTC)
	next, err := s.NextRun(now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC), next)
}

func TestSchedulerNextRunRollsToTomorrow(t *testing.T) {
	s := New(func(ctx context.Context) error { return nil }, "06:00", "UTC", nil, nil)

	now := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)
	next, err := s.NextRun(now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 3, 6, 0, 0, 0, time.UTC), next)
}

func TestSchedulerNextRunHonoursTimezone(t *testing.T) {
	s := New(func(ctx context.Context) error { return nil }, "06:00", "Asia/Jakarta", nil, nil)

	// 06:00 Jakarta is 23:00 UTC the previous day.
	now := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	next, err := s.NextRun(now)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02T06:00:00+07:00", next.Format(time.RFC3339))
}

func TestSchedulerNextRunInvalidTime(t *testing.T) {
	s := New(func(ctx context.Context) error { return nil }, "25:99", "UTC", nil, nil)
	_, err := s.NextRun(time.Now())
	require.Error(t, err)
}

func TestSchedulerRunNowSingleFlight(t *testing.T) {
	release := make(chan struct{})
	running := make(chan struct{})
	var runningOnce sync.Once
	s := New(func(ctx context.Context) error {
		runningOnce.Do(func() { close(running) })
		<-release
		return nil
	}, "06:00", "UTC", fixedClock{now: time.Now()}, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		require.NoError(t, s.RunNow(context.Background()))
	}()

	<-running
	err := s.RunNow(context.Background())
	require.Error(t, err, "overlapping run must be rejected")

	close(release)
	wg.Wait()

	// Once the first run finishes a new one is accepted.
	require.NoError(t, s.RunNow(context.Background()))
}
