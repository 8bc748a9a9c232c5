package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CIRISAI/CIRISBridge/internal/metrics"
)

func newTestScheduler(mock *clock.Mock, opts ...Option) *Scheduler {
	return New(append([]Option{WithClock(mock), WithMetrics(metrics.New())}, opts...)...)
}

func TestScheduler_RunsOnInterval(t *testing.T) {
	mock := clock.NewMock()
	s := newTestScheduler(mock)

	var runs atomic.Int32
	require.NoError(t, s.Add(Task{Name: "ingest", Interval: time.Minute, Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}}))
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Equal(t, int32(0), runs.Load())
	mock.Add(time.Minute)
	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	mock.Add(time.Minute)
	assert.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestScheduler_RunOnStartAndTrigger(t *testing.T) {
	mock := clock.NewMock()
	s := newTestScheduler(mock)

	var runs atomic.Int32
	require.NoError(t, s.Add(Task{Name: "baseline", Interval: time.Hour, RunOnStart: true, Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}}))
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Trigger("baseline"))
	assert.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, s.Trigger("nope"), ErrUnknownTask)
}

func TestScheduler_NoOverlap(t *testing.T) {
	mock := clock.NewMock()
	s := newTestScheduler(mock)

	release := make(chan struct{})
	var active, maxActive, runs atomic.Int32
	require.NoError(t, s.Add(Task{Name: "slow", Interval: time.Minute, Timeout: time.Hour, Run: func(context.Context) error {
		n := active.Add(1)
		if n > maxActive.Load() {
			maxActive.Store(n)
		}
		runs.Add(1)
		<-release
		active.Add(-1)
		return nil
	}}))
	require.NoError(t, s.Start(context.Background()))

	mock.Add(time.Minute)
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	// Ticks while the run is in progress collapse into at most one more run.
	for i := 0; i < 5; i++ {
		mock.Add(time.Minute)
	}
	close(release)

	assert.Eventually(t, func() bool { return active.Load() == 0 }, time.Second, 5*time.Millisecond)
	s.Stop()

	assert.Equal(t, int32(1), maxActive.Load())
	assert.LessOrEqual(t, runs.Load(), int32(2))
}

func TestScheduler_FailureIsolationAndStatus(t *testing.T) {
	mock := clock.NewMock()

	var mu sync.Mutex
	results := map[string][]error{}
	s := newTestScheduler(mock, WithResultHook(func(_ context.Context, task string, err error) {
		mu.Lock()
		defer mu.Unlock()
		results[task] = append(results[task], err)
	}))

	var healthy atomic.Int32
	require.NoError(t, s.Add(Task{Name: "broken", Interval: time.Minute, Run: func(context.Context) error {
		return errors.New("boom")
	}}))
	require.NoError(t, s.Add(Task{Name: "healthy", Interval: time.Minute, Run: func(context.Context) error {
		healthy.Add(1)
		return nil
	}}))
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	mock.Add(time.Minute)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(results["broken"]) == 1 && len(results["healthy"]) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), healthy.Load())

	status := s.Status()
	require.Len(t, status, 2)
	assert.Equal(t, "broken", status[0].Name)
	assert.Equal(t, 1, status[0].Failures)
	assert.Equal(t, "boom", status[0].LastError)
	assert.Equal(t, "healthy", status[1].Name)
	assert.Equal(t, 0, status[1].Failures)
	assert.False(t, status[1].LastSuccess.IsZero())
}

func TestScheduler_TimeoutCancelsRun(t *testing.T) {
	mock := clock.NewMock()
	s := newTestScheduler(mock)

	errs := make(chan error, 1)
	started := make(chan struct{})
	require.NoError(t, s.Add(Task{Name: "stuck", Interval: time.Hour, Timeout: time.Second, RunOnStart: true, Run: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		errs <- ctx.Err()
		return ctx.Err()
	}}))
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	<-started
	mock.Add(2 * time.Second)

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("run was not cancelled at its timeout")
	}
}

func TestScheduler_StopWaitsForRunningTask(t *testing.T) {
	mock := clock.NewMock()
	s := newTestScheduler(mock)

	started := make(chan struct{})
	var finished atomic.Bool
	require.NoError(t, s.Add(Task{Name: "flush", Interval: time.Hour, RunOnStart: true, Run: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
		return nil
	}}))
	require.NoError(t, s.Start(context.Background()))

	<-started
	s.Stop()
	assert.True(t, finished.Load())

	assert.ErrorIs(t, s.Add(Task{Name: "late", Interval: time.Minute, Run: func(context.Context) error { return nil }}), ErrAlreadyStarted)
}

func TestScheduler_AddValidation(t *testing.T) {
	s := New()
	assert.Error(t, s.Add(Task{Name: "x", Interval: time.Minute}))
	assert.Error(t, s.Add(Task{Name: "x", Run: func(context.Context) error { return nil }}))
	require.NoError(t, s.Add(Task{Name: "x", Interval: time.Minute, Run: func(context.Context) error { return nil }}))
	assert.Error(t, s.Add(Task{Name: "x", Interval: time.Minute, Run: func(context.Context) error { return nil }}))
}
