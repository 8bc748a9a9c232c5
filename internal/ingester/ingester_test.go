package ingester

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CIRISAI/CIRISBridge/internal/features"
	"github.com/CIRISAI/CIRISBridge/internal/metrics"
	"github.com/CIRISAI/CIRISBridge/internal/source"
	"github.com/CIRISAI/CIRISBridge/internal/storage/memory"
	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type recordingSink struct {
	mu      sync.Mutex
	buckets []time.Time
	samples []*models.FeatureSample
	fail    error
}

func (s *recordingSink) Process(_ context.Context, samples []*models.FeatureSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	for _, sample := range samples {
		if sample.Service == "api" {
			s.buckets = append(s.buckets, sample.BucketStart)
		}
		s.samples = append(s.samples, sample)
	}
	return nil
}

func eventEverySecond(from time.Time, d time.Duration) []models.RawEvent {
	var events []models.RawEvent
	for ts := from; ts.Before(from.Add(d)); ts = ts.Add(time.Second) {
		events = append(events, models.RawEvent{Timestamp: ts, Service: "api", StatusCode: 200, LatencyMs: 12, SourceID: "10.0.0.1"})
	}
	return events
}

func newTestIngester(src source.Source, wm WatermarkStore, sink Sink, mock *clock.Mock) *Ingester {
	return New(Config{
		Width:        time.Minute,
		MaxBacklog:   6 * time.Hour,
		ChunkBuckets: 10,
		AuthWindow:   time.Minute,
	}, src, features.NewAggregator(features.NewHasher("k", 16, true)), wm, sink,
		WithClock(mock), WithMetrics(metrics.New()))
}

func TestIngester_FirstRunProcessesLastCompleteBucket(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(t0.Add(5*time.Minute + 30*time.Second))

	src := source.NewMemorySource(eventEverySecond(t0, 10*time.Minute)...)
	sink := &recordingSink{}
	wm := NewWatermarkStore(memory.NewStateStore())
	ing := newTestIngester(src, wm, sink, mock)

	res, err := ing.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, t0.Add(4*time.Minute), res.From)
	assert.Equal(t, t0.Add(5*time.Minute), res.To)
	require.Len(t, sink.samples, 1)
	assert.Equal(t, 60, sink.samples[0].RequestCount)

	stored, ok, err := wm.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, t0.Add(5*time.Minute), stored)

	// A second tick inside the same bucket has nothing to do.
	res, err = ing.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, res.From, res.To)
	assert.Len(t, sink.samples, 1)
}

func TestIngester_SourceOutageKeepsWatermarkAndBackfills(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(t0)

	src := source.NewMemorySource(eventEverySecond(t0.Add(-time.Minute), 10*time.Minute)...)
	sink := &recordingSink{}
	state := memory.NewStateStore()
	wm := NewWatermarkStore(state)
	require.NoError(t, wm.Save(context.Background(), t0))
	ing := newTestIngester(src, wm, sink, mock)

	src.SetFailure(errors.New("connection refused"))
	for i := 1; i <= 3; i++ {
		mock.Set(t0.Add(time.Duration(i) * time.Minute))
		_, err := ing.Tick(context.Background())
		assert.ErrorIs(t, err, models.ErrSourceUnavailable)

		stored, _, _ := wm.Load(context.Background())
		assert.Equal(t, t0, stored, "watermark must not move while the source is down")
	}
	assert.NotEmpty(t, ing.Status().LastError)

	src.SetFailure(nil)
	mock.Set(t0.Add(4 * time.Minute))
	res, err := ing.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, t0, res.From)
	assert.Equal(t, t0.Add(4*time.Minute), res.To)
	assert.Equal(t, []time.Time{t0, t0.Add(time.Minute), t0.Add(2 * time.Minute), t0.Add(3 * time.Minute)}, sink.buckets)
	assert.Empty(t, ing.Status().LastError)
}

func TestIngester_RestartProcessesEachBucketExactlyOnce(t *testing.T) {
	mock := clock.NewMock()
	src := source.NewMemorySource(eventEverySecond(t0, 30*time.Minute)...)
	sink := &recordingSink{}
	state := memory.NewStateStore()
	require.NoError(t, NewWatermarkStore(state).Save(context.Background(), t0))

	first := newTestIngester(src, NewWatermarkStore(state), sink, mock)
	mock.Set(t0.Add(7*time.Minute + 10*time.Second))
	_, err := first.Tick(context.Background())
	require.NoError(t, err)

	// Process restarts: a fresh ingester over the same persisted state.
	mock.Set(t0.Add(25 * time.Minute))
	second := newTestIngester(src, NewWatermarkStore(state), sink, mock)
	_, err = second.Tick(context.Background())
	require.NoError(t, err)

	require.Len(t, sink.buckets, 25)
	for i, b := range sink.buckets {
		assert.Equal(t, t0.Add(time.Duration(i)*time.Minute), b, "bucket %d", i)
	}
}

func TestIngester_BoundsBacklog(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(t0.Add(48 * time.Hour))

	src := source.NewMemorySource()
	sink := &recordingSink{}
	wm := NewWatermarkStore(memory.NewStateStore())
	require.NoError(t, wm.Save(context.Background(), t0))
	ing := newTestIngester(src, wm, sink, mock)

	res, err := ing.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42*time.Hour, res.Skipped)
	assert.Equal(t, t0.Add(42*time.Hour), res.From)
	assert.Equal(t, t0.Add(48*time.Hour), res.To)
	assert.Equal(t, 36, src.Fetches(), "six hours in chunks of ten buckets")
}

func TestIngester_SinkFailureKeepsWatermark(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(t0.Add(3 * time.Minute))

	src := source.NewMemorySource(eventEverySecond(t0, 3*time.Minute)...)
	sink := &recordingSink{fail: errors.New("store down")}
	wm := NewWatermarkStore(memory.NewStateStore())
	require.NoError(t, wm.Save(context.Background(), t0))
	ing := newTestIngester(src, wm, sink, mock)

	_, err := ing.Tick(context.Background())
	require.Error(t, err)

	stored, _, _ := wm.Load(context.Background())
	assert.Equal(t, t0, stored)
}

func TestIngester_AuthBurstAcrossBucketBoundary(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(t0.Add(2 * time.Minute))

	var events []models.RawEvent
	for i := 0; i < 6; i++ {
		events = append(events, models.RawEvent{Timestamp: t0.Add(time.Duration(50+i) * time.Second), Service: "api", StatusCode: 401, SourceID: "1.2.3.4"})
		events = append(events, models.RawEvent{Timestamp: t0.Add(time.Duration(61+i) * time.Second), Service: "api", StatusCode: 401, SourceID: "1.2.3.4"})
	}
	src := source.NewMemorySource(events...)
	sink := &recordingSink{}
	wm := NewWatermarkStore(memory.NewStateStore())
	require.NoError(t, wm.Save(context.Background(), t0))
	ing := newTestIngester(src, wm, sink, mock)

	_, err := ing.Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, sink.samples, 2)

	second := sink.samples[1]
	assert.Equal(t, 6, second.AuthFailureCount)
	for _, ts := range second.AuthFailures {
		assert.Len(t, ts, 12, "the previous bucket's tail is carried over")
	}
}
