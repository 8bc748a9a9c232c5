package source

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CIRISAI/CIRISBridge/internal/resilience"
	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type flakySource struct {
	*MemorySource
	failures int32
	calls    int32
}

func (f *flakySource) Fetch(ctx context.Context, from, to time.Time) ([]models.RawEvent, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= atomic.LoadInt32(&f.failures) {
		return nil, errors.New("connection refused")
	}
	return f.MemorySource.Fetch(ctx, from, to)
}

func TestMemorySource_HalfOpenRange(t *testing.T) {
	s := NewMemorySource(
		models.RawEvent{Timestamp: t0, Service: "api"},
		models.RawEvent{Timestamp: t0.Add(59 * time.Second), Service: "api"},
		models.RawEvent{Timestamp: t0.Add(time.Minute), Service: "api"},
	)

	events, err := s.Fetch(context.Background(), t0, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestResilientSource_RetriesThenSucceeds(t *testing.T) {
	inner := &flakySource{MemorySource: NewMemorySource(models.RawEvent{Timestamp: t0, Service: "api"}), failures: 2}
	s := NewResilientSource(ResilientSourceConfig{
		Source:        inner,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
		MaxFailures:   5,
	})

	events, err := s.Fetch(context.Background(), t0, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&inner.calls))
	assert.Equal(t, resilience.StateClosed, s.CircuitState())
}

func TestResilientSource_WrapsFailureAndOpensCircuit(t *testing.T) {
	inner := NewMemorySource()
	inner.SetFailure(errors.New("timeout"))
	s := NewResilientSource(ResilientSourceConfig{
		Source:        inner,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
		MaxFailures:   2,
		BreakerReset:  time.Hour,
	})

	for i := 0; i < 2; i++ {
		_, err := s.Fetch(context.Background(), t0, t0.Add(time.Minute))
		assert.ErrorIs(t, err, models.ErrSourceUnavailable)
	}
	assert.Equal(t, resilience.StateOpen, s.CircuitState())

	fetches := inner.Fetches()
	_, err := s.Fetch(context.Background(), t0, t0.Add(time.Minute))
	assert.ErrorIs(t, err, models.ErrSourceUnavailable)
	assert.Contains(t, err.Error(), resilience.ErrCircuitOpen.Error())
	assert.Equal(t, fetches, inner.Fetches())
}

func TestResilientSource_BoundsEachAttempt(t *testing.T) {
	blocking := &blockingSource{}
	s := NewResilientSource(ResilientSourceConfig{
		Source:        blocking,
		RetryAttempts: 1,
		Timeout:       20 * time.Millisecond,
	})

	start := time.Now()
	_, err := s.Fetch(context.Background(), t0, t0.Add(time.Minute))
	assert.ErrorIs(t, err, models.ErrSourceUnavailable)
	assert.Less(t, time.Since(start), time.Second)
}

type blockingSource struct{ MemorySource }

func (b *blockingSource) Fetch(ctx context.Context, _, _ time.Time) ([]models.RawEvent, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestHTTPSource_Fetch(t *testing.T) {
	var gotFrom string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/events":
			gotFrom = r.URL.Query().Get("from")
			_ = json.NewEncoder(w).Encode(eventsResponse{Events: []models.RawEvent{
				{Timestamp: t0.Add(time.Second), Service: "api", StatusCode: 200, SourceID: "10.0.0.1"},
				{Timestamp: t0.Add(time.Minute), Service: "api", StatusCode: 200, SourceID: "10.0.0.2"},
			}})
		case "/health":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	s := NewHTTPSource(HTTPSourceConfig{Endpoint: server.URL + "/"})

	events, err := s.Fetch(context.Background(), t0, t0.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "10.0.0.1", events[0].SourceID)
	assert.Equal(t, t0.Format(time.RFC3339Nano), gotFrom)

	assert.NoError(t, s.HealthCheck(context.Background()))
	assert.NoError(t, s.Close())
}

func TestHTTPSource_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{
			name: "non-200 status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("{not json"))
			},
			wantErr: ErrInvalidResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			_, err := NewHTTPSource(HTTPSourceConfig{Endpoint: server.URL}).Fetch(context.Background(), t0, t0.Add(time.Minute))
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
