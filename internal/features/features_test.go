package features

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CIRISAI/CIRISBridge/internal/source"
	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func TestHasher(t *testing.T) {
	h := NewHasher("secret", 16, true)

	a := h.Hash("10.0.0.1")
	assert.Len(t, a, 16)
	assert.Equal(t, a, h.Hash("10.0.0.1"))
	assert.NotEqual(t, a, h.Hash("10.0.0.2"))
	assert.NotContains(t, a, "10.0.0.1")

	other := NewHasher("other-key", 16, true)
	assert.NotEqual(t, a, other.Hash("10.0.0.1"))

	plain := NewHasher("secret", 16, false)
	assert.Equal(t, "10.0.0.1", plain.Hash("10.0.0.1"))
}

func TestSignature(t *testing.T) {
	base := models.RawEvent{Service: "api", StatusCode: 503, Endpoint: "/login", ErrorCode: "upstream_timeout"}

	sig, ok := Signature(base)
	require.True(t, ok)
	assert.Len(t, sig, 16)

	same := base
	same.SourceID = "10.0.0.9"
	same.LatencyMs = 900
	sig2, _ := Signature(same)
	assert.Equal(t, sig, sig2, "non-structural fields must not change the signature")

	changed := base
	changed.ErrorCode = "db_unavailable"
	sig3, _ := Signature(changed)
	assert.NotEqual(t, sig, sig3)

	_, ok = Signature(models.RawEvent{Service: "api", StatusCode: 404})
	assert.False(t, ok)
}

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		p      float64
		want   float64
	}{
		{"empty", nil, 95, 0},
		{"single", []float64{7}, 95, 7},
		{"twenty values", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20}, 95, 19},
		{"unsorted", []float64{50, 10, 40, 20, 30}, 50, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Percentile(tt.values, tt.p))
		})
	}
}

func TestAggregator_Aggregate(t *testing.T) {
	agg := NewAggregator(NewHasher("k", 16, true))

	events := []models.RawEvent{
		{Timestamp: t0.Add(1 * time.Second), Service: "api", StatusCode: 200, LatencyMs: 10, SourceID: "a", Region: "eu"},
		{Timestamp: t0.Add(2 * time.Second), Service: "api", StatusCode: 500, LatencyMs: 20, SourceID: "b", Endpoint: "/x"},
		{Timestamp: t0.Add(3 * time.Second), Service: "api", StatusCode: 401, LatencyMs: 30, SourceID: "a"},
		{Timestamp: t0.Add(70 * time.Second), Service: "web", StatusCode: 200, LatencyMs: 5, SourceID: "c"},
		{Timestamp: t0.Add(2 * time.Minute), Service: "api", StatusCode: 200, LatencyMs: 5, SourceID: "c"},
	}

	samples := agg.Aggregate(events, t0, t0.Add(2*time.Minute), time.Minute, []string{"billing"})
	require.Len(t, samples, 6)

	// Bucket order first, then service name.
	assert.Equal(t, "api", samples[0].Service)
	assert.Equal(t, "billing", samples[1].Service)
	assert.Equal(t, "web", samples[2].Service)
	assert.Equal(t, t0.Add(time.Minute), samples[3].BucketStart)

	api := samples[0]
	assert.Equal(t, 3, api.RequestCount)
	assert.Equal(t, 1, api.ErrorCount)
	assert.Equal(t, 1, api.AuthFailureCount)
	assert.Equal(t, 2, api.DistinctSources)
	assert.Equal(t, 2, api.HashedSources)
	assert.Equal(t, 30.0, api.P95LatencyMs)
	assert.Len(t, api.ErrorSignatures, 1)
	assert.Equal(t, 1, api.Regions["eu"])
	rate, ok := api.ErrorRate()
	assert.True(t, ok)
	assert.InDelta(t, 1.0/3, rate, 1e-9)

	billing := samples[1]
	assert.Zero(t, billing.RequestCount)
	_, ok = billing.ErrorRate()
	assert.False(t, ok, "error rate is undefined for an empty bucket")

	for _, fail := range api.AuthFailures {
		require.Len(t, fail, 1)
	}
	_, raw := api.AuthFailures["a"]
	assert.False(t, raw, "auth failures are keyed by hashed source")

	apiSecond := samples[3]
	assert.Equal(t, "api", apiSecond.Service)
	assert.Zero(t, apiSecond.RequestCount, "the event at the end bound belongs to the next range")
	assert.Equal(t, 1, samples[5].RequestCount)
}

func TestAuthTail_CarriesBurstAcrossBoundary(t *testing.T) {
	tail := NewAuthTail(time.Minute)

	first := &models.FeatureSample{
		Service:     "api",
		BucketStart: t0,
		BucketWidth: time.Minute,
		AuthFailures: map[string][]time.Time{
			"h1": {t0.Add(10 * time.Second), t0.Add(50 * time.Second), t0.Add(55 * time.Second)},
		},
	}
	tail.Apply(first)

	second := &models.FeatureSample{
		Service:      "api",
		BucketStart:  t0.Add(time.Minute),
		BucketWidth:  time.Minute,
		AuthFailures: map[string][]time.Time{"h1": {t0.Add(65 * time.Second)}},
	}
	tail.Apply(second)

	assert.Equal(t, []time.Time{
		t0.Add(10 * time.Second),
		t0.Add(50 * time.Second),
		t0.Add(55 * time.Second),
		t0.Add(65 * time.Second),
	}, second.AuthFailures["h1"])

	third := &models.FeatureSample{
		Service:      "api",
		BucketStart:  t0.Add(3 * time.Minute),
		BucketWidth:  time.Minute,
		AuthFailures: map[string][]time.Time{},
	}
	tail.Apply(third)
	assert.Empty(t, third.AuthFailures["h1"], "failures older than the window are not carried")
}

func TestHistory_WalkInChunks(t *testing.T) {
	src := source.NewMemorySource()
	for i := 0; i < 6; i++ {
		src.Add(models.RawEvent{Timestamp: t0.Add(time.Duration(i) * time.Hour), Service: "api", StatusCode: 200})
	}
	src.Add(models.RawEvent{Timestamp: t0.Add(30 * time.Minute), Service: "web", StatusCode: 200})

	h := NewHistory(src, NewAggregator(nil), time.Hour, 2*time.Hour)

	var got []*models.FeatureSample
	err := h.Walk(context.Background(), t0.Add(5*time.Minute), t0.Add(6*time.Hour), func(s *models.FeatureSample) error {
		got = append(got, s)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, src.Fetches())

	// web is first seen in the first chunk and stays known afterwards.
	require.Len(t, got, 12)
	assert.Equal(t, t0, got[0].BucketStart)
	assert.Equal(t, "web", got[11].Service)
	assert.Zero(t, got[11].RequestCount)
}

func TestHistory_StopsOnFetchError(t *testing.T) {
	src := source.NewMemorySource()
	src.SetFailure(models.ErrSourceUnavailable)
	h := NewHistory(src, NewAggregator(nil), time.Hour, 6*time.Hour)

	err := h.Walk(context.Background(), t0, t0.Add(24*time.Hour), func(*models.FeatureSample) error { return nil })
	assert.ErrorIs(t, err, models.ErrSourceUnavailable)
	assert.Equal(t, 1, src.Fetches())
}
