package models

import (
	"sort"
	"time"
)

// FeatureSample is one aggregated observation for a (service, bucket).
// Samples are treated as read-only once built by the aggregator.
type FeatureSample struct {
	Service          string        `json:"service"`
	BucketStart      time.Time     `json:"bucket_start"`
	BucketWidth      time.Duration `json:"bucket_width"`
	RequestCount     int           `json:"request_count"`
	ErrorCount       int           `json:"error_count"`
	AuthFailureCount int           `json:"auth_failure_count"`
	P95LatencyMs     float64       `json:"p95_latency_ms"`
	DistinctSources  int           `json:"distinct_sources"`
	HashedSources    int           `json:"hashed_sources"`

	// AuthFailures holds authentication failure timestamps per hashed source,
	// including the carried-over tail of the previous bucket.
	AuthFailures map[string][]time.Time `json:"-"`
	// ErrorSignatures counts error events per structural signature hash.
	ErrorSignatures map[string]int `json:"-"`
	// Regions counts requests per origin region.
	Regions map[string]int `json:"-"`
}

func (s *FeatureSample) BucketEnd() time.Time {
	return s.BucketStart.Add(s.BucketWidth)
}

// ErrorRate returns error_count/request_count; ok is false for empty buckets.
func (s *FeatureSample) ErrorRate() (float64, bool) {
	if s.RequestCount == 0 {
		return 0, false
	}
	return float64(s.ErrorCount) / float64(s.RequestCount), true
}

// Value returns the sample's value for a baseline metric.
func (s *FeatureSample) Value(metric Metric) (float64, bool) {
	switch metric {
	case MetricRequestCount:
		return float64(s.RequestCount), true
	case MetricErrorRate:
		return s.ErrorRate()
	case MetricP95Latency:
		if s.RequestCount == 0 {
			return 0, false
		}
		return s.P95LatencyMs, true
	case MetricDistinctSources:
		return float64(s.DistinctSources), true
	}
	return 0, false
}

// Vector is the feature vector scored by the multivariate model.
func (s *FeatureSample) Vector() []float64 {
	rate, _ := s.ErrorRate()
	return []float64{
		float64(s.RequestCount),
		rate,
		s.P95LatencyMs,
		float64(s.DistinctSources),
		float64(s.AuthFailureCount),
	}
}

// FeatureNames labels the entries of Vector.
var FeatureNames = []string{"request_count", "error_rate", "p95_latency_ms", "distinct_sources", "auth_failures"}

func (s *FeatureSample) SortedSignatures() []string {
	return sortedKeys(s.ErrorSignatures)
}

func (s *FeatureSample) SortedRegions() []string {
	return sortedKeys(s.Regions)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
