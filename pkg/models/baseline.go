package models

import (
	"fmt"
	"time"
)

type Metric string

const (
	MetricRequestCount    Metric = "request_count"
	MetricErrorRate       Metric = "error_rate"
	MetricP95Latency      Metric = "p95_latency_ms"
	MetricDistinctSources Metric = "distinct_sources"
)

func AllMetrics() []Metric {
	return []Metric{MetricRequestCount, MetricErrorRate, MetricP95Latency, MetricDistinctSources}
}

func ParseMetric(s string) (Metric, error) {
	for _, m := range AllMetrics() {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: unknown metric %q", ErrInvalidInput, s)
}

// BaselineKey identifies one (service, metric, hour-of-day, day-of-week) cell.
type BaselineKey struct {
	Service   string       `json:"service"`
	Metric    Metric       `json:"metric"`
	HourOfDay int          `json:"hour_of_day"`
	DayOfWeek time.Weekday `json:"day_of_week"`
}

func NewBaselineKey(service string, metric Metric, t time.Time) BaselineKey {
	return BaselineKey{
		Service:   service,
		Metric:    metric,
		HourOfDay: t.Hour(),
		DayOfWeek: t.Weekday(),
	}
}

func (k BaselineKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%02d", k.Service, k.Metric, k.DayOfWeek, k.HourOfDay)
}

type Baseline struct {
	Key         BaselineKey `json:"key"`
	Mean        float64     `json:"mean"`
	StdDev      float64     `json:"stddev"`
	SampleCount int         `json:"sample_count"`
	ComputedAt  time.Time   `json:"computed_at"`
}

// Confident reports whether enough samples back this baseline for sigma rules.
func (b *Baseline) Confident(minSamples int) bool {
	return b != nil && b.SampleCount >= minSamples
}

// ZScore returns (value-mean)/stddev; ok is false when stddev is zero.
func (b *Baseline) ZScore(value float64) (float64, bool) {
	if b == nil || b.StdDev <= 0 {
		return 0, false
	}
	return (value - b.Mean) / b.StdDev, true
}
