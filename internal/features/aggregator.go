package features

import (
	"sort"
	"time"

	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

// Aggregator turns raw events into one FeatureSample per (service, bucket).
type Aggregator struct {
	hasher *Hasher
}

func NewAggregator(hasher *Hasher) *Aggregator {
	if hasher == nil {
		hasher = NewHasher("", 0, false)
	}
	return &Aggregator{hasher: hasher}
}

type bucketAcc struct {
	sample    *models.FeatureSample
	latencies []float64
	raw       map[string]struct{}
	hashed    map[string]struct{}
}

// Aggregate buckets events in [from, to) by width. from must be aligned to
// width. Every service seen in events or listed in known gets a sample for
// every bucket, so a quiet service shows up as a zero-count sample. Samples
// are ordered by bucket start, then service.
func (a *Aggregator) Aggregate(events []models.RawEvent, from, to time.Time, width time.Duration, known []string) []*models.FeatureSample {
	if width <= 0 || !to.After(from) {
		return nil
	}

	services := make(map[string]struct{}, len(known))
	for _, s := range known {
		services[s] = struct{}{}
	}

	accs := make(map[time.Time]map[string]*bucketAcc)
	for _, e := range events {
		if e.Timestamp.Before(from) || !e.Timestamp.Before(to) || e.Service == "" {
			continue
		}
		services[e.Service] = struct{}{}

		start := from.Add(e.Timestamp.Sub(from) / width * width)
		byService, ok := accs[start]
		if !ok {
			byService = make(map[string]*bucketAcc)
			accs[start] = byService
		}
		acc, ok := byService[e.Service]
		if !ok {
			acc = newBucketAcc(e.Service, start, width)
			byService[e.Service] = acc
		}
		a.add(acc, e)
	}

	names := make([]string, 0, len(services))
	for s := range services {
		names = append(names, s)
	}
	sort.Strings(names)

	var samples []*models.FeatureSample
	for start := from; start.Before(to); start = start.Add(width) {
		for _, service := range names {
			acc, ok := accs[start][service]
			if !ok {
				samples = append(samples, newBucketAcc(service, start, width).finish())
				continue
			}
			samples = append(samples, acc.finish())
		}
	}
	return samples
}

func newBucketAcc(service string, start time.Time, width time.Duration) *bucketAcc {
	return &bucketAcc{
		sample: &models.FeatureSample{
			Service:         service,
			BucketStart:     start,
			BucketWidth:     width,
			AuthFailures:    make(map[string][]time.Time),
			ErrorSignatures: make(map[string]int),
			Regions:         make(map[string]int),
		},
		raw:    make(map[string]struct{}),
		hashed: make(map[string]struct{}),
	}
}

func (a *Aggregator) add(acc *bucketAcc, e models.RawEvent) {
	s := acc.sample
	s.RequestCount++
	acc.latencies = append(acc.latencies, e.LatencyMs)

	hashed := a.hasher.Hash(e.SourceID)
	if e.SourceID != "" {
		acc.raw[e.SourceID] = struct{}{}
		acc.hashed[hashed] = struct{}{}
	}

	if e.IsError() {
		s.ErrorCount++
		if sig, ok := Signature(e); ok {
			s.ErrorSignatures[sig]++
		}
	}
	if e.IsAuthFailure() {
		s.AuthFailureCount++
		s.AuthFailures[hashed] = append(s.AuthFailures[hashed], e.Timestamp)
	}
	if e.Region != "" {
		s.Regions[e.Region]++
	}
}

func (acc *bucketAcc) finish() *models.FeatureSample {
	s := acc.sample
	s.P95LatencyMs = Percentile(acc.latencies, 95)
	s.DistinctSources = len(acc.raw)
	s.HashedSources = len(acc.hashed)
	for _, ts := range s.AuthFailures {
		sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })
	}
	return s
}

// AuthTail carries authentication failures from the trailing window of one
// bucket into the next bucket of the same service, so a burst that straddles
// a bucket boundary is still seen as one burst.
type AuthTail struct {
	window time.Duration
	tails  map[string]map[string][]time.Time
}

func NewAuthTail(window time.Duration) *AuthTail {
	return &AuthTail{window: window, tails: make(map[string]map[string][]time.Time)}
}

// Apply must be called for samples in bucket order.
func (t *AuthTail) Apply(s *models.FeatureSample) {
	if t.window <= 0 {
		return
	}

	if prev, ok := t.tails[s.Service]; ok {
		cutoff := s.BucketStart.Add(-t.window)
		for source, ts := range prev {
			var carried []time.Time
			for _, at := range ts {
				if !at.Before(cutoff) && at.Before(s.BucketStart) {
					carried = append(carried, at)
				}
			}
			if len(carried) > 0 {
				s.AuthFailures[source] = append(carried, s.AuthFailures[source]...)
			}
		}
	}

	next := make(map[string][]time.Time)
	cutoff := s.BucketEnd().Add(-t.window)
	for source, ts := range s.AuthFailures {
		for _, at := range ts {
			if !at.Before(cutoff) {
				next[source] = append(next[source], at)
			}
		}
	}
	if len(next) == 0 {
		delete(t.tails, s.Service)
		return
	}
	t.tails[s.Service] = next
}
