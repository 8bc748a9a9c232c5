package detector

import (
	"math"
	"sort"
	"time"

	"github.com/CIRISAI/CIRISBridge/internal/baseline"
	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

// Rule is one detection rule. The set of rules is closed: only the variants
// in this package implement it.
type Rule interface {
	ID() models.RuleID
	// Evaluate returns nil when the rule does not fire for the sample.
	Evaluate(s *models.FeatureSample, snap *baseline.Snapshot) (*models.Candidate, error)
	rule()
}

func newCandidate(id models.RuleID, s *models.FeatureSample, snap *baseline.Snapshot, score float64, meta map[string]any) *models.Candidate {
	meta["bucket_start"] = s.BucketStart.UTC().Format(time.RFC3339)
	meta["snapshot_version"] = snap.Version
	return &models.Candidate{
		RuleID:          id,
		Service:         s.Service,
		Severity:        id.Severity(),
		Score:           score,
		DetectedAt:      s.BucketEnd(),
		SnapshotVersion: snap.Version,
		Metadata:        meta,
	}
}

// sigmaBaseline returns the baseline for a sigma rule, or nil when it is
// missing, not yet confident or has no spread.
func sigmaBaseline(s *models.FeatureSample, snap *baseline.Snapshot, metric models.Metric, minSamples int) *models.Baseline {
	b, ok := snap.Lookup(s.Service, metric, s.BucketStart)
	if !ok || !b.Confident(minSamples) || b.StdDev <= 0 {
		return nil
	}
	return b
}

func baselineMeta(b *models.Baseline) map[string]any {
	return map[string]any{
		"baseline_mean":   b.Mean,
		"baseline_stddev": b.StdDev,
		"sample_count":    b.SampleCount,
	}
}

// ErrorRateSpike fires when the error rate is more than Sigma standard
// deviations above its baseline.
type ErrorRateSpike struct {
	Sigma      float64
	MinSamples int
}

func (ErrorRateSpike) rule() {}

func (ErrorRateSpike) ID() models.RuleID { return models.RuleErrorRateSpike }

func (r ErrorRateSpike) Evaluate(s *models.FeatureSample, snap *baseline.Snapshot) (*models.Candidate, error) {
	rate, ok := s.ErrorRate()
	if !ok {
		return nil, nil
	}
	b := sigmaBaseline(s, snap, models.MetricErrorRate, r.MinSamples)
	if b == nil {
		return nil, nil
	}

	z, _ := b.ZScore(rate)
	if z <= r.Sigma {
		return nil, nil
	}

	meta := baselineMeta(b)
	meta["observed"] = rate
	meta["error_count"] = s.ErrorCount
	meta["request_count"] = s.RequestCount
	meta["z_score"] = z
	meta["threshold_sigma"] = r.Sigma
	return newCandidate(r.ID(), s, snap, z/r.Sigma, meta), nil
}

// VolumeAnomaly fires on request counts above UpperSigma or below LowerSigma
// standard deviations from baseline. The bounds are independent.
type VolumeAnomaly struct {
	UpperSigma float64
	LowerSigma float64
	MinSamples int
}

func (VolumeAnomaly) rule() {}

func (VolumeAnomaly) ID() models.RuleID { return models.RuleVolumeAnomaly }

func (r VolumeAnomaly) Evaluate(s *models.FeatureSample, snap *baseline.Snapshot) (*models.Candidate, error) {
	b := sigmaBaseline(s, snap, models.MetricRequestCount, r.MinSamples)
	if b == nil {
		return nil, nil
	}

	observed := float64(s.RequestCount)
	z, _ := b.ZScore(observed)

	var direction string
	var k float64
	switch {
	case z > r.UpperSigma:
		direction, k = "spike", r.UpperSigma
	case z < -r.LowerSigma:
		direction, k = "drop", r.LowerSigma
	default:
		return nil, nil
	}

	meta := baselineMeta(b)
	meta["observed"] = s.RequestCount
	meta["z_score"] = z
	meta["direction"] = direction
	meta["threshold_sigma"] = k
	return newCandidate(r.ID(), s, snap, math.Abs(z)/k, meta), nil
}

// LatencyDegradation fires when p95 latency exceeds Ratio times the baseline
// mean.
type LatencyDegradation struct {
	Ratio float64
}

func (LatencyDegradation) rule() {}

func (LatencyDegradation) ID() models.RuleID { return models.RuleLatencyDegradation }

func (r LatencyDegradation) Evaluate(s *models.FeatureSample, snap *baseline.Snapshot) (*models.Candidate, error) {
	observed, ok := s.Value(models.MetricP95Latency)
	if !ok {
		return nil, nil
	}
	b, ok := snap.Lookup(s.Service, models.MetricP95Latency, s.BucketStart)
	if !ok || b.Mean <= 0 {
		return nil, nil
	}

	limit := r.Ratio * b.Mean
	if observed <= limit {
		return nil, nil
	}

	meta := baselineMeta(b)
	meta["observed"] = observed
	meta["threshold_ratio"] = r.Ratio
	meta["threshold"] = limit
	return newCandidate(r.ID(), s, snap, observed/limit, meta), nil
}

// AuthFailureBurst fires when one hashed source has more than Threshold
// authentication failures inside any Window. Only windows ending in the
// sample's own bucket count, so a burst carried over from the previous bucket
// is not reported twice.
type AuthFailureBurst struct {
	Threshold int
	Window    time.Duration
}

func (AuthFailureBurst) rule() {}

func (AuthFailureBurst) ID() models.RuleID { return models.RuleAuthFailureBurst }

func (r AuthFailureBurst) Evaluate(s *models.FeatureSample, snap *baseline.Snapshot) (*models.Candidate, error) {
	var (
		worstSource string
		worstCount  int
		worstFirst  time.Time
		worstLast   time.Time
		offenders   int
	)

	sources := make([]string, 0, len(s.AuthFailures))
	for src := range s.AuthFailures {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	for _, src := range sources {
		count, first, last := maxInWindow(s.AuthFailures[src], r.Window, s.BucketStart)
		if count <= r.Threshold {
			continue
		}
		offenders++
		if count > worstCount {
			worstSource, worstCount, worstFirst, worstLast = src, count, first, last
		}
	}
	if offenders == 0 {
		return nil, nil
	}

	meta := map[string]any{
		"source_hash":    worstSource,
		"observed":       worstCount,
		"threshold":      r.Threshold,
		"window_seconds": r.Window.Seconds(),
		"first_failure":  worstFirst.UTC().Format(time.RFC3339Nano),
		"last_failure":   worstLast.UTC().Format(time.RFC3339Nano),
		"offenders":      offenders,
	}
	return newCandidate(r.ID(), s, snap, float64(worstCount)/float64(r.Threshold), meta), nil
}

// maxInWindow finds the largest number of sorted timestamps that fit in a
// half-open window of the given length, considering only windows whose last
// timestamp is at or after from.
func maxInWindow(ts []time.Time, window time.Duration, from time.Time) (int, time.Time, time.Time) {
	var best int
	var first, last time.Time
	i := 0
	for j := range ts {
		for ts[j].Sub(ts[i]) >= window {
			i++
		}
		if ts[j].Before(from) {
			continue
		}
		if n := j - i + 1; n > best {
			best, first, last = n, ts[i], ts[j]
		}
	}
	return best, first, last
}

// NovelErrorPattern fires when an error signature never seen during the
// baseline window shows up for a service the baseline knows.
type NovelErrorPattern struct{}

func (NovelErrorPattern) rule() {}

func (NovelErrorPattern) ID() models.RuleID { return models.RuleNovelErrorPattern }

func (r NovelErrorPattern) Evaluate(s *models.FeatureSample, snap *baseline.Snapshot) (*models.Candidate, error) {
	if len(s.ErrorSignatures) == 0 || !snap.HasService(s.Service) {
		return nil, nil
	}

	var novel []string
	occurrences := 0
	for _, sig := range s.SortedSignatures() {
		if !snap.KnownSignature(s.Service, sig) {
			novel = append(novel, sig)
			occurrences += s.ErrorSignatures[sig]
		}
	}
	if len(novel) == 0 {
		return nil, nil
	}

	meta := map[string]any{
		"signatures":  novel,
		"observed":    len(novel),
		"occurrences": occurrences,
	}
	return newCandidate(r.ID(), s, snap, 1+0.1*float64(len(novel)-1), meta), nil
}

// GeographicAnomaly fires on requests from a region not seen during the
// baseline window. Services with no recorded regions are skipped.
type GeographicAnomaly struct{}

func (GeographicAnomaly) rule() {}

func (GeographicAnomaly) ID() models.RuleID { return models.RuleGeographicAnomaly }

func (r GeographicAnomaly) Evaluate(s *models.FeatureSample, snap *baseline.Snapshot) (*models.Candidate, error) {
	if len(s.Regions) == 0 || !snap.HasRegions(s.Service) {
		return nil, nil
	}

	var novel []string
	requests := 0
	for _, region := range s.SortedRegions() {
		if !snap.KnownRegion(s.Service, region) {
			novel = append(novel, region)
			requests += s.Regions[region]
		}
	}
	if len(novel) == 0 {
		return nil, nil
	}

	meta := map[string]any{
		"regions":  novel,
		"observed": len(novel),
		"requests": requests,
	}
	return newCandidate(r.ID(), s, snap, 1+0.1*float64(len(novel)-1), meta), nil
}
