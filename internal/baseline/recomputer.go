package baseline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/CIRISAI/CIRISBridge/internal/events"
	"github.com/CIRISAI/CIRISBridge/internal/features"
	"github.com/CIRISAI/CIRISBridge/internal/logger"
	"github.com/CIRISAI/CIRISBridge/internal/metrics"
	"github.com/CIRISAI/CIRISBridge/internal/storage"
	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

// Recomputer rebuilds the baseline snapshot from the trailing window of the
// metric source.
type Recomputer struct {
	history   *features.History
	store     *Store
	persist   storage.BaselineStore
	window    time.Duration
	clock     clock.Clock
	metrics   *metrics.Metrics
	publisher *events.Publisher

	// Recomputes never overlap; the scheduler and the API trigger share it.
	mu sync.Mutex
}

type RecomputerOption func(*Recomputer)

func WithClock(c clock.Clock) RecomputerOption {
	return func(r *Recomputer) { r.clock = c }
}

func WithMetrics(m *metrics.Metrics) RecomputerOption {
	return func(r *Recomputer) { r.metrics = m }
}

func WithPublisher(p *events.Publisher) RecomputerOption {
	return func(r *Recomputer) { r.publisher = p }
}

func NewRecomputer(history *features.History, store *Store, persist storage.BaselineStore, window time.Duration, opts ...RecomputerOption) *Recomputer {
	r := &Recomputer{
		history: history,
		store:   store,
		persist: persist,
		window:  window,
		clock:   clock.New(),
		metrics: metrics.Get(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type accumulator struct {
	loc        *time.Location
	stats      map[models.BaselineKey]*welford
	signatures map[string]map[string]struct{}
	regions    map[string]map[string]struct{}
	samples    int
}

func newAccumulator(loc *time.Location) *accumulator {
	return &accumulator{
		loc:        loc,
		stats:      make(map[models.BaselineKey]*welford),
		signatures: make(map[string]map[string]struct{}),
		regions:    make(map[string]map[string]struct{}),
	}
}

func (a *accumulator) add(s *models.FeatureSample) error {
	a.samples++
	local := s.BucketStart.In(a.loc)
	for _, metric := range models.AllMetrics() {
		v, ok := s.Value(metric)
		if !ok {
			continue
		}
		key := models.NewBaselineKey(s.Service, metric, local)
		w := a.stats[key]
		if w == nil {
			w = &welford{}
			a.stats[key] = w
		}
		w.add(v)
	}

	if _, ok := a.signatures[s.Service]; !ok {
		a.signatures[s.Service] = make(map[string]struct{})
	}
	for sig := range s.ErrorSignatures {
		a.signatures[s.Service][sig] = struct{}{}
	}
	for region := range s.Regions {
		if a.regions[s.Service] == nil {
			a.regions[s.Service] = make(map[string]struct{})
		}
		a.regions[s.Service][region] = struct{}{}
	}
	return nil
}

func (a *accumulator) snapshot(version int64, at time.Time, window time.Duration) *Snapshot {
	baselines := make([]models.Baseline, 0, len(a.stats))
	for key, w := range a.stats {
		baselines = append(baselines, models.Baseline{
			Key:         key,
			Mean:        w.mean,
			StdDev:      w.stddev(),
			SampleCount: w.n,
			ComputedAt:  at,
		})
	}
	return NewSnapshot(version, at, window, a.loc, baselines, fromSets(a.signatures), fromSets(a.regions))
}

// Recompute builds and publishes a new snapshot. On any failure the current
// snapshot stays in place.
func (r *Recomputer) Recompute(ctx context.Context) (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := r.clock.Now()
	to := models.TruncateTime(start, r.history.Width())
	from := to.Add(-r.window)

	acc := newAccumulator(r.store.Location())
	if err := r.history.Walk(ctx, from, to, acc.add); err != nil {
		return nil, fmt.Errorf("read baseline window: %w", err)
	}

	snap := acc.snapshot(r.store.Current().Version+1, start, r.window)
	if r.persist != nil {
		if err := r.persist.Replace(ctx, snap.ToSet()); err != nil {
			return nil, fmt.Errorf("persist baseline snapshot: %w", err)
		}
	}
	if err := r.store.Publish(snap); err != nil {
		return nil, err
	}

	r.metrics.SetBaselineSnapshot(snap.Version, snap.Len())
	r.publisher.BaselineRecomputed(snap.Version, snap.Len(), len(snap.Services()))
	logger.WithFields(logrus.Fields{
		"component": "baseline",
		"version":   snap.Version,
		"keys":      snap.Len(),
		"services":  len(snap.Services()),
		"samples":   acc.samples,
		"duration":  r.clock.Since(start).String(),
	}).Info("Baseline snapshot recomputed")

	return snap, nil
}
