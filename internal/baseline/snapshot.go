package baseline

import (
	"sort"
	"time"

	"github.com/CIRISAI/CIRISBridge/internal/storage"
	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

// Snapshot is an immutable, versioned set of baselines plus the signatures
// and regions observed during the baseline window. Readers never see a
// snapshot change after it has been published.
type Snapshot struct {
	Version    int64
	ComputedAt time.Time
	Window     time.Duration

	location   *time.Location
	baselines  map[models.BaselineKey]models.Baseline
	signatures map[string]map[string]struct{}
	regions    map[string]map[string]struct{}
	services   []string
}

// Empty returns the version-zero snapshot used before the first recompute.
func Empty(loc *time.Location) *Snapshot {
	return NewSnapshot(0, time.Time{}, 0, loc, nil, nil, nil)
}

func NewSnapshot(version int64, computedAt time.Time, window time.Duration, loc *time.Location,
	baselines []models.Baseline, signatures, regions map[string][]string) *Snapshot {
	if loc == nil {
		loc = time.UTC
	}

	s := &Snapshot{
		Version:    version,
		ComputedAt: computedAt,
		Window:     window,
		location:   loc,
		baselines:  make(map[models.BaselineKey]models.Baseline, len(baselines)),
		signatures: toSets(signatures),
		regions:    toSets(regions),
	}

	services := make(map[string]struct{})
	for _, b := range baselines {
		s.baselines[b.Key] = b
		services[b.Key.Service] = struct{}{}
	}
	for svc := range s.signatures {
		services[svc] = struct{}{}
	}
	for svc := range services {
		s.services = append(s.services, svc)
	}
	sort.Strings(s.services)
	return s
}

func toSets(in map[string][]string) map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{}, len(in))
	for svc, values := range in {
		set := make(map[string]struct{}, len(values))
		for _, v := range values {
			set[v] = struct{}{}
		}
		out[svc] = set
	}
	return out
}

// Lookup finds the baseline for the hour-of-day and day-of-week of t in the
// snapshot's time zone.
func (s *Snapshot) Lookup(service string, metric models.Metric, t time.Time) (*models.Baseline, bool) {
	b, ok := s.baselines[models.NewBaselineKey(service, metric, t.In(s.location))]
	if !ok {
		return nil, false
	}
	return &b, true
}

// HasService reports whether the service was seen during the baseline window.
func (s *Snapshot) HasService(service string) bool {
	i := sort.SearchStrings(s.services, service)
	return i < len(s.services) && s.services[i] == service
}

func (s *Snapshot) KnownSignature(service, signature string) bool {
	_, ok := s.signatures[service][signature]
	return ok
}

// HasRegions reports whether any region was recorded for the service.
func (s *Snapshot) HasRegions(service string) bool {
	return len(s.regions[service]) > 0
}

func (s *Snapshot) KnownRegion(service, region string) bool {
	_, ok := s.regions[service][region]
	return ok
}

// Services returns the services present in the snapshot, sorted. The slice
// must not be modified.
func (s *Snapshot) Services() []string {
	return s.services
}

func (s *Snapshot) Len() int {
	return len(s.baselines)
}

func (s *Snapshot) Location() *time.Location {
	return s.location
}

// Baselines returns every baseline, ordered by key.
func (s *Snapshot) Baselines() []models.Baseline {
	out := make([]models.Baseline, 0, len(s.baselines))
	for _, b := range s.baselines {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Key, out[j].Key
		if a.Service != b.Service {
			return a.Service < b.Service
		}
		if a.Metric != b.Metric {
			return a.Metric < b.Metric
		}
		if a.DayOfWeek != b.DayOfWeek {
			return a.DayOfWeek < b.DayOfWeek
		}
		return a.HourOfDay < b.HourOfDay
	})
	return out
}

func (s *Snapshot) ToSet() *storage.BaselineSet {
	return &storage.BaselineSet{
		Version:    s.Version,
		ComputedAt: s.ComputedAt,
		Window:     s.Window,
		Baselines:  s.Baselines(),
		Signatures: fromSets(s.signatures),
		Regions:    fromSets(s.regions),
	}
}

func FromSet(set *storage.BaselineSet, loc *time.Location) *Snapshot {
	return NewSnapshot(set.Version, set.ComputedAt, set.Window, loc, set.Baselines, set.Signatures, set.Regions)
}

func fromSets(in map[string]map[string]struct{}) map[string][]string {
	out := make(map[string][]string, len(in))
	for svc, set := range in {
		values := make([]string, 0, len(set))
		for v := range set {
			values = append(values, v)
		}
		sort.Strings(values)
		out[svc] = values
	}
	return out
}
