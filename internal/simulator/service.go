package simulator

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

type ServiceConfig struct {
	Name string `json:"name"`
	// RequestsPerMinute is the base rate before the pattern is applied.
	RequestsPerMinute int      `json:"requests_per_minute"`
	ErrorRate         float64  `json:"error_rate"`
	LatencyMs         float64  `json:"latency_ms"`
	Sources           int      `json:"sources"`
	Regions           []string `json:"regions"`
	Pattern           string   `json:"pattern"`
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = 120
	}
	if c.ErrorRate < 0 || c.ErrorRate >= 1 {
		c.ErrorRate = 0.01
	}
	if c.LatencyMs <= 0 {
		c.LatencyMs = 40
	}
	if c.Sources <= 0 {
		c.Sources = 50
	}
	if len(c.Regions) == 0 {
		c.Regions = []string{"us-east-1", "eu-west-1"}
	}
	return c
}

var (
	endpoints    = []string{"/", "/login", "/search", "/checkout", "/items"}
	baselineErrs = []string{"db_timeout", "upstream_reset"}
)

const (
	incidentErrorCode = "dependency_unavailable"
	attackerSource    = "198.51.100.23"
)

// ServiceSim generates a reproducible request log for one service. The
// events of a minute depend only on the seed, the service and the minute, so
// fetching the same window twice returns the same events.
type ServiceSim struct {
	cfg       ServiceConfig
	seed      uint64
	pattern   Pattern
	incidents []Incident
	mu        sync.RWMutex
}

func NewServiceSim(cfg ServiceConfig, seed uint64) (*ServiceSim, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("service name required")
	}
	pattern, err := ParsePattern(cfg.Pattern)
	if err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	cfg.Pattern = pattern.Name()
	return &ServiceSim{cfg: cfg, seed: seed, pattern: pattern}, nil
}

func (s *ServiceSim) Name() string {
	return s.cfg.Name
}

func (s *ServiceSim) SetPattern(p Pattern) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pattern = p
	s.cfg.Pattern = p.Name()
}

func (s *ServiceSim) Inject(i Incident) (Incident, error) {
	i, err := i.withDefaults()
	if err != nil {
		return i, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incidents = append(s.incidents, i)
	return i, nil
}

// ClearIncidents drops incidents that ended before now.
func (s *ServiceSim) ClearIncidents(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.incidents[:0]
	for _, i := range s.incidents {
		if i.End().After(now) {
			kept = append(kept, i)
		}
	}
	removed := len(s.incidents) - len(kept)
	s.incidents = kept
	return removed
}

// Events returns the service's requests in [from, to), sorted by time.
func (s *ServiceSim) Events(from, to time.Time) []models.RawEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.RawEvent
	for minute := from.Truncate(time.Minute); minute.Before(to); minute = minute.Add(time.Minute) {
		for _, e := range s.minute(minute) {
			if !e.Timestamp.Before(from) && e.Timestamp.Before(to) {
				out = append(out, e)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func (s *ServiceSim) rng(minute time.Time) *rand.Rand {
	h := xxhash.Sum64String(fmt.Sprintf("%s/%d", s.cfg.Name, minute.Unix())) ^ s.seed
	return rand.New(rand.NewSource(int64(h)))
}

func (s *ServiceSim) active(minute time.Time) []Incident {
	var out []Incident
	for _, i := range s.incidents {
		if i.Active(minute) {
			out = append(out, i)
		}
	}
	return out
}

func (s *ServiceSim) minute(minute time.Time) []models.RawEvent {
	r := s.rng(minute)
	cfg := s.cfg

	errorRate := cfg.ErrorRate
	latency := cfg.LatencyMs
	var burst int
	var moved float64
	var newRegion string
	for _, i := range s.active(minute) {
		switch i.Kind {
		case IncidentErrorSpike:
			errorRate = i.Intensity
		case IncidentLatency:
			latency *= i.Intensity
		case IncidentAuthBurst:
			burst += int(i.Intensity)
		case IncidentNewRegion:
			moved, newRegion = i.Intensity, i.Region
		}
	}

	rate := float64(cfg.RequestsPerMinute) * s.pattern.Multiplier(minute)
	n := int(rate * (0.9 + 0.2*r.Float64()))

	events := make([]models.RawEvent, 0, n+burst)
	for k := 0; k < n; k++ {
		src := r.Intn(cfg.Sources)
		e := models.RawEvent{
			Timestamp:  minute.Add(time.Duration(r.Int63n(int64(time.Minute)))).UTC(),
			Service:    cfg.Name,
			StatusCode: 200,
			LatencyMs:  latency * (0.5 + r.ExpFloat64()*0.5),
			SourceID:   fmt.Sprintf("10.0.%d.%d", src/250, src%250+1),
			Endpoint:   endpoints[r.Intn(len(endpoints))],
			Region:     cfg.Regions[r.Intn(len(cfg.Regions))],
		}
		if r.Float64() < errorRate {
			e.StatusCode = 500
			if errorRate > cfg.ErrorRate {
				e.ErrorCode = incidentErrorCode
			} else {
				e.ErrorCode = baselineErrs[r.Intn(len(baselineErrs))]
			}
		}
		if newRegion != "" && r.Float64() < moved {
			e.Region = newRegion
		}
		events = append(events, e)
	}

	for k := 0; k < burst; k++ {
		events = append(events, models.RawEvent{
			Timestamp:  minute.Add(time.Duration(k) * time.Minute / time.Duration(burst)).UTC(),
			Service:    cfg.Name,
			StatusCode: 401,
			LatencyMs:  cfg.LatencyMs / 2,
			SourceID:   attackerSource,
			Endpoint:   "/login",
			Region:     cfg.Regions[0],
		})
	}
	return events
}

type ServiceStatus struct {
	ServiceConfig
	Incidents []Incident `json:"incidents"`
}

func (s *ServiceSim) Status() ServiceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	incidents := make([]Incident, len(s.incidents))
	copy(incidents, s.incidents)
	return ServiceStatus{ServiceConfig: s.cfg, Incidents: incidents}
}
