package outlier

import (
	"sort"
	"time"

	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

type serviceModel struct {
	forest    *Forest
	threshold float64
	samples   int
}

// Model holds one trained forest per service and the score threshold each
// service's candidates must exceed. It is immutable once trained.
type Model struct {
	TrainedAt  time.Time
	Percentile float64
	services   map[string]serviceModel
}

// ServiceInfo describes one service's trained forest.
type ServiceInfo struct {
	Service   string  `json:"service"`
	Samples   int     `json:"samples"`
	Threshold float64 `json:"threshold"`
}

func (m *Model) Services() []ServiceInfo {
	out := make([]ServiceInfo, 0, len(m.services))
	for name, sm := range m.services {
		out = append(out, ServiceInfo{Service: name, Samples: sm.samples, Threshold: sm.threshold})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Service < out[j].Service })
	return out
}

// Evaluate scores the sample's feature vector. It returns nil when the
// service has no forest or the score does not exceed the threshold.
func (m *Model) Evaluate(s *models.FeatureSample) (*models.Candidate, error) {
	sm, ok := m.services[s.Service]
	if !ok || sm.threshold <= 0 {
		return nil, nil
	}

	vec := s.Vector()
	score := sm.forest.Score(vec)
	if score <= sm.threshold {
		return nil, nil
	}

	features := make(map[string]any, len(vec))
	for i, name := range models.FeatureNames {
		features[name] = vec[i]
	}

	return &models.Candidate{
		RuleID:     models.RuleMultivariateOutlier,
		Service:    s.Service,
		Severity:   models.RuleMultivariateOutlier.Severity(),
		Score:      score / sm.threshold,
		DetectedAt: s.BucketEnd(),
		Metadata: map[string]any{
			"observed":         score,
			"threshold":        sm.threshold,
			"percentile":       m.Percentile,
			"features":         features,
			"training_samples": sm.samples,
			"bucket_start":     s.BucketStart.UTC().Format(time.RFC3339),
		},
	}, nil
}
