package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/CIRISAI/CIRISBridge/internal/baseline"
	"github.com/CIRISAI/CIRISBridge/internal/logger"
	"github.com/CIRISAI/CIRISBridge/internal/metrics"
	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

type Config struct {
	Sigma                float64
	VolumeUpperSigma     float64
	VolumeLowerSigma     float64
	LatencyRatio         float64
	AuthFailureThreshold int
	AuthFailureWindow    time.Duration
	MinSamples           int
	EnableGeographicRule bool
}

// SnapshotSource hands out the current baseline snapshot.
type SnapshotSource interface {
	Current() *baseline.Snapshot
}

// Model scores a sample with the multivariate model. It returns nil when no
// model is loaded for the service or the sample is not an outlier.
type Model interface {
	Evaluate(s *models.FeatureSample) (*models.Candidate, error)
}

type Detector struct {
	rules     []Rule
	snapshots SnapshotSource
	model     Model
	weights   *Weights
	metrics   *metrics.Metrics
}

type Option func(*Detector)

func WithModel(m Model) Option {
	return func(d *Detector) { d.model = m }
}

func WithWeights(w *Weights) Option {
	return func(d *Detector) { d.weights = w }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Detector) { d.metrics = m }
}

func New(cfg Config, snapshots SnapshotSource, opts ...Option) *Detector {
	if cfg.Sigma == 0 {
		cfg.Sigma = 3.0
	}
	if cfg.VolumeUpperSigma == 0 {
		cfg.VolumeUpperSigma = 3.0
	}
	if cfg.VolumeLowerSigma == 0 {
		cfg.VolumeLowerSigma = 2.0
	}
	if cfg.LatencyRatio == 0 {
		cfg.LatencyRatio = 2.0
	}
	if cfg.AuthFailureThreshold == 0 {
		cfg.AuthFailureThreshold = 10
	}
	if cfg.AuthFailureWindow <= 0 {
		cfg.AuthFailureWindow = 60 * time.Second
	}
	if cfg.MinSamples == 0 {
		cfg.MinSamples = 30
	}

	rules := []Rule{
		ErrorRateSpike{Sigma: cfg.Sigma, MinSamples: cfg.MinSamples},
		VolumeAnomaly{UpperSigma: cfg.VolumeUpperSigma, LowerSigma: cfg.VolumeLowerSigma, MinSamples: cfg.MinSamples},
		LatencyDegradation{Ratio: cfg.LatencyRatio},
		AuthFailureBurst{Threshold: cfg.AuthFailureThreshold, Window: cfg.AuthFailureWindow},
		NovelErrorPattern{},
	}
	if cfg.EnableGeographicRule {
		rules = append(rules, GeographicAnomaly{})
	}

	d := &Detector{
		rules:     rules,
		snapshots: snapshots,
		weights:   NewWeights(),
		metrics:   metrics.Get(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Rules returns the registered rules in evaluation order.
func (d *Detector) Rules() []Rule {
	out := make([]Rule, len(d.rules))
	copy(out, d.rules)
	return out
}

func (d *Detector) Enabled(id models.RuleID) bool {
	if id == models.RuleMultivariateOutlier {
		return d.model != nil
	}
	for _, r := range d.rules {
		if r.ID() == id {
			return true
		}
	}
	return false
}

func (d *Detector) Weights() *Weights {
	return d.weights
}

// EvaluateAll runs Evaluate over samples against a single snapshot.
func (d *Detector) EvaluateAll(ctx context.Context, samples []*models.FeatureSample) []*models.Candidate {
	snap := d.snapshots.Current()
	var out []*models.Candidate
	for _, s := range samples {
		if ctx.Err() != nil {
			break
		}
		out = append(out, d.evaluate(s, snap)...)
	}
	return out
}

// Evaluate runs every rule and then the multivariate model on one sample.
// A failing rule is logged and counted and does not stop the others.
func (d *Detector) Evaluate(s *models.FeatureSample) []*models.Candidate {
	return d.evaluate(s, d.snapshots.Current())
}

func (d *Detector) evaluate(s *models.FeatureSample, snap *baseline.Snapshot) []*models.Candidate {
	var out []*models.Candidate

	for _, r := range d.rules {
		c, err := d.run(r.ID(), func() (*models.Candidate, error) { return r.Evaluate(s, snap) })
		if c != nil && err == nil {
			out = append(out, d.stamp(c))
		}
	}

	if d.model != nil {
		c, err := d.run(models.RuleMultivariateOutlier, func() (*models.Candidate, error) { return d.model.Evaluate(s) })
		if c != nil && err == nil {
			c.SnapshotVersion = snap.Version
			out = append(out, d.stamp(c))
		}
	}
	return out
}

func (d *Detector) run(id models.RuleID, eval func() (*models.Candidate, error)) (c *models.Candidate, err error) {
	d.metrics.IncRuleEvaluation(string(id))

	defer func() {
		if p := recover(); p != nil {
			c, err = nil, fmt.Errorf("%w: %s: panic: %v", models.ErrRuleEvaluation, id, p)
		}
		if err != nil {
			d.metrics.IncRuleError(string(id))
			logger.WithError(err).WithFields(logrus.Fields{
				"rule_id": id,
			}).Warn("Rule evaluation failed, treating as not fired")
		}
	}()

	c, err = eval()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrRuleEvaluation, id, err)
	}
	return c, nil
}

func (d *Detector) stamp(c *models.Candidate) *models.Candidate {
	weight := d.weights.Weight(c.RuleID)
	if c.Metadata == nil {
		c.Metadata = make(map[string]any)
	}
	c.Metadata["rule_weight"] = weight
	c.Metadata["weighted_score"] = c.Score * weight

	d.metrics.IncRuleFired(string(c.RuleID))
	logger.WithRule(c.Service, string(c.RuleID)).Debugf("Rule fired with score %.2f", c.Score)
	return c
}
