package alerting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/CIRISAI/CIRISBridge/internal/logger"
	"github.com/CIRISAI/CIRISBridge/internal/metrics"
	"github.com/CIRISAI/CIRISBridge/internal/storage"
	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

type Config struct {
	GroupingWindow     time.Duration
	CriticalImmediate  bool
	FalsePositiveRatio float64
	FeedbackWindow     time.Duration
}

// DashboardSink receives every anomaly and state change for live display.
type DashboardSink interface {
	AnomalyCreated(a *models.Anomaly)
	AnomalyGrouped(a *models.Anomaly)
	AnomalyTransitioned(ctx context.Context, a *models.Anomaly, from models.AnomalyStatus)
	RuleFlagged(stat models.RuleStat)
}

// WeightPublisher takes the recomputed rule stats, typically the detector's
// weight table.
type WeightPublisher interface {
	Publish(stats []models.RuleStat)
}

type nopSink struct{}

func (nopSink) AnomalyCreated(*models.Anomaly) {}
func (nopSink) AnomalyGrouped(*models.Anomaly) {}
func (nopSink) AnomalyTransitioned(context.Context, *models.Anomaly, models.AnomalyStatus) {}
func (nopSink) RuleFlagged(models.RuleStat) {}

type Manager struct {
	cfg       Config
	anomalies storage.AnomalyStore
	alerts    storage.AlertStore
	feedback  storage.FeedbackStore
	outbox    *Outbox
	sink      DashboardSink
	weights   WeightPublisher
	clock     clock.Clock
	metrics   *metrics.Metrics

	locks keyLocks

	statsMu sync.RWMutex
	stats   []models.RuleStat
}

type Option func(*Manager)

func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

func WithSink(s DashboardSink) Option {
	return func(m *Manager) { m.sink = s }
}

func WithWeights(w WeightPublisher) Option {
	return func(m *Manager) { m.weights = w }
}

func NewManager(cfg Config, stores *storage.Stores, outbox *Outbox, opts ...Option) *Manager {
	if cfg.GroupingWindow <= 0 {
		cfg.GroupingWindow = 5 * time.Minute
	}
	if cfg.FalsePositiveRatio <= 0 {
		cfg.FalsePositiveRatio = 0.3
	}
	if cfg.FeedbackWindow <= 0 {
		cfg.FeedbackWindow = 7 * 24 * time.Hour
	}

	m := &Manager{
		cfg:       cfg,
		anomalies: stores.Anomalies,
		alerts:    stores.Alerts,
		feedback:  stores.Feedback,
		outbox:    outbox,
		sink:      nopSink{},
		clock:     clock.New(),
		metrics:   metrics.Get(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.stats = ComputeRuleStats(nil, nil, cfg.FalsePositiveRatio)
	return m
}

// SubmitResult splits submitted candidates into new and grouped anomalies.
type SubmitResult struct {
	Created []*models.Anomaly
	Grouped []*models.Anomaly
}

var errNoLongerOpen = errors.New("anomaly no longer open")

// Submit records candidates. A candidate detected within the grouping window
// of the last occurrence of an open anomaly with the same service and rule is
// merged into it and not alerted again; anything else becomes a new anomaly
// and is routed by severity.
func (m *Manager) Submit(ctx context.Context, candidates []*models.Candidate) (*SubmitResult, error) {
	result := &SubmitResult{}
	var errs []error

	for _, c := range candidates {
		a, created, err := m.submit(ctx, c)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if created {
			result.Created = append(result.Created, a)
		} else {
			result.Grouped = append(result.Grouped, a)
		}
	}
	return result, errors.Join(errs...)
}

func (m *Manager) submit(ctx context.Context, c *models.Candidate) (*models.Anomaly, bool, error) {
	unlock := m.locks.lock(c.Service + "|" + string(c.RuleID))
	defer unlock()

	open, err := m.anomalies.FindOpen(ctx, c.Service, c.RuleID, c.DetectedAt.Add(-m.cfg.GroupingWindow))
	if err != nil {
		return nil, false, fmt.Errorf("find open anomaly: %w", err)
	}

	if open != nil {
		merged, err := m.anomalies.Update(ctx, open.ID, func(a *models.Anomaly) error {
			if !a.Status.IsOpen() {
				return errNoLongerOpen
			}
			a.Merge(c)
			return nil
		})
		switch {
		case err == nil:
			m.metrics.IncAnomalyGrouped(string(c.RuleID))
			m.sink.AnomalyGrouped(merged)
			logger.WithRule(c.Service, string(c.RuleID)).Debugf("Grouped into anomaly %s (occurrence %d)", merged.ID, merged.OccurrenceCount)
			return merged, false, nil
		case !errors.Is(err, errNoLongerOpen):
			return nil, false, fmt.Errorf("group anomaly: %w", err)
		}
	}

	a := models.NewAnomaly(c)
	if err := m.anomalies.Insert(ctx, a); err != nil {
		return nil, false, fmt.Errorf("insert anomaly: %w", err)
	}
	m.metrics.IncAnomalyCreated(string(a.RuleID), string(a.Severity))
	m.sink.AnomalyCreated(a)

	logger.WithFields(logrus.Fields{
		"anomaly_id": a.ID,
		"service":    a.Service,
		"rule_id":    a.RuleID,
		"severity":   a.Severity,
		"score":      a.Score,
	}).Info("Anomaly detected")

	if err := m.route(ctx, a); err != nil {
		// The anomaly is stored and visible; only its notification failed.
		logger.WithError(err).WithField("anomaly_id", a.ID).Error("Failed to route anomaly")
	}
	return a, true, nil
}

func (m *Manager) route(ctx context.Context, a *models.Anomaly) error {
	switch a.Severity {
	case models.SeverityCritical:
		if m.cfg.CriticalImmediate {
			return m.outbox.SendNow(ctx, a)
		}
		m.outbox.Batch(a)
	case models.SeverityWarning:
		m.outbox.Batch(a)
	}
	return nil
}

func (m *Manager) Get(ctx context.Context, id string) (*models.Anomaly, error) {
	return m.anomalies.Get(ctx, id)
}

func (m *Manager) List(ctx context.Context, filter models.AnomalyFilter) ([]*models.Anomaly, error) {
	return m.anomalies.List(ctx, filter)
}

func (m *Manager) ListAlerts(ctx context.Context, filter models.AlertFilter) ([]*models.Alert, error) {
	return m.alerts.List(ctx, filter)
}

func (m *Manager) Feedback(ctx context.Context, anomalyID string) ([]*models.Feedback, error) {
	if _, err := m.anomalies.Get(ctx, anomalyID); err != nil {
		return nil, err
	}
	return m.feedback.ListForAnomaly(ctx, anomalyID)
}

func (m *Manager) transition(ctx context.Context, id string, to models.AnomalyStatus, actor string) (*models.Anomaly, bool, error) {
	now := m.clock.Now()
	var from models.AnomalyStatus
	var changed bool

	a, err := m.anomalies.Update(ctx, id, func(a *models.Anomaly) error {
		from = a.Status
		var err error
		changed, err = a.Apply(to, actor, now)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	if changed {
		m.sink.AnomalyTransitioned(ctx, a, from)
		logger.WithFields(logrus.Fields{
			"anomaly_id": a.ID,
			"from":       from,
			"to":         to,
			"actor":      actor,
		}).Info("Anomaly state changed")
	}
	return a, changed, nil
}

// Acknowledge moves new to acknowledged and stamps the anomaly's alerts.
// Acknowledging twice is a no-op.
func (m *Manager) Acknowledge(ctx context.Context, id, actor string) (*models.Anomaly, error) {
	a, changed, err := m.transition(ctx, id, models.StatusAcknowledged, actor)
	if err != nil {
		return nil, err
	}
	if changed {
		if _, err := m.alerts.AcknowledgeForAnomaly(ctx, id, actor, *a.AcknowledgedAt); err != nil {
			logger.WithError(err).WithField("anomaly_id", id).Warn("Failed to acknowledge alerts")
		}
	}
	return a, nil
}

func (m *Manager) Resolve(ctx context.Context, id, actor string) (*models.Anomaly, error) {
	a, _, err := m.transition(ctx, id, models.StatusResolved, actor)
	return a, err
}

// MarkFalsePositive closes the anomaly as a false positive and records the
// feedback that drives the rule's false-positive ratio. Repeating it does not
// add feedback again.
func (m *Manager) MarkFalsePositive(ctx context.Context, id, actor, note string) (*models.Anomaly, error) {
	a, appended, err := m.markFalsePositive(ctx, id, actor, note)
	if err != nil || !appended {
		return a, err
	}
	if _, err := m.RecomputeRuleStats(ctx); err != nil {
		logger.WithError(err).Warn("Failed to recompute rule stats after feedback")
	}
	return a, nil
}

// markFalsePositive holds the anomaly's lock across the transition, the
// feedback lookup and the append.
func (m *Manager) markFalsePositive(ctx context.Context, id, actor, note string) (*models.Anomaly, bool, error) {
	unlock := m.locks.lock("anomaly|" + id)
	defer unlock()

	a, changed, err := m.transition(ctx, id, models.StatusFalsePositive, actor)
	if err != nil {
		return nil, false, err
	}

	if !changed {
		// A previous call may have changed state and failed to append.
		existing, err := m.feedback.ListForAnomaly(ctx, id)
		if err != nil {
			return nil, false, fmt.Errorf("list feedback: %w", err)
		}
		for _, f := range existing {
			if f.Type == models.FeedbackFalsePositive {
				return a, false, nil
			}
		}
	}

	if err := m.appendFeedback(ctx, a, models.FeedbackFalsePositive, actor, note); err != nil {
		return nil, false, err
	}
	return a, true, nil
}

// SubmitFeedback records confirmed or adjusted feedback without changing the
// anomaly's state. False-positive feedback goes through MarkFalsePositive.
func (m *Manager) SubmitFeedback(ctx context.Context, id string, kind models.FeedbackType, actor, note string) (*models.Anomaly, error) {
	if kind == models.FeedbackFalsePositive {
		return m.MarkFalsePositive(ctx, id, actor, note)
	}

	a, err := m.anomalies.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.appendFeedback(ctx, a, kind, actor, note); err != nil {
		return nil, err
	}
	return a, nil
}

func (m *Manager) appendFeedback(ctx context.Context, a *models.Anomaly, kind models.FeedbackType, actor, note string) error {
	f := &models.Feedback{
		AnomalyID: a.ID,
		RuleID:    a.RuleID,
		Type:      kind,
		Actor:     actor,
		Note:      note,
		CreatedAt: m.clock.Now(),
	}
	if err := m.feedback.Append(ctx, f); err != nil {
		return fmt.Errorf("append feedback: %w", err)
	}
	return nil
}

// RecomputeRuleStats recounts false-positive ratios over the feedback window
// and publishes them. Rules that become flagged are announced once.
func (m *Manager) RecomputeRuleStats(ctx context.Context) ([]models.RuleStat, error) {
	since := m.clock.Now().Add(-m.cfg.FeedbackWindow)

	raised, err := m.anomalies.CountRaised(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("count raised anomalies: %w", err)
	}
	fps, err := m.feedback.CountByRule(ctx, models.FeedbackFalsePositive, since)
	if err != nil {
		return nil, fmt.Errorf("count false positives: %w", err)
	}

	stats := ComputeRuleStats(raised, fps, m.cfg.FalsePositiveRatio)

	m.statsMu.Lock()
	previous := make(map[models.RuleID]bool, len(m.stats))
	for _, s := range m.stats {
		previous[s.RuleID] = s.Flagged
	}
	m.stats = stats
	m.statsMu.Unlock()

	for _, s := range stats {
		m.metrics.SetRuleFalsePositiveRatio(string(s.RuleID), s.Ratio)
		if s.Flagged && !previous[s.RuleID] {
			logger.WithFields(logrus.Fields{
				"rule_id":         s.RuleID,
				"ratio":           s.Ratio,
				"false_positives": s.FalsePositives,
				"raised":          s.Raised,
			}).Warn("Rule flagged for review: false-positive ratio above threshold")
			m.sink.RuleFlagged(s)
		}
	}
	if m.weights != nil {
		m.weights.Publish(stats)
	}
	return stats, nil
}

// RuleStats returns the last computed stats.
func (m *Manager) RuleStats() []models.RuleStat {
	m.statsMu.RLock()
	defer m.statsMu.RUnlock()
	out := make([]models.RuleStat, len(m.stats))
	copy(out, m.stats)
	return out
}

func (m *Manager) Outbox() *Outbox {
	return m.outbox
}
