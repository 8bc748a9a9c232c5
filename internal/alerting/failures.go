package alerting

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/CIRISAI/CIRISBridge/internal/logger"
	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

// Submitter accepts candidates; the Manager is one.
type Submitter interface {
	Submit(ctx context.Context, candidates []*models.Candidate) (*SubmitResult, error)
}

type streak struct {
	count   int
	alerted bool
	lastErr string
}

// FailureTracker counts consecutive failures per engine component and raises
// one consecutive_failures anomaly per streak once a count reaches the
// threshold. A success ends the streak.
type FailureTracker struct {
	threshold int
	submit    Submitter
	clock     clock.Clock

	mu      sync.Mutex
	streaks map[string]*streak
}

func NewFailureTracker(threshold int, submit Submitter, c clock.Clock) *FailureTracker {
	if threshold <= 0 {
		threshold = 5
	}
	if c == nil {
		c = clock.New()
	}
	return &FailureTracker{
		threshold: threshold,
		submit:    submit,
		clock:     c,
		streaks:   make(map[string]*streak),
	}
}

func (f *FailureTracker) Record(ctx context.Context, component string, err error) {
	f.mu.Lock()
	s, ok := f.streaks[component]
	if !ok {
		s = &streak{}
		f.streaks[component] = s
	}
	if err == nil {
		s.count, s.alerted, s.lastErr = 0, false, ""
		f.mu.Unlock()
		return
	}

	s.count++
	s.lastErr = err.Error()
	fire := s.count >= f.threshold && !s.alerted
	if fire {
		s.alerted = true
	}
	count := s.count
	f.mu.Unlock()

	if !fire || f.submit == nil {
		return
	}

	candidate := &models.Candidate{
		RuleID:     models.RuleConsecutiveFailures,
		Service:    "engine." + component,
		Severity:   models.RuleConsecutiveFailures.Severity(),
		Score:      float64(count) / float64(f.threshold),
		DetectedAt: f.clock.Now(),
		Metadata: map[string]any{
			"component":            component,
			"consecutive_failures": count,
			"threshold":            f.threshold,
			"error_kind":           models.ErrorKind(err),
			"last_error":           err.Error(),
		},
	}
	logger.WithComponent(component).Errorf("%d consecutive failures, raising meta-alert", count)
	if _, serr := f.submit.Submit(ctx, []*models.Candidate{candidate}); serr != nil {
		logger.WithError(serr).WithField("component", component).Error("Failed to submit meta-alert")
	}
}

// Count returns the component's current streak length.
func (f *FailureTracker) Count(component string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.streaks[component]; ok {
		return s.count
	}
	return 0
}
