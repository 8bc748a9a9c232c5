package models

import (
	"fmt"
	"time"
)

type AnomalyStatus string

const (
	StatusNew           AnomalyStatus = "new"
	StatusAcknowledged  AnomalyStatus = "acknowledged"
	StatusResolved      AnomalyStatus = "resolved"
	StatusFalsePositive AnomalyStatus = "false_positive"
)

var allowedTransitions = map[AnomalyStatus][]AnomalyStatus{
	StatusNew:          {StatusAcknowledged, StatusFalsePositive},
	StatusAcknowledged: {StatusResolved, StatusFalsePositive},
}

func ParseStatus(s string) (AnomalyStatus, error) {
	switch AnomalyStatus(s) {
	case StatusNew, StatusAcknowledged, StatusResolved, StatusFalsePositive:
		return AnomalyStatus(s), nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, s)
}

func (s AnomalyStatus) IsTerminal() bool {
	return s == StatusResolved || s == StatusFalsePositive
}

func (s AnomalyStatus) IsOpen() bool {
	return s == StatusNew || s == StatusAcknowledged
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
func CanTransition(from, to AnomalyStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Anomaly is a single detection event and its lifecycle.
type Anomaly struct {
	ID              string         `json:"id"`
	DetectedAt      time.Time      `json:"detected_at"`
	RuleID          RuleID         `json:"rule_id"`
	Service         string         `json:"service"`
	Severity        Severity       `json:"severity"`
	Score           float64        `json:"score"`
	Metadata        map[string]any `json:"metadata"`
	Status          AnomalyStatus  `json:"status"`
	OccurrenceCount int            `json:"occurrence_count"`
	LastSeenAt      time.Time      `json:"last_seen_at"`
	AcknowledgedAt  *time.Time     `json:"acknowledged_at,omitempty"`
	AcknowledgedBy  string         `json:"acknowledged_by,omitempty"`
	ResolvedAt      *time.Time     `json:"resolved_at,omitempty"`
	ResolvedBy      string         `json:"resolved_by,omitempty"`
	FalsePositive   bool           `json:"false_positive"`
	SnapshotVersion int64          `json:"snapshot_version"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// NewAnomaly creates an anomaly in the initial state from a detector candidate.
func NewAnomaly(c *Candidate) *Anomaly {
	meta := make(map[string]any, len(c.Metadata)+1)
	for k, v := range c.Metadata {
		meta[k] = v
	}
	meta["occurrence_count"] = 1
	return &Anomaly{
		ID:              NewUUID(),
		DetectedAt:      c.DetectedAt,
		RuleID:          c.RuleID,
		Service:         c.Service,
		Severity:        c.Severity,
		Score:           c.Score,
		Metadata:        meta,
		Status:          StatusNew,
		OccurrenceCount: 1,
		LastSeenAt:      c.DetectedAt,
		SnapshotVersion: c.SnapshotVersion,
		UpdatedAt:       c.DetectedAt,
	}
}

// Apply moves the anomaly to status to. Repeating a transition that already
// happened is a no-op success (changed=false). Any other edge outside the
// lifecycle returns ErrInvalidTransition and leaves the anomaly untouched.
func (a *Anomaly) Apply(to AnomalyStatus, actor string, at time.Time) (bool, error) {
	if a.Status == to {
		return false, nil
	}
	if !CanTransition(a.Status, to) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, to)
	}

	switch to {
	case StatusAcknowledged:
		a.AcknowledgedAt = &at
		a.AcknowledgedBy = actor
	case StatusResolved, StatusFalsePositive:
		a.ResolvedAt = &at
		a.ResolvedBy = actor
		a.FalsePositive = to == StatusFalsePositive
	}
	a.Status = to
	a.UpdatedAt = at
	return true, nil
}

// Merge folds a later candidate for the same (service, rule) into this anomaly.
// DetectedAt is preserved.
func (a *Anomaly) Merge(c *Candidate) {
	a.OccurrenceCount++
	if c.DetectedAt.After(a.LastSeenAt) {
		a.LastSeenAt = c.DetectedAt
	}
	if c.Score > a.Score {
		a.Score = c.Score
	}
	if a.Metadata == nil {
		a.Metadata = make(map[string]any)
	}
	a.Metadata["occurrence_count"] = a.OccurrenceCount
	a.Metadata["last_seen_at"] = a.LastSeenAt.UTC().Format(time.RFC3339)
	a.Metadata["latest"] = c.Metadata
	a.UpdatedAt = c.DetectedAt
}

func (a *Anomaly) Clone() *Anomaly {
	cp := *a
	if a.Metadata != nil {
		cp.Metadata = make(map[string]any, len(a.Metadata))
		for k, v := range a.Metadata {
			cp.Metadata[k] = v
		}
	}
	if a.AcknowledgedAt != nil {
		t := *a.AcknowledgedAt
		cp.AcknowledgedAt = &t
	}
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		cp.ResolvedAt = &t
	}
	return &cp
}

// Candidate is a detector finding before the alert manager stores it.
type Candidate struct {
	RuleID          RuleID         `json:"rule_id"`
	Service         string         `json:"service"`
	Severity        Severity       `json:"severity"`
	Score           float64        `json:"score"`
	DetectedAt      time.Time      `json:"detected_at"`
	SnapshotVersion int64          `json:"snapshot_version"`
	Metadata        map[string]any `json:"metadata"`
}

// AnomalyFilter selects anomalies for listing.
type AnomalyFilter struct {
	From     time.Time
	To       time.Time
	Service  string
	Status   AnomalyStatus
	Severity Severity
	RuleID   RuleID
	Limit    int
}

func (f AnomalyFilter) Matches(a *Anomaly) bool {
	if !f.From.IsZero() && a.DetectedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && a.DetectedAt.After(f.To) {
		return false
	}
	if f.Service != "" && a.Service != f.Service {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.Severity != "" && a.Severity != f.Severity {
		return false
	}
	if f.RuleID != "" && a.RuleID != f.RuleID {
		return false
	}
	return true
}
