package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAnomaly(status AnomalyStatus) *Anomaly {
	a := NewAnomaly(&Candidate{
		RuleID:     RuleVolumeAnomaly,
		Service:    "api",
		Severity:   SeverityWarning,
		Score:      1.2,
		DetectedAt: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	})
	a.Status = status
	return a
}

func TestCanTransition(t *testing.T) {
	statuses := []AnomalyStatus{StatusNew, StatusAcknowledged, StatusResolved, StatusFalsePositive}
	allowed := map[[2]AnomalyStatus]bool{
		{StatusNew, StatusAcknowledged}:          true,
		{StatusNew, StatusFalsePositive}:         true,
		{StatusAcknowledged, StatusResolved}:     true,
		{StatusAcknowledged, StatusFalsePositive}: true,
	}

	for _, from := range statuses {
		for _, to := range statuses {
			assert.Equal(t, allowed[[2]AnomalyStatus{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestAnomaly_Apply(t *testing.T) {
	at := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		from        AnomalyStatus
		to          AnomalyStatus
		wantChanged bool
		wantErr     error
	}{
		{name: "acknowledge new", from: StatusNew, to: StatusAcknowledged, wantChanged: true},
		{name: "false positive from new", from: StatusNew, to: StatusFalsePositive, wantChanged: true},
		{name: "resolve acknowledged", from: StatusAcknowledged, to: StatusResolved, wantChanged: true},
		{name: "false positive from acknowledged", from: StatusAcknowledged, to: StatusFalsePositive, wantChanged: true},
		{name: "resolve twice is a no-op", from: StatusResolved, to: StatusResolved},
		{name: "acknowledge twice is a no-op", from: StatusAcknowledged, to: StatusAcknowledged},
		{name: "resolve new rejected", from: StatusNew, to: StatusResolved, wantErr: ErrInvalidTransition},
		{name: "reopen resolved rejected", from: StatusResolved, to: StatusAcknowledged, wantErr: ErrInvalidTransition},
		{name: "false positive after resolve rejected", from: StatusResolved, to: StatusFalsePositive, wantErr: ErrInvalidTransition},
		{name: "back to new rejected", from: StatusAcknowledged, to: StatusNew, wantErr: ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAnomaly(tt.from)
			before := a.Clone()

			changed, err := a.Apply(tt.to, "operator", at)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, before, a, "rejected transition must not mutate")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantChanged, changed)
			assert.Equal(t, tt.to, a.Status)
		})
	}
}

func TestAnomaly_ApplyRecordsActor(t *testing.T) {
	at := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	a := newTestAnomaly(StatusNew)

	_, err := a.Apply(StatusAcknowledged, "alice", at)
	require.NoError(t, err)
	_, err = a.Apply(StatusFalsePositive, "bob", at.Add(time.Minute))
	require.NoError(t, err)

	assert.Equal(t, "alice", a.AcknowledgedBy)
	assert.Equal(t, "bob", a.ResolvedBy)
	assert.True(t, a.FalsePositive)
	require.NotNil(t, a.ResolvedAt)
	assert.Equal(t, at.Add(time.Minute), *a.ResolvedAt)
}

func TestAnomaly_MergeKeepsDetectedAt(t *testing.T) {
	a := newTestAnomaly(StatusNew)
	detected := a.DetectedAt

	a.Merge(&Candidate{
		RuleID:     RuleVolumeAnomaly,
		Service:    "api",
		Score:      2.0,
		DetectedAt: detected.Add(90 * time.Second),
		Metadata:   map[string]any{"request_count": 140},
	})

	assert.Equal(t, detected, a.DetectedAt)
	assert.Equal(t, 2, a.OccurrenceCount)
	assert.Equal(t, 2, a.Metadata["occurrence_count"])
	assert.Equal(t, detected.Add(90*time.Second), a.LastSeenAt)
	assert.Equal(t, 2.0, a.Score)
}

func TestRuleSeverityMapping(t *testing.T) {
	assert.Equal(t, SeverityCritical, RuleErrorRateSpike.Severity())
	assert.Equal(t, SeverityWarning, RuleVolumeAnomaly.Severity())
	assert.Equal(t, SeverityCritical, RuleAuthFailureBurst.Severity())
	assert.Equal(t, SeverityInfo, RuleGeographicAnomaly.Severity())

	_, err := ParseRuleID("nope")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "InvalidTransition", ErrorKind(ErrInvalidTransition))
	assert.Equal(t, "SourceUnavailable", ErrorKind(ErrSourceUnavailable))
	assert.Equal(t, "Internal", ErrorKind(assert.AnError))
	assert.Equal(t, "", ErrorKind(nil))
}
