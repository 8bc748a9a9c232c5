package models

import "time"

type AlertStatus string

const (
	AlertPending AlertStatus = "pending"
	AlertSent    AlertStatus = "sent"
	AlertFailed  AlertStatus = "failed"
	AlertDropped AlertStatus = "dropped"
)

// Alert is a notification tied to one anomaly or to a group collapsed into
// one message. Once sent only the acknowledgment fields change.
type Alert struct {
	ID             string      `json:"id"`
	AnomalyIDs     []string    `json:"anomaly_ids"`
	Channel        string      `json:"channel"`
	Severity       Severity    `json:"severity"`
	Status         AlertStatus `json:"status"`
	Attempts       int         `json:"attempts"`
	LastError      string      `json:"last_error,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	SentAt         *time.Time  `json:"sent_at,omitempty"`
	AcknowledgedAt *time.Time  `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string      `json:"acknowledged_by,omitempty"`
}

func NewAlert(channel string, severity Severity, anomalyIDs []string, at time.Time) *Alert {
	ids := make([]string, len(anomalyIDs))
	copy(ids, anomalyIDs)
	return &Alert{
		ID:         NewUUID(),
		AnomalyIDs: ids,
		Channel:    channel,
		Severity:   severity,
		Status:     AlertPending,
		CreatedAt:  at,
	}
}

type AlertFilter struct {
	AnomalyID string
	Status    AlertStatus
	Severity  Severity
	From      time.Time
	Limit     int
}

func (f AlertFilter) Matches(a *Alert) bool {
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.Severity != "" && a.Severity != f.Severity {
		return false
	}
	if !f.From.IsZero() && a.CreatedAt.Before(f.From) {
		return false
	}
	if f.AnomalyID != "" {
		for _, id := range a.AnomalyIDs {
			if id == f.AnomalyID {
				return true
			}
		}
		return false
	}
	return true
}
