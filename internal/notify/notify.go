// Package notify delivers alert messages to external channels. A Notifier
// makes exactly one attempt per Send; retries belong to the caller.
package notify

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

type Notifier interface {
	Name() string
	Send(ctx context.Context, msg *Message) error
}

// Message is one notification: a single anomaly or a batch collapsed into
// one combined message.
type Message struct {
	AlertID   string            `json:"alert_id"`
	Title     string            `json:"title"`
	Severity  models.Severity   `json:"severity"`
	Lines     []string          `json:"lines"`
	Anomalies []*models.Anomaly `json:"anomalies"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewMessage builds the message for an alert over the given anomalies.
func NewMessage(alert *models.Alert, anomalies []*models.Anomaly) *Message {
	msg := &Message{
		AlertID:   alert.ID,
		Severity:  alert.Severity,
		Anomalies: anomalies,
		CreatedAt: alert.CreatedAt,
	}

	if len(anomalies) == 1 {
		a := anomalies[0]
		msg.Title = fmt.Sprintf("[%s] %s on %s", a.Severity, a.RuleID, a.Service)
	} else {
		msg.Title = fmt.Sprintf("[%s] %d anomalies", alert.Severity, len(anomalies))
	}

	for _, a := range anomalies {
		msg.Lines = append(msg.Lines, Line(a))
	}
	return msg
}

// Line summarizes one anomaly on a single line.
func Line(a *models.Anomaly) string {
	line := fmt.Sprintf("%s %s on %s score=%.2f at %s", a.Severity, a.RuleID, a.Service, a.Score,
		a.DetectedAt.UTC().Format(time.RFC3339))
	if v, ok := a.Metadata["observed"]; ok {
		line += fmt.Sprintf(" observed=%v", v)
	}
	if a.OccurrenceCount > 1 {
		line += fmt.Sprintf(" occurrences=%d", a.OccurrenceCount)
	}
	return line
}

// Services lists the distinct services in the message.
func (m *Message) Services() []string {
	seen := make(map[string]struct{})
	for _, a := range m.Anomalies {
		seen[a.Service] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func deliveryError(channel string, err error) error {
	return fmt.Errorf("%w: %s: %v", models.ErrDelivery, channel, err)
}
