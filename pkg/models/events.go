package models

import "time"

type EventType string

const (
	EventTypeAnomalyCreated      EventType = "anomaly_created"
	EventTypeAnomalyGrouped      EventType = "anomaly_grouped"
	EventTypeAnomalyTransitioned EventType = "anomaly_transitioned"
	EventTypeAlertSent           EventType = "alert_sent"
	EventTypeAlertFailed         EventType = "alert_failed"
	EventTypeBaselineRecomputed  EventType = "baseline_recomputed"
	EventTypeModelTrained        EventType = "model_trained"
	EventTypeRuleFlagged         EventType = "rule_flagged"
	EventTypeIngestCompleted     EventType = "ingest_completed"
	EventTypeError               EventType = "error"
)

// AllEventTypes lists every event type the bus can carry.
func AllEventTypes() []EventType {
	return []EventType{
		EventTypeAnomalyCreated,
		EventTypeAnomalyGrouped,
		EventTypeAnomalyTransitioned,
		EventTypeAlertSent,
		EventTypeAlertFailed,
		EventTypeBaselineRecomputed,
		EventTypeModelTrained,
		EventTypeRuleFlagged,
		EventTypeIngestCompleted,
		EventTypeError,
	}
}

// Event represents an internal engine event
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Severity  Severity  `json:"severity"`
	Service   string    `json:"service,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
	TraceID   string    `json:"trace_id,omitempty"`
}

func NewEvent(eventType EventType, service, message string) *Event {
	return &Event{
		ID:        NewUUID(),
		Type:      eventType,
		Severity:  SeverityInfo,
		Service:   service,
		Timestamp: time.Now(),
		Message:   message,
	}
}

func (e *Event) WithSeverity(severity Severity) *Event {
	e.Severity = severity
	return e
}

func (e *Event) WithData(data any) *Event {
	e.Data = data
	return e
}

func (e *Event) WithTraceID(traceID string) *Event {
	e.TraceID = traceID
	return e
}
