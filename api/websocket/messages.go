package websocket

import (
	"encoding/json"
	"time"

	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

type MessageType string

const (
	MessageTypeAnomaly      MessageType = "anomaly"
	MessageTypeAnomalyState MessageType = "anomaly_state"
	MessageTypeAlert        MessageType = "alert"
	MessageTypeRuleFlagged  MessageType = "rule_flagged"
	MessageTypeBaseline     MessageType = "baseline"
	MessageTypeModel        MessageType = "model"
	MessageTypeError        MessageType = "error"
	MessageTypeSubscription MessageType = "subscription_update"
)

// OutgoingMessage is what dashboard clients receive. Service is empty for
// engine-wide messages, which every client gets.
type OutgoingMessage struct {
	Type      MessageType `json:"type"`
	Event     string      `json:"event,omitempty"`
	Service   string      `json:"service,omitempty"`
	Severity  string      `json:"severity,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

func (m *OutgoingMessage) JSON() []byte {
	data, _ := json.Marshal(m)
	return data
}

// IncomingMessage changes a client's service filter.
type IncomingMessage struct {
	Type     string   `json:"type"`
	Services []string `json:"services,omitempty"`
}

func FromEvent(event *models.Event) *OutgoingMessage {
	msgType := mapEventType(event.Type)
	if msgType == "" {
		return nil
	}
	return &OutgoingMessage{
		Type:      msgType,
		Event:     string(event.Type),
		Service:   event.Service,
		Severity:  string(event.Severity),
		Timestamp: event.Timestamp,
		Message:   event.Message,
		Data:      event.Data,
	}
}

func mapEventType(eventType models.EventType) MessageType {
	switch eventType {
	case models.EventTypeAnomalyCreated, models.EventTypeAnomalyGrouped:
		return MessageTypeAnomaly
	case models.EventTypeAnomalyTransitioned:
		return MessageTypeAnomalyState
	case models.EventTypeAlertSent, models.EventTypeAlertFailed:
		return MessageTypeAlert
	case models.EventTypeRuleFlagged:
		return MessageTypeRuleFlagged
	case models.EventTypeBaselineRecomputed:
		return MessageTypeBaseline
	case models.EventTypeModelTrained:
		return MessageTypeModel
	case models.EventTypeError:
		return MessageTypeError
	default:
		// ingest progress is too chatty for the dashboard
		return ""
	}
}
