package events

import (
	"context"
	"fmt"

	"github.com/CIRISAI/CIRISBridge/internal/logger"
	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

// Publisher is the dashboard sink: every anomaly and its lifecycle changes
// are emitted as structured events.
type Publisher struct {
	bus     *EventBus
	traceID string
}

func NewPublisher(bus *EventBus) *Publisher {
	return &Publisher{bus: bus}
}

func (p *Publisher) WithTraceID(traceID string) *Publisher {
	if p == nil {
		return nil
	}
	return &Publisher{
		bus:     p.bus,
		traceID: traceID,
	}
}

func (p *Publisher) publish(event *models.Event) {
	if p == nil || p.bus == nil {
		return
	}
	if p.traceID != "" {
		event.TraceID = p.traceID
	}
	p.bus.Publish(event)
}

func (p *Publisher) AnomalyCreated(a *models.Anomaly) {
	msg := fmt.Sprintf("%s anomaly on %s (score %.2f)", a.RuleID, a.Service, a.Score)
	event := models.NewEvent(models.EventTypeAnomalyCreated, a.Service, msg).
		WithSeverity(a.Severity).
		WithData(a)
	p.publish(event)
}

func (p *Publisher) AnomalyGrouped(a *models.Anomaly) {
	msg := fmt.Sprintf("%s on %s seen %d times", a.RuleID, a.Service, a.OccurrenceCount)
	event := models.NewEvent(models.EventTypeAnomalyGrouped, a.Service, msg).
		WithSeverity(a.Severity).
		WithData(a)
	p.publish(event)
}

// AnomalyTransitioned tags the event with the trace id of the request that
// changed the anomaly, when ctx carries one.
func (p *Publisher) AnomalyTransitioned(ctx context.Context, a *models.Anomaly, from models.AnomalyStatus) {
	msg := fmt.Sprintf("Anomaly %s: %s -> %s", a.ID, from, a.Status)
	event := models.NewEvent(models.EventTypeAnomalyTransitioned, a.Service, msg).
		WithSeverity(a.Severity).
		WithData(a)
	if traceID := logger.TraceIDFromContext(ctx); traceID != "" {
		p = p.WithTraceID(traceID)
	}
	p.publish(event)
}

func (p *Publisher) AlertSent(alert *models.Alert) {
	msg := fmt.Sprintf("Alert sent via %s for %d anomalies", alert.Channel, len(alert.AnomalyIDs))
	event := models.NewEvent(models.EventTypeAlertSent, "", msg).
		WithSeverity(alert.Severity).
		WithData(alert)
	p.publish(event)
}

func (p *Publisher) AlertFailed(alert *models.Alert, err error) {
	msg := fmt.Sprintf("Alert delivery via %s failed (attempt %d)", alert.Channel, alert.Attempts)
	event := models.NewEvent(models.EventTypeAlertFailed, "", msg).
		WithSeverity(models.SeverityWarning).
		WithData(map[string]any{
			"alert": alert,
			"error": err.Error(),
		})
	p.publish(event)
}

func (p *Publisher) BaselineRecomputed(version int64, keys, services int) {
	msg := fmt.Sprintf("Baseline snapshot %d published (%d keys, %d services)", version, keys, services)
	event := models.NewEvent(models.EventTypeBaselineRecomputed, "", msg).
		WithData(map[string]any{
			"version":  version,
			"keys":     keys,
			"services": services,
		})
	p.publish(event)
}

func (p *Publisher) ModelTrained(services []string, samples int) {
	msg := fmt.Sprintf("Multivariate model trained for %d services on %d samples", len(services), samples)
	event := models.NewEvent(models.EventTypeModelTrained, "", msg).
		WithData(map[string]any{
			"services": services,
			"samples":  samples,
		})
	p.publish(event)
}

func (p *Publisher) RuleFlagged(stat models.RuleStat) {
	msg := fmt.Sprintf("Rule %s false-positive ratio %.0f%% exceeds threshold", stat.RuleID, stat.Ratio*100)
	event := models.NewEvent(models.EventTypeRuleFlagged, "", msg).
		WithSeverity(models.SeverityWarning).
		WithData(stat)
	p.publish(event)
}

func (p *Publisher) IngestCompleted(from, to string, samples int) {
	msg := fmt.Sprintf("Ingested %d samples for [%s, %s)", samples, from, to)
	event := models.NewEvent(models.EventTypeIngestCompleted, "", msg).
		WithData(map[string]any{
			"from":    from,
			"to":      to,
			"samples": samples,
		})
	p.publish(event)
}

func (p *Publisher) Error(component, message string, err error) {
	event := models.NewEvent(models.EventTypeError, "", message).
		WithSeverity(models.SeverityCritical).
		WithData(map[string]any{
			"component": component,
			"error":     err.Error(),
		})
	p.publish(event)
}
