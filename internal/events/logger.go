package events

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/CIRISAI/CIRISBridge/internal/logger"
	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

// EventLogger writes every bus event to the structured log.
type EventLogger struct {
	eventChan <-chan *models.Event
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewEventLogger(eventChan <-chan *models.Event) *EventLogger {
	ctx, cancel := context.WithCancel(context.Background())
	return &EventLogger{
		eventChan: eventChan,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (l *EventLogger) Start() {
	l.wg.Add(1)
	go l.run()
}

func (l *EventLogger) Stop() {
	l.cancel()
	l.wg.Wait()
}

func (l *EventLogger) run() {
	defer l.wg.Done()
	for {
		select {
		case <-l.ctx.Done():
			return
		case event, ok := <-l.eventChan:
			if !ok {
				return
			}
			l.processEvent(event)
		}
	}
}

func (l *EventLogger) processEvent(event *models.Event) {
	fields := logrus.Fields{
		"event_type": event.Type,
		"severity":   event.Severity,
	}
	if event.Service != "" {
		fields["service"] = event.Service
	}
	if event.TraceID != "" {
		fields["trace_id"] = event.TraceID
	}
	entry := logger.WithFields(fields)

	switch event.Severity {
	case models.SeverityCritical:
		entry.Error(event.Message)
	case models.SeverityWarning:
		entry.Warn(event.Message)
	default:
		entry.Info(event.Message)
	}
}
