package notify

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/CIRISAI/CIRISBridge/internal/logger"
)

// LogNotifier writes alerts to the engine log. It is the channel used when
// nothing else is configured.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Send(_ context.Context, msg *Message) error {
	entry := logger.WithFields(logrus.Fields{
		"channel":   n.Name(),
		"alert_id":  msg.AlertID,
		"severity":  msg.Severity,
		"anomalies": len(msg.Anomalies),
		"services":  msg.Services(),
	})
	entry.Warn(msg.Title)
	for _, line := range msg.Lines {
		entry.Info(line)
	}
	return nil
}
