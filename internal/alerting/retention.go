package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/CIRISAI/CIRISBridge/internal/logger"
	"github.com/CIRISAI/CIRISBridge/internal/storage"
)

// Purger deletes closed anomalies older than the retention period together
// with their alerts. Feedback is kept.
type Purger struct {
	anomalies storage.AnomalyStore
	alerts    storage.AlertStore
	period    time.Duration
	clock     clock.Clock
}

func NewPurger(stores *storage.Stores, period time.Duration, c clock.Clock) *Purger {
	if c == nil {
		c = clock.New()
	}
	return &Purger{anomalies: stores.Anomalies, alerts: stores.Alerts, period: period, clock: c}
}

type PurgeResult struct {
	Anomalies int
	Alerts    int
}

func (p *Purger) Purge(ctx context.Context) (*PurgeResult, error) {
	cutoff := p.clock.Now().Add(-p.period)

	ids, err := p.anomalies.PurgeTerminal(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("purge anomalies: %w", err)
	}
	result := &PurgeResult{Anomalies: len(ids)}
	if len(ids) == 0 {
		return result, nil
	}

	n, err := p.alerts.DeleteForAnomalies(ctx, ids)
	if err != nil {
		return result, fmt.Errorf("purge alerts: %w", err)
	}
	result.Alerts = n

	logger.WithFields(logrus.Fields{
		"component": "retention",
		"cutoff":    cutoff.Format(time.RFC3339),
		"anomalies": result.Anomalies,
		"alerts":    result.Alerts,
	}).Info("Purged expired anomalies")
	return result, nil
}
