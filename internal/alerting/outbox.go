package alerting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/CIRISAI/CIRISBridge/internal/events"
	"github.com/CIRISAI/CIRISBridge/internal/logger"
	"github.com/CIRISAI/CIRISBridge/internal/metrics"
	"github.com/CIRISAI/CIRISBridge/internal/notify"
	"github.com/CIRISAI/CIRISBridge/internal/storage"
	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

type OutboxConfig struct {
	MaxAttempts int
	SendTimeout time.Duration
	QueueSize   int
}

// delivery is one alert bound for one channel.
type delivery struct {
	alert     *models.Alert
	notifier  notify.Notifier
	anomalies []*models.Anomaly
}

// pendingBatch is a batch still owed to the listed channels.
type pendingBatch struct {
	anomalies []*models.Anomaly
	notifiers []notify.Notifier
}

// Outbox is the send queue between the alert manager and the notification
// channels. Immediate alerts go through a worker; batched anomalies wait for
// Flush. Failed sends are retried at the next Flush until MaxAttempts.
type Outbox struct {
	cfg       OutboxConfig
	notifiers []notify.Notifier
	alerts    storage.AlertStore
	clock     clock.Clock
	metrics   *metrics.Metrics
	publisher *events.Publisher
	observer  func(ctx context.Context, err error)

	queue chan *delivery

	mu      sync.Mutex
	batched []*models.Anomaly
	partial []*pendingBatch
	retry   []*delivery
}

type OutboxOption func(*Outbox)

func WithOutboxClock(c clock.Clock) OutboxOption {
	return func(o *Outbox) { o.clock = c }
}

func WithOutboxMetrics(m *metrics.Metrics) OutboxOption {
	return func(o *Outbox) { o.metrics = m }
}

func WithOutboxPublisher(p *events.Publisher) OutboxOption {
	return func(o *Outbox) { o.publisher = p }
}

// WithDeliveryObserver is called after every send attempt with its result.
func WithDeliveryObserver(fn func(ctx context.Context, err error)) OutboxOption {
	return func(o *Outbox) { o.observer = fn }
}

func NewOutbox(cfg OutboxConfig, notifiers []notify.Notifier, alerts storage.AlertStore, opts ...OutboxOption) *Outbox {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if len(notifiers) == 0 {
		notifiers = []notify.Notifier{notify.NewLogNotifier()}
	}

	o := &Outbox{
		cfg:       cfg,
		notifiers: notifiers,
		alerts:    alerts,
		clock:     clock.New(),
		metrics:   metrics.Get(),
		observer:  func(context.Context, error) {},
		queue:     make(chan *delivery, cfg.QueueSize),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Outbox) Channels() []string {
	names := make([]string, len(o.notifiers))
	for i, n := range o.notifiers {
		names[i] = n.Name()
	}
	return names
}

// SendNow creates one alert per channel for the anomaly and queues them for
// the worker.
func (o *Outbox) SendNow(ctx context.Context, a *models.Anomaly) error {
	now := o.clock.Now()
	for _, n := range o.notifiers {
		alert := models.NewAlert(n.Name(), a.Severity, []string{a.ID}, now)
		if err := o.alerts.Insert(ctx, alert); err != nil {
			return fmt.Errorf("insert alert: %w", err)
		}

		d := &delivery{alert: alert, notifier: n, anomalies: []*models.Anomaly{a.Clone()}}
		select {
		case o.queue <- d:
		default:
			logger.WithField("alert_id", alert.ID).Warn("Immediate send queue full, deferring alert to next flush")
			o.mu.Lock()
			o.retry = append(o.retry, d)
			o.mu.Unlock()
		}
	}
	o.updateDepth()
	return nil
}

// Batch holds the anomaly for the next combined message.
func (o *Outbox) Batch(a *models.Anomaly) {
	o.mu.Lock()
	o.batched = append(o.batched, a.Clone())
	o.mu.Unlock()
	o.updateDepth()
}

// Run drains the immediate queue until ctx is done.
func (o *Outbox) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-o.queue:
			o.deliver(ctx, d)
			o.updateDepth()
		}
	}
}

// FlushResult counts what one flush attempted.
type FlushResult struct {
	Batched int
	Sent    int
	Failed  int
	Dropped int
}

// Flush retries failed alerts and sends every batched anomaly as one
// combined alert per channel. A batch whose alert row could not be stored
// is kept only for the channels that did not get one.
func (o *Outbox) Flush(ctx context.Context) (*FlushResult, error) {
	o.mu.Lock()
	batched, partial, retry := o.batched, o.partial, o.retry
	o.batched, o.partial, o.retry = nil, nil, nil
	o.mu.Unlock()

	result := &FlushResult{}
	count := func(d *delivery, err error) {
		switch {
		case err == nil:
			result.Sent++
		case d.alert.Status == models.AlertDropped:
			result.Dropped++
		default:
			result.Failed++
		}
	}

	for _, d := range retry {
		count(d, o.deliver(ctx, d))
	}

	batches := partial
	if len(batched) > 0 {
		batches = append(batches, &pendingBatch{anomalies: batched, notifiers: o.notifiers})
	}
	for i, b := range batches {
		result.Batched += len(b.anomalies)
		if err := o.sendBatch(ctx, b, count); err != nil {
			o.mu.Lock()
			o.partial = append(append(o.partial, b), batches[i+1:]...)
			o.mu.Unlock()
			o.updateDepth()
			return result, err
		}
	}

	o.updateDepth()
	return result, nil
}

// sendBatch delivers b to each of its channels in order. On an insert
// failure b is trimmed to the channels still owed.
func (o *Outbox) sendBatch(ctx context.Context, b *pendingBatch, count func(*delivery, error)) error {
	ids := make([]string, len(b.anomalies))
	severity := models.SeverityInfo
	for i, a := range b.anomalies {
		ids[i] = a.ID
		severity = maxSeverity(severity, a.Severity)
	}

	now := o.clock.Now()
	for i, n := range b.notifiers {
		alert := models.NewAlert(n.Name(), severity, ids, now)
		if err := o.alerts.Insert(ctx, alert); err != nil {
			b.notifiers = b.notifiers[i:]
			return fmt.Errorf("insert batch alert: %w", err)
		}
		d := &delivery{alert: alert, notifier: n, anomalies: b.anomalies}
		count(d, o.deliver(ctx, d))
	}
	return nil
}

func (o *Outbox) deliver(ctx context.Context, d *delivery) error {
	sendCtx, cancel := context.WithTimeout(ctx, o.cfg.SendTimeout)
	err := d.notifier.Send(sendCtx, notify.NewMessage(d.alert, d.anomalies))
	cancel()

	now := o.clock.Now()
	alert := d.alert
	alert.Attempts++
	channel := d.notifier.Name()

	log := logger.WithFields(logrus.Fields{
		"alert_id": alert.ID,
		"channel":  channel,
		"severity": alert.Severity,
		"attempt":  alert.Attempts,
	})

	if err == nil {
		alert.Status = models.AlertSent
		alert.SentAt = &now
		alert.LastError = ""
		o.metrics.IncAlertSent(channel)
		o.publisher.AlertSent(alert)
		log.Debug("Alert delivered")
	} else {
		alert.LastError = err.Error()
		o.metrics.IncAlertFailed(channel)
		if alert.Attempts >= o.cfg.MaxAttempts {
			alert.Status = models.AlertDropped
			o.metrics.IncAlertDropped(channel)
			log.WithError(err).Error("Alert delivery failed, giving up")
		} else {
			alert.Status = models.AlertFailed
			o.mu.Lock()
			o.retry = append(o.retry, d)
			o.mu.Unlock()
			log.WithError(err).Warn("Alert delivery failed, will retry on next flush")
		}
		o.publisher.AlertFailed(alert, err)
	}

	if uerr := o.alerts.Update(ctx, alert); uerr != nil {
		log.WithError(uerr).Warn("Failed to record alert delivery state")
	}
	o.observer(ctx, err)
	return err
}

// Pending reports anomalies waiting for a flush and alerts waiting for a
// retry or the worker.
func (o *Outbox) Pending() (batched, retry, queued int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	batched = len(o.batched)
	for _, b := range o.partial {
		batched += len(b.anomalies)
	}
	return batched, len(o.retry), len(o.queue)
}

func (o *Outbox) updateDepth() {
	b, r, q := o.Pending()
	o.metrics.SetOutboxDepth(b + r + q)
}

var severityRank = map[models.Severity]int{
	models.SeverityInfo:     0,
	models.SeverityWarning:  1,
	models.SeverityCritical: 2,
}

func maxSeverity(a, b models.Severity) models.Severity {
	if severityRank[b] > severityRank[a] {
		return b
	}
	return a
}
