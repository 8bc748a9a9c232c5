package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/CIRISAI/CIRISBridge/internal/alerting"
	"github.com/CIRISAI/CIRISBridge/internal/baseline"
	"github.com/CIRISAI/CIRISBridge/internal/detector"
	"github.com/CIRISAI/CIRISBridge/internal/events"
	"github.com/CIRISAI/CIRISBridge/internal/features"
	"github.com/CIRISAI/CIRISBridge/internal/ingester"
	"github.com/CIRISAI/CIRISBridge/internal/logger"
	"github.com/CIRISAI/CIRISBridge/internal/metrics"
	"github.com/CIRISAI/CIRISBridge/internal/notify"
	"github.com/CIRISAI/CIRISBridge/internal/outlier"
	"github.com/CIRISAI/CIRISBridge/internal/resilience"
	"github.com/CIRISAI/CIRISBridge/internal/scheduler"
	"github.com/CIRISAI/CIRISBridge/internal/source"
	"github.com/CIRISAI/CIRISBridge/internal/storage"
	"github.com/CIRISAI/CIRISBridge/internal/storage/memory"
	"github.com/CIRISAI/CIRISBridge/pkg/config"
	"github.com/CIRISAI/CIRISBridge/pkg/database"
	"github.com/CIRISAI/CIRISBridge/pkg/database/queries"
	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

// Task names registered with the scheduler.
const (
	TaskIngest     = "ingest"
	TaskBaseline   = "baseline"
	TaskModel      = "model"
	TaskAlertFlush = "alert_flush"
	TaskRuleStats  = "rule_stats"
	TaskRetention  = "retention"
)

type Orchestrator struct {
	config  *config.Config
	db      *database.DB
	clock   clock.Clock
	metrics *metrics.Metrics

	stores      *storage.Stores
	source      source.Source
	resilient   *source.ResilientSource
	eventBus    *events.EventBus
	eventLogger *events.EventLogger
	publisher   *events.Publisher

	baselines  *baseline.Store
	recomputer *baseline.Recomputer
	detector   *detector.Detector
	holder     *outlier.Holder
	trainer    *outlier.Trainer
	outbox     *alerting.Outbox
	manager    *alerting.Manager
	failures   *alerting.FailureTracker
	purger     *alerting.Purger
	pipeline   *Pipeline
	ingester   *ingester.Ingester
	scheduler  *scheduler.Scheduler

	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
	outboxDone chan struct{}
}

type Option func(*Orchestrator)

func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithSource replaces the configured metric source. It is still wrapped in
// the retrying circuit breaker.
func WithSource(s source.Source) Option {
	return func(o *Orchestrator) { o.source = s }
}

func WithStores(s *storage.Stores) Option {
	return func(o *Orchestrator) { o.stores = s }
}

// New builds every engine component from cfg. db may be nil when neither the
// stores nor the source use postgres.
func New(cfg *config.Config, db *database.DB, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		config:  cfg,
		db:      db,
		clock:   clock.New(),
		metrics: metrics.Get(),
	}
	for _, opt := range opts {
		opt(o)
	}

	loc, err := time.LoadLocation(cfg.Baseline.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: baseline timezone %q: %v", models.ErrInvalidInput, cfg.Baseline.Timezone, err)
	}

	if o.stores == nil {
		if o.stores, err = buildStores(cfg.Storage, db); err != nil {
			return nil, err
		}
	}
	if o.source == nil {
		if o.source, err = buildSource(cfg.Source, db); err != nil {
			return nil, err
		}
	}

	o.resilient = source.NewResilientSource(source.ResilientSourceConfig{
		Source:        o.source,
		MaxFailures:   cfg.Source.CircuitBreaker.MaxFailures,
		BreakerReset:  cfg.Source.CircuitBreaker.Timeout,
		Timeout:       cfg.Source.Timeout,
		RetryAttempts: cfg.Source.RetryAttempts,
		RetryDelay:    cfg.Source.RetryDelay,
		Clock:         o.clock,
		OnStateChange: func(name string, from, to resilience.State) {
			o.metrics.SetCircuitBreakerState(name, int(to))
		},
	})

	o.eventBus = events.NewEventBus(cfg.Events.BufferSize, events.WithBusMetrics(o.metrics))
	o.eventLogger = events.NewEventLogger(o.eventBus.SubscribeAll())
	o.publisher = events.NewPublisher(o.eventBus)

	width := cfg.Ingester.Interval()
	aggregator := features.NewAggregator(features.NewHasher(cfg.Privacy.HashKey, cfg.Privacy.HashLength, cfg.Privacy.IPHashing))
	history := features.NewHistory(o.resilient, aggregator, width, cfg.Baseline.ChunkSize)

	o.baselines = baseline.NewStore(o.stores.Baselines, loc)
	o.recomputer = baseline.NewRecomputer(history, o.baselines, o.stores.Baselines, cfg.Baseline.Window(),
		baseline.WithClock(o.clock),
		baseline.WithMetrics(o.metrics),
		baseline.WithPublisher(o.publisher))

	weights := detector.NewWeights()
	detectorOpts := []detector.Option{detector.WithWeights(weights), detector.WithMetrics(o.metrics)}
	if cfg.Model.Enabled {
		o.holder = outlier.NewHolder()
		o.trainer = outlier.NewTrainer(outlier.TrainerConfig{
			Window: cfg.Baseline.Window(),
			Forest: outlier.ForestConfig{
				NumTrees:      cfg.Model.NumTrees,
				SubSampleSize: cfg.Model.SubSampleSize,
				MaxDepth:      cfg.Model.MaxDepth,
			},
			Percentile: cfg.Model.Percentile,
			MinSamples: cfg.Model.MinSamples,
			Seed:       cfg.Model.Seed,
		}, history, o.holder,
			outlier.WithClock(o.clock),
			outlier.WithMetrics(o.metrics),
			outlier.WithPublisher(o.publisher))
		detectorOpts = append(detectorOpts, detector.WithModel(o.holder))
	}
	o.detector = detector.New(detector.Config{
		Sigma:                cfg.Detector.SigmaThreshold,
		VolumeUpperSigma:     cfg.Detector.VolumeUpperSigma,
		VolumeLowerSigma:     cfg.Detector.VolumeLowerSigma,
		LatencyRatio:         cfg.Detector.LatencyRatio,
		AuthFailureThreshold: cfg.Detector.AuthFailureThreshold,
		AuthFailureWindow:    cfg.Detector.AuthFailureWindow,
		MinSamples:           cfg.Baseline.MinSamples,
		EnableGeographicRule: cfg.Detector.EnableGeographicRule,
	}, o.baselines, detectorOpts...)

	notifiers, err := buildNotifiers(cfg.Notifier)
	if err != nil {
		return nil, err
	}
	o.outbox = alerting.NewOutbox(alerting.OutboxConfig{
		MaxAttempts: cfg.Alerting.MaxDeliveryAttempts,
		SendTimeout: cfg.Alerting.SendTimeout,
		QueueSize:   cfg.Alerting.QueueSize,
	}, notifiers, o.stores.Alerts,
		alerting.WithOutboxClock(o.clock),
		alerting.WithOutboxMetrics(o.metrics),
		alerting.WithOutboxPublisher(o.publisher),
		alerting.WithDeliveryObserver(func(ctx context.Context, err error) {
			o.failures.Record(ctx, "notifier", err)
		}))

	o.manager = alerting.NewManager(alerting.Config{
		GroupingWindow:     cfg.Alerting.GroupingWindow,
		CriticalImmediate:  cfg.Alerting.CriticalImmediate,
		FalsePositiveRatio: cfg.Alerting.FalsePositiveRatio,
		FeedbackWindow:     cfg.Alerting.FeedbackWindow,
	}, o.stores, o.outbox,
		alerting.WithClock(o.clock),
		alerting.WithMetrics(o.metrics),
		alerting.WithSink(o.publisher),
		alerting.WithWeights(weights))
	o.failures = alerting.NewFailureTracker(cfg.Alerting.MetaAlertThreshold, o.manager, o.clock)
	o.purger = alerting.NewPurger(o.stores, cfg.Retention.Period(), o.clock)

	o.pipeline = NewPipeline(o.detector, o.manager, o.publisher)
	o.ingester = ingester.New(ingester.Config{
		Width:        width,
		Lag:          cfg.Ingester.Lag,
		MaxBacklog:   cfg.Ingester.MaxBacklog,
		ChunkBuckets: cfg.Ingester.ChunkBuckets,
		AuthWindow:   cfg.Detector.AuthFailureWindow,
	}, o.resilient, aggregator, ingester.NewWatermarkStore(o.stores.State), o.pipeline,
		ingester.WithClock(o.clock),
		ingester.WithMetrics(o.metrics),
		ingester.WithKnownServices(func() []string { return o.baselines.Current().Services() }))

	o.scheduler = scheduler.New(
		scheduler.WithClock(o.clock),
		scheduler.WithMetrics(o.metrics),
		scheduler.WithResultHook(func(ctx context.Context, task string, err error) {
			o.failures.Record(ctx, task, err)
		}))

	return o, nil
}

func buildStores(cfg config.StorageConfig, db *database.DB) (*storage.Stores, error) {
	switch cfg.Driver {
	case "", "memory":
		return memory.New(), nil
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("%w: postgres storage needs a database connection", models.ErrInvalidInput)
		}
		return &storage.Stores{
			Anomalies: queries.NewAnomalyRepository(db.DB),
			Alerts:    queries.NewAlertRepository(db.DB),
			Feedback:  queries.NewFeedbackRepository(db.DB),
			Baselines: queries.NewBaselineRepository(db.DB),
			State:     queries.NewStateRepository(db.DB),
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown storage driver %q", models.ErrInvalidInput, cfg.Driver)
	}
}

func buildSource(cfg config.SourceConfig, db *database.DB) (source.Source, error) {
	switch cfg.Type {
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("%w: postgres source needs a database connection", models.ErrInvalidInput)
		}
		return source.NewPostgresSource(db.DB, cfg.Table), nil
	case "http":
		return source.NewHTTPSource(source.HTTPSourceConfig{Endpoint: cfg.Endpoint, Timeout: cfg.Timeout}), nil
	case "", "memory":
		return source.NewMemorySource(), nil
	default:
		return nil, fmt.Errorf("%w: unknown source type %q", models.ErrInvalidInput, cfg.Type)
	}
}

func buildNotifiers(cfg config.NotifierConfig) ([]notify.Notifier, error) {
	var notifiers []notify.Notifier
	if cfg.Slack.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(notify.SlackConfig{
			WebhookURL: cfg.Slack.WebhookURL,
			Channel:    cfg.Slack.Channel,
			Username:   cfg.Slack.Username,
		}))
	}
	if cfg.Webhook.URL != "" {
		n, err := notify.NewWebhookNotifier(notify.WebhookConfig{
			URL:      cfg.Webhook.URL,
			Template: cfg.Webhook.Template,
			Timeout:  cfg.Webhook.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("webhook notifier: %w", err)
		}
		notifiers = append(notifiers, n)
	}
	if cfg.Email.Host != "" && len(cfg.Email.To) > 0 {
		notifiers = append(notifiers, notify.NewEmailNotifier(notify.EmailConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			To:       cfg.Email.To,
		}))
	}
	return notifiers, nil
}

func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return nil
	}

	logger.Info("Orchestrator starting")

	if err := o.baselines.Load(ctx); err != nil {
		logger.WithError(err).Warn("Failed to load persisted baselines, starting empty")
	}

	if err := o.registerTasks(); err != nil {
		return err
	}

	ctx, o.cancel = context.WithCancel(ctx)
	o.eventLogger.Start()

	o.outboxDone = make(chan struct{})
	go func() {
		defer close(o.outboxDone)
		o.outbox.Run(ctx)
	}()

	if err := o.scheduler.Start(ctx); err != nil {
		o.cancel()
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	o.running = true
	logger.WithFields(logrus.Fields{
		"channels":         o.outbox.Channels(),
		"baseline_version": o.baselines.Current().Version,
		"model_enabled":    o.holder != nil,
	}).Info("Orchestrator started")
	return nil
}

func (o *Orchestrator) registerTasks() error {
	cfg := o.config
	tasks := []scheduler.Task{
		{
			Name:       TaskIngest,
			Interval:   cfg.Ingester.Interval(),
			RunOnStart: true,
			Run:        o.runIngest,
		},
		{
			Name:     TaskBaseline,
			Interval: cfg.Baseline.RecomputeInterval,
			Timeout:  cfg.Baseline.Timeout,
			// A persisted snapshot is good enough to start with.
			RunOnStart: o.baselines.Current().Version == 0,
			Run: func(ctx context.Context) error {
				_, err := o.recomputer.Recompute(ctx)
				return err
			},
		},
		{
			Name:     TaskAlertFlush,
			Interval: cfg.Alerting.Batch(),
			Run: func(ctx context.Context) error {
				_, err := o.outbox.Flush(ctx)
				return err
			},
		},
		{
			Name:       TaskRuleStats,
			Interval:   cfg.Alerting.RuleStatsInterval,
			RunOnStart: true,
			Run: func(ctx context.Context) error {
				_, err := o.manager.RecomputeRuleStats(ctx)
				return err
			},
		},
		{
			Name:     TaskRetention,
			Interval: cfg.Retention.PurgeInterval,
			Run: func(ctx context.Context) error {
				_, err := o.purger.Purge(ctx)
				return err
			},
		},
	}
	if o.trainer != nil {
		tasks = append(tasks, scheduler.Task{
			Name:       TaskModel,
			Interval:   cfg.Model.RetrainInterval,
			Timeout:    cfg.Model.Timeout,
			RunOnStart: true,
			Run: func(ctx context.Context) error {
				_, err := o.trainer.Train(ctx)
				return err
			},
		})
	}

	for _, t := range tasks {
		if err := o.scheduler.Add(t); err != nil {
			return fmt.Errorf("register task %s: %w", t.Name, err)
		}
	}
	return nil
}

func (o *Orchestrator) runIngest(ctx context.Context) error {
	result, err := o.ingester.Tick(ctx)
	if err != nil {
		o.publisher.Error("ingester", "ingest tick failed", err)
		return err
	}
	if result.To.After(result.From) {
		o.publisher.IngestCompleted(result.From.Format(time.RFC3339), result.To.Format(time.RFC3339), result.Samples)
	}
	return nil
}

func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	o.mu.Unlock()

	logger.Info("Orchestrator stopping")

	o.scheduler.Stop()

	timeout := o.config.App.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	flushCtx, cancel := context.WithTimeout(context.Background(), timeout)
	if res, err := o.outbox.Flush(flushCtx); err != nil {
		logger.WithError(err).Warn("Final alert flush failed")
	} else if res.Sent > 0 {
		logger.Infof("Flushed %d pending alerts on shutdown", res.Sent)
	}
	cancel()

	o.cancel()
	<-o.outboxDone

	o.eventLogger.Stop()
	o.eventBus.Close()
	if err := o.resilient.Close(); err != nil {
		logger.WithError(err).Warn("Failed to close metric source")
	}

	logger.Info("Orchestrator stopped")
}

// TriggerBaselineRecompute requests an out-of-band baseline recompute.
func (o *Orchestrator) TriggerBaselineRecompute() error {
	return o.scheduler.Trigger(TaskBaseline)
}

// Ready reports whether the database is reachable. The metric source is not
// probed.
func (o *Orchestrator) Ready(ctx context.Context) error {
	if o.db != nil {
		if err := o.db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	return nil
}

type BaselineStatus struct {
	Version    int64     `json:"version"`
	ComputedAt time.Time `json:"computed_at"`
	Keys       int       `json:"keys"`
	Services   int       `json:"services"`
}

type OutboxStatus struct {
	Channels []string `json:"channels"`
	Batched  int      `json:"batched"`
	Retry    int      `json:"retry"`
	Queued   int      `json:"queued"`
}

type Status struct {
	Running       bool                   `json:"running"`
	Ingest        ingester.Status        `json:"ingest"`
	Pipeline      PipelineStatus         `json:"pipeline"`
	Baseline      BaselineStatus         `json:"baseline"`
	Model         []outlier.ServiceInfo  `json:"model,omitempty"`
	Outbox        OutboxStatus           `json:"outbox"`
	SourceCircuit string                 `json:"source_circuit"`
	Tasks         []scheduler.TaskStatus `json:"tasks"`
}

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	running := o.running
	o.mu.Unlock()

	snap := o.baselines.Current()
	batched, retry, queued := o.outbox.Pending()
	st := Status{
		Running:  running,
		Ingest:   o.ingester.Status(),
		Pipeline: o.pipeline.Status(),
		Baseline: BaselineStatus{
			Version:    snap.Version,
			ComputedAt: snap.ComputedAt,
			Keys:       snap.Len(),
			Services:   len(snap.Services()),
		},
		Outbox: OutboxStatus{
			Channels: o.outbox.Channels(),
			Batched:  batched,
			Retry:    retry,
			Queued:   queued,
		},
		SourceCircuit: o.resilient.CircuitState().String(),
		Tasks:         o.scheduler.Status(),
	}
	if o.holder != nil {
		if m := o.holder.Current(); m != nil {
			st.Model = m.Services()
		}
	}
	return st
}

func (o *Orchestrator) Manager() *alerting.Manager { return o.manager }
func (o *Orchestrator) Detector() *detector.Detector { return o.detector }
func (o *Orchestrator) Baselines() *baseline.Store { return o.baselines }
func (o *Orchestrator) Ingester() *ingester.Ingester { return o.ingester }
func (o *Orchestrator) Stores() *storage.Stores { return o.stores }
func (o *Orchestrator) Metrics() *metrics.Metrics { return o.metrics }

func (o *Orchestrator) SubscribeAllEvents() <-chan *models.Event {
	return o.eventBus.SubscribeAll()
}

func (o *Orchestrator) UnsubscribeEvents(ch <-chan *models.Event) {
	o.eventBus.Unsubscribe(ch)
}
