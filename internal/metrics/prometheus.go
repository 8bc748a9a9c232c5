package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "anomaly_engine"

// Metrics holds the engine's self-observability collectors on a private
// registry, so tests can build independent instances.
type Metrics struct {
	registry *prometheus.Registry

	// Ingest
	samplesIngested prometheus.Counter
	eventsFetched   prometheus.Counter
	sourceFailures  prometheus.Counter
	watermark       prometheus.Gauge
	ingestLag       prometheus.Gauge
	skippedBacklog  prometheus.Counter

	// Detection
	ruleEvaluations *prometheus.CounterVec
	ruleErrors      *prometheus.CounterVec
	ruleFired       *prometheus.CounterVec
	ruleFPRatio     *prometheus.GaugeVec

	// Alerting
	anomaliesCreated *prometheus.CounterVec
	anomaliesGrouped *prometheus.CounterVec
	alertsSent       *prometheus.CounterVec
	alertsFailed     *prometheus.CounterVec
	alertsDropped    *prometheus.CounterVec
	outboxDepth      prometheus.Gauge

	// Baselines and model
	baselineVersion prometheus.Gauge
	baselineKeys    prometheus.Gauge
	modelTraining   *prometheus.CounterVec

	// Runtime
	taskDuration        *prometheus.HistogramVec
	taskFailures        *prometheus.CounterVec
	circuitBreakerState *prometheus.GaugeVec
	eventsDropped       *prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Get returns the process-wide metrics instance.
func Get() *Metrics {
	once.Do(func() {
		instance = New()
	})
	return instance
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		samplesIngested: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "samples_ingested_total",
			Help: "Feature samples handed to the detector.",
		}),
		eventsFetched: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_fetched_total",
			Help: "Raw request events read from the metric source.",
		}),
		sourceFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "source_failures_total",
			Help: "Ticks skipped because the metric source was unavailable.",
		}),
		watermark: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "ingest_watermark_seconds",
			Help: "Unix time up to which buckets have been processed.",
		}),
		ingestLag: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "ingest_lag_seconds",
			Help: "Distance between now and the ingest watermark.",
		}),
		skippedBacklog: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ingest_skipped_seconds_total",
			Help: "Backlog dropped because it exceeded the maximum catch-up window.",
		}),

		ruleEvaluations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rule_evaluations_total",
			Help: "Rule evaluations by rule.",
		}, []string{"rule"}),
		ruleErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rule_errors_total",
			Help: "Rule evaluations that failed and were treated as not firing.",
		}, []string{"rule"}),
		ruleFired: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rule_fired_total",
			Help: "Candidate anomalies produced, by rule.",
		}, []string{"rule"}),
		ruleFPRatio: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "rule_false_positive_ratio",
			Help: "False-positive ratio over the feedback window, by rule.",
		}, []string{"rule"}),

		anomaliesCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "anomalies_created_total",
			Help: "New anomalies stored.",
		}, []string{"rule", "severity"}),
		anomaliesGrouped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "anomalies_grouped_total",
			Help: "Candidates merged into an existing open anomaly.",
		}, []string{"rule"}),
		alertsSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "alerts_sent_total",
			Help: "Alerts delivered, by channel.",
		}, []string{"channel"}),
		alertsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "alerts_failed_total",
			Help: "Alert delivery attempts that failed, by channel.",
		}, []string{"channel"}),
		alertsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "alerts_dropped_total",
			Help: "Alerts abandoned after the maximum number of attempts.",
		}, []string{"channel"}),
		outboxDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "outbox_depth",
			Help: "Alerts waiting for delivery.",
		}),

		baselineVersion: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "baseline_snapshot_version",
			Help: "Version of the baseline snapshot in use.",
		}),
		baselineKeys: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "baseline_keys",
			Help: "Baseline cells in the current snapshot.",
		}),
		modelTraining: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "model_training_total",
			Help: "Multivariate model training runs by result.",
		}, []string{"result"}),

		taskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "task_duration_seconds",
			Help:    "Scheduled task run time.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"task"}),
		taskFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "task_failures_total",
			Help: "Scheduled task runs that returned an error.",
		}, []string{"task"}),
		circuitBreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "circuit_breaker_state",
			Help: "Circuit breaker state: 0 closed, 1 open, 2 half-open.",
		}, []string{"name"}),
		eventsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_dropped_total",
			Help: "Bus events lost because a subscriber's buffer was full.",
		}, []string{"event_type"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) AddSamples(n int) {
	m.samplesIngested.Add(float64(n))
}

func (m *Metrics) AddEventsFetched(n int) {
	m.eventsFetched.Add(float64(n))
}

func (m *Metrics) IncSourceFailures() {
	m.sourceFailures.Inc()
}

func (m *Metrics) SetWatermark(t, now time.Time) {
	m.watermark.Set(float64(t.Unix()))
	m.ingestLag.Set(now.Sub(t).Seconds())
}

func (m *Metrics) AddSkippedBacklog(d time.Duration) {
	m.skippedBacklog.Add(d.Seconds())
}

func (m *Metrics) IncRuleEvaluation(rule string) {
	m.ruleEvaluations.WithLabelValues(rule).Inc()
}

func (m *Metrics) IncRuleError(rule string) {
	m.ruleErrors.WithLabelValues(rule).Inc()
}

func (m *Metrics) IncRuleFired(rule string) {
	m.ruleFired.WithLabelValues(rule).Inc()
}

func (m *Metrics) SetRuleFalsePositiveRatio(rule string, ratio float64) {
	m.ruleFPRatio.WithLabelValues(rule).Set(ratio)
}

func (m *Metrics) IncAnomalyCreated(rule, severity string) {
	m.anomaliesCreated.WithLabelValues(rule, severity).Inc()
}

func (m *Metrics) IncAnomalyGrouped(rule string) {
	m.anomaliesGrouped.WithLabelValues(rule).Inc()
}

func (m *Metrics) IncAlertSent(channel string) {
	m.alertsSent.WithLabelValues(channel).Inc()
}

func (m *Metrics) IncAlertFailed(channel string) {
	m.alertsFailed.WithLabelValues(channel).Inc()
}

func (m *Metrics) IncAlertDropped(channel string) {
	m.alertsDropped.WithLabelValues(channel).Inc()
}

func (m *Metrics) SetOutboxDepth(n int) {
	m.outboxDepth.Set(float64(n))
}

func (m *Metrics) SetBaselineSnapshot(version int64, keys int) {
	m.baselineVersion.Set(float64(version))
	m.baselineKeys.Set(float64(keys))
}

func (m *Metrics) IncModelTraining(result string) {
	m.modelTraining.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveTask(task string, d time.Duration, err error) {
	m.taskDuration.WithLabelValues(task).Observe(d.Seconds())
	if err != nil {
		m.taskFailures.WithLabelValues(task).Inc()
	}
}

func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	m.circuitBreakerState.WithLabelValues(name).Set(float64(state))
}

func (m *Metrics) IncEventDropped(eventType string) {
	m.eventsDropped.WithLabelValues(eventType).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
