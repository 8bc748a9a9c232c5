package ingester

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/CIRISAI/CIRISBridge/internal/features"
	"github.com/CIRISAI/CIRISBridge/internal/logger"
	"github.com/CIRISAI/CIRISBridge/internal/metrics"
	"github.com/CIRISAI/CIRISBridge/internal/source"
	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

// Sink receives each chunk of samples in bucket order. The watermark only
// advances past a chunk after Process returns nil for it.
type Sink interface {
	Process(ctx context.Context, samples []*models.FeatureSample) error
}

type SinkFunc func(ctx context.Context, samples []*models.FeatureSample) error

func (f SinkFunc) Process(ctx context.Context, samples []*models.FeatureSample) error {
	return f(ctx, samples)
}

type Config struct {
	// Width is both the tick interval and the bucket width.
	Width        time.Duration
	Lag          time.Duration
	MaxBacklog   time.Duration
	ChunkBuckets int
	// AuthWindow is how much of a bucket's auth-failure tail is carried
	// into the next bucket.
	AuthWindow time.Duration
}

type Ingester struct {
	cfg        Config
	source     source.Source
	aggregator *features.Aggregator
	watermark  WatermarkStore
	sink       Sink
	clock      clock.Clock
	metrics    *metrics.Metrics
	known      func() []string

	mu     sync.Mutex
	tail   *features.AuthTail
	tailAt time.Time

	statusMu sync.RWMutex
	status   Status
}

// Status is the ingester's last observed state, for health reporting.
type Status struct {
	Watermark   time.Time `json:"watermark"`
	LastRun     time.Time `json:"last_run"`
	LastSuccess time.Time `json:"last_success"`
	LastError   string    `json:"last_error,omitempty"`
}

// TickResult describes what one tick processed.
type TickResult struct {
	From    time.Time
	To      time.Time
	Events  int
	Samples int
	Skipped time.Duration
}

type Option func(*Ingester)

func WithClock(c clock.Clock) Option {
	return func(i *Ingester) { i.clock = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Ingester) { i.metrics = m }
}

// WithKnownServices supplies services that get a sample for every bucket even
// when they logged nothing, typically the services of the baseline snapshot.
func WithKnownServices(fn func() []string) Option {
	return func(i *Ingester) { i.known = fn }
}

func New(cfg Config, src source.Source, agg *features.Aggregator, wm WatermarkStore, sink Sink, opts ...Option) *Ingester {
	if cfg.ChunkBuckets <= 0 {
		cfg.ChunkBuckets = 60
	}
	if cfg.MaxBacklog < cfg.Width {
		cfg.MaxBacklog = cfg.Width
	}

	i := &Ingester{
		cfg:        cfg,
		source:     src,
		aggregator: agg,
		watermark:  wm,
		sink:       sink,
		clock:      clock.New(),
		metrics:    metrics.Get(),
		known:      func() []string { return nil },
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Tick processes every complete bucket between the persisted watermark and
// now minus the configured lag. On a source failure nothing past the last
// completed chunk is marked processed, so the next tick picks up the rest.
func (i *Ingester) Tick(ctx context.Context) (*TickResult, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := i.clock.Now()
	result, err := i.tick(ctx, now)

	i.statusMu.Lock()
	defer i.statusMu.Unlock()
	i.status.LastRun = now
	if result != nil && !result.To.IsZero() {
		i.status.Watermark = result.To
	}
	if err != nil {
		i.status.LastError = err.Error()
		i.tail = nil
		return result, err
	}
	i.status.LastError = ""
	i.status.LastSuccess = now
	return result, nil
}

func (i *Ingester) tick(ctx context.Context, now time.Time) (*TickResult, error) {
	width := i.cfg.Width
	to := models.TruncateTime(now.Add(-i.cfg.Lag), width)

	wm, ok, err := i.watermark.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load watermark: %w", err)
	}
	if !ok {
		wm = to.Add(-width)
		logger.WithComponent("ingester").Infof("No watermark stored, starting at %s", wm.Format(time.RFC3339))
	}
	wm = models.TruncateTime(wm, width)

	result := &TickResult{From: wm, To: wm}
	if !to.After(wm) {
		return result, nil
	}

	if backlog := to.Sub(wm); backlog > i.cfg.MaxBacklog {
		resume := to.Add(-(i.cfg.MaxBacklog / width) * width)
		result.Skipped = resume.Sub(wm)
		logger.WithFields(logrus.Fields{
			"component":    "ingester",
			"skipped_from": wm.Format(time.RFC3339),
			"skipped_to":   resume.Format(time.RFC3339),
		}).Warnf("Backlog of %s exceeds maximum of %s, skipping oldest range", backlog, i.cfg.MaxBacklog)
		i.metrics.AddSkippedBacklog(result.Skipped)

		if err := i.watermark.Save(ctx, resume); err != nil {
			return result, fmt.Errorf("save watermark: %w", err)
		}
		wm = resume
		result.From = wm
		result.To = wm
	}

	if i.tail == nil || !i.tailAt.Equal(wm) {
		i.tail = features.NewAuthTail(i.cfg.AuthWindow)
	}

	chunk := time.Duration(i.cfg.ChunkBuckets) * width
	for start := wm; start.Before(to); {
		end := start.Add(chunk)
		if end.After(to) {
			end = to
		}

		events, err := i.source.Fetch(ctx, start, end)
		if err != nil {
			i.metrics.IncSourceFailures()
			logger.WithError(err).WithFields(logrus.Fields{
				"component": "ingester",
				"from":      start.Format(time.RFC3339),
				"to":        end.Format(time.RFC3339),
			}).Warn("Metric source unavailable, watermark not advanced")
			if !errors.Is(err, models.ErrSourceUnavailable) {
				err = fmt.Errorf("%w: %v", models.ErrSourceUnavailable, err)
			}
			return result, err
		}

		samples := i.aggregator.Aggregate(events, start, end, width, i.known())
		for _, s := range samples {
			i.tail.Apply(s)
		}

		if err := i.sink.Process(ctx, samples); err != nil {
			return result, fmt.Errorf("process [%s, %s): %w", start.Format(time.RFC3339), end.Format(time.RFC3339), err)
		}

		if err := i.watermark.Save(ctx, end); err != nil {
			return result, fmt.Errorf("save watermark: %w", err)
		}
		i.tailAt = end

		result.To = end
		result.Events += len(events)
		result.Samples += len(samples)
		i.metrics.AddEventsFetched(len(events))
		i.metrics.AddSamples(len(samples))
		i.metrics.SetWatermark(end, now)

		start = end
	}

	logger.WithComponent("ingester").Debugf("Processed %d events into %d samples for [%s, %s)",
		result.Events, result.Samples, result.From.Format(time.RFC3339), result.To.Format(time.RFC3339))
	return result, nil
}

func (i *Ingester) Status() Status {
	i.statusMu.RLock()
	defer i.statusMu.RUnlock()
	return i.status
}
