package outlier

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/CIRISAI/CIRISBridge/internal/events"
	"github.com/CIRISAI/CIRISBridge/internal/features"
	"github.com/CIRISAI/CIRISBridge/internal/logger"
	"github.com/CIRISAI/CIRISBridge/internal/metrics"
	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

type TrainerConfig struct {
	Window     time.Duration
	Forest     ForestConfig
	Percentile float64
	MinSamples int
	// Seed fixes the forests' randomness; zero seeds from the clock.
	Seed int64
}

type Trainer struct {
	cfg       TrainerConfig
	history   *features.History
	holder    *Holder
	clock     clock.Clock
	metrics   *metrics.Metrics
	publisher *events.Publisher

	mu sync.Mutex
}

type TrainerOption func(*Trainer)

func WithClock(c clock.Clock) TrainerOption {
	return func(t *Trainer) { t.clock = c }
}

func WithMetrics(m *metrics.Metrics) TrainerOption {
	return func(t *Trainer) { t.metrics = m }
}

func WithPublisher(p *events.Publisher) TrainerOption {
	return func(t *Trainer) { t.publisher = p }
}

func NewTrainer(cfg TrainerConfig, history *features.History, holder *Holder, opts ...TrainerOption) *Trainer {
	if cfg.Percentile <= 0 || cfg.Percentile > 100 {
		cfg.Percentile = 99
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 256
	}
	if cfg.Window <= 0 {
		cfg.Window = 7 * 24 * time.Hour
	}

	t := &Trainer{
		cfg:     cfg,
		history: history,
		holder:  holder,
		clock:   clock.New(),
		metrics: metrics.Get(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Train fits a forest per service on the trailing window and swaps the model
// into the holder. On failure the holder keeps serving the previous model.
func (t *Trainer) Train(ctx context.Context) (*Model, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, err := t.train(ctx)
	if err != nil {
		t.metrics.IncModelTraining("failure")
		return nil, err
	}

	t.holder.Store(m)
	t.metrics.IncModelTraining("success")

	var names []string
	total := 0
	for _, info := range m.Services() {
		names = append(names, info.Service)
		total += info.Samples
	}
	t.publisher.ModelTrained(names, total)
	logger.WithFields(logrus.Fields{
		"component": "outlier",
		"services":  len(names),
		"samples":   total,
	}).Info("Multivariate model trained")
	return m, nil
}

func (t *Trainer) train(ctx context.Context) (*Model, error) {
	now := t.clock.Now()
	to := models.TruncateTime(now, t.history.Width())
	from := to.Add(-t.cfg.Window)

	vectors := make(map[string][][]float64)
	err := t.history.Walk(ctx, from, to, func(s *models.FeatureSample) error {
		vectors[s.Service] = append(vectors[s.Service], s.Vector())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: read training window: %v", models.ErrModelTraining, err)
	}

	services := make([]string, 0, len(vectors))
	for svc, data := range vectors {
		if len(data) < t.cfg.MinSamples {
			logger.WithService(svc).Debugf("Skipping model training with %d samples, need %d", len(data), t.cfg.MinSamples)
			continue
		}
		services = append(services, svc)
	}
	if len(services) == 0 {
		return nil, fmt.Errorf("%w: no service has %d samples", models.ErrModelTraining, t.cfg.MinSamples)
	}
	sort.Strings(services)

	seed := t.cfg.Seed
	if seed == 0 {
		seed = now.UnixNano()
	}

	trained := make([]serviceModel, len(services))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, svc := range services {
		i, svc := i, svc
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(seed ^ int64(xxhash.Sum64String(svc))))
			trained[i] = fit(vectors[svc], t.cfg.Forest, t.cfg.Percentile, rng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrModelTraining, err)
	}

	m := &Model{TrainedAt: now, Percentile: t.cfg.Percentile, services: make(map[string]serviceModel, len(services))}
	for i, svc := range services {
		m.services[svc] = trained[i]
	}
	return m, nil
}

// fit builds a forest and sets the threshold at the given percentile of the
// training data's own scores.
func fit(data [][]float64, cfg ForestConfig, percentile float64, rng *rand.Rand) serviceModel {
	forest := BuildForest(data, cfg, rng)
	scores := make([]float64, len(data))
	for i, x := range data {
		scores[i] = forest.Score(x)
	}
	return serviceModel{
		forest:    forest,
		threshold: features.Percentile(scores, percentile),
		samples:   len(data),
	}
}
