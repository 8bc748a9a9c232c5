package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/CIRISAI/CIRISBridge/internal/alerting"
	"github.com/CIRISAI/CIRISBridge/internal/detector"
	"github.com/CIRISAI/CIRISBridge/internal/events"
	"github.com/CIRISAI/CIRISBridge/internal/logger"
	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

// Submitter is the alert manager side of the pipeline.
type Submitter interface {
	Submit(ctx context.Context, candidates []*models.Candidate) (*alerting.SubmitResult, error)
}

// Pipeline is the ingester's sink. Each chunk of samples is evaluated and
// its candidates submitted before the watermark may advance past it.
type Pipeline struct {
	detector  *detector.Detector
	submitter Submitter
	publisher *events.Publisher

	mu     sync.Mutex
	status PipelineStatus
}

type PipelineStatus struct {
	LastBatch  time.Time `json:"last_batch"`
	Samples    int       `json:"samples"`
	Candidates int       `json:"candidates"`
	Created    int       `json:"created"`
	Grouped    int       `json:"grouped"`
}

func NewPipeline(d *detector.Detector, submitter Submitter, publisher *events.Publisher) *Pipeline {
	return &Pipeline{
		detector:  d,
		submitter: submitter,
		publisher: publisher,
	}
}

func (p *Pipeline) Process(ctx context.Context, samples []*models.FeatureSample) error {
	if len(samples) == 0 {
		return nil
	}

	// Step 1: Evaluate every rule against the current snapshot
	candidates := p.detector.EvaluateAll(ctx, samples)

	// Step 2: Group, persist and route
	result, err := p.submitter.Submit(ctx, candidates)
	if err != nil {
		logger.WithError(err).WithField("candidates", len(candidates)).Error("Failed to submit candidates")
		p.publisher.Error("pipeline", "candidate submission failed", err)
		return fmt.Errorf("submit candidates: %w", err)
	}

	p.mu.Lock()
	p.status.LastBatch = samples[len(samples)-1].BucketEnd()
	p.status.Samples += len(samples)
	p.status.Candidates += len(candidates)
	if result != nil {
		p.status.Created += len(result.Created)
		p.status.Grouped += len(result.Grouped)
	}
	p.mu.Unlock()

	if len(candidates) > 0 {
		logger.WithComponent("pipeline").Debugf("%d samples produced %d candidates", len(samples), len(candidates))
	}
	return nil
}

func (p *Pipeline) Status() PipelineStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}
