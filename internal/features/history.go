package features

import (
	"context"
	"time"

	"github.com/CIRISAI/CIRISBridge/internal/logger"
	"github.com/CIRISAI/CIRISBridge/internal/source"
	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

// History replays a long window of the metric source as feature samples,
// fetching it in bounded chunks so a week of raw events is never held at once.
type History struct {
	source     source.Source
	aggregator *Aggregator
	width      time.Duration
	chunk      time.Duration
}

func NewHistory(src source.Source, aggregator *Aggregator, width, chunk time.Duration) *History {
	if chunk < width {
		chunk = width
	}
	// Chunks hold a whole number of buckets.
	chunk = chunk / width * width
	return &History{source: src, aggregator: aggregator, width: width, chunk: chunk}
}

// Walk calls fn for every sample in [from, to), in bucket order. from and to
// are aligned down to the bucket width. A fetch error stops the walk.
func (h *History) Walk(ctx context.Context, from, to time.Time, fn func(*models.FeatureSample) error) error {
	from = models.TruncateTime(from, h.width)
	to = models.TruncateTime(to, h.width)

	seen := make(map[string]struct{})
	var known []string

	chunks := 0
	for start := from; start.Before(to); start = start.Add(h.chunk) {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := start.Add(h.chunk)
		if end.After(to) {
			end = to
		}

		events, err := h.source.Fetch(ctx, start, end)
		if err != nil {
			return err
		}

		// Services stay known once seen so their quiet buckets count as zeros.
		for _, sample := range h.aggregator.Aggregate(events, start, end, h.width, known) {
			if _, ok := seen[sample.Service]; !ok {
				seen[sample.Service] = struct{}{}
				known = append(known, sample.Service)
			}
			if err := fn(sample); err != nil {
				return err
			}
		}
		chunks++
	}

	logger.WithComponent("history").Debugf("Replayed %d chunks from %s to %s", chunks, from.Format(time.RFC3339), to.Format(time.RFC3339))
	return nil
}

func (h *History) Width() time.Duration {
	return h.width
}
