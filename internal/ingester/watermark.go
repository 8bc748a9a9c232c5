package ingester

import (
	"context"
	"time"

	"github.com/CIRISAI/CIRISBridge/internal/storage"
)

const watermarkKey = "ingest_watermark"

// WatermarkStore persists the end of the last fully processed bucket.
type WatermarkStore interface {
	Load(ctx context.Context) (time.Time, bool, error)
	Save(ctx context.Context, t time.Time) error
}

type stateWatermark struct {
	state storage.StateStore
}

// NewWatermarkStore keeps the watermark in the engine state table.
func NewWatermarkStore(state storage.StateStore) WatermarkStore {
	return &stateWatermark{state: state}
}

func (w *stateWatermark) Load(ctx context.Context) (time.Time, bool, error) {
	t, ok, err := w.state.GetTime(ctx, watermarkKey)
	if err != nil || !ok {
		return time.Time{}, ok, err
	}
	return t.UTC(), true, nil
}

func (w *stateWatermark) Save(ctx context.Context, t time.Time) error {
	return w.state.SetTime(ctx, watermarkKey, t.UTC())
}
