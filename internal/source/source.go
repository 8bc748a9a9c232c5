package source

import (
	"context"
	"errors"
	"time"

	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

var ErrInvalidResponse = errors.New("invalid response from metric source")

// Source reads per-request samples from the metric store. Fetch covers the
// half-open range [from, to) and returns events in timestamp order.
type Source interface {
	Fetch(ctx context.Context, from, to time.Time) ([]models.RawEvent, error)

	// HealthCheck verifies the source can reach its backing store.
	HealthCheck(ctx context.Context) error

	// Close releases any resources held by the source.
	Close() error
}
