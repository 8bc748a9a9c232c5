package source

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

// MemorySource serves events held in memory. Tests use SetFailure to
// simulate an unreachable store.
type MemorySource struct {
	mu      sync.RWMutex
	events  []models.RawEvent
	failErr error
	fetches int
}

func NewMemorySource(events ...models.RawEvent) *MemorySource {
	s := &MemorySource{}
	s.Add(events...)
	return s
}

func (s *MemorySource) Add(events ...models.RawEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, events...)
	sort.SliceStable(s.events, func(i, j int) bool {
		return s.events[i].Timestamp.Before(s.events[j].Timestamp)
	})
}

func (s *MemorySource) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

// Fetches reports how many Fetch calls were made.
func (s *MemorySource) Fetches() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetches
}

func (s *MemorySource) Fetch(ctx context.Context, from, to time.Time) ([]models.RawEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fetches++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.failErr != nil {
		return nil, s.failErr
	}

	var out []models.RawEvent
	for _, e := range s.events {
		if !e.Timestamp.Before(from) && e.Timestamp.Before(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemorySource) HealthCheck(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failErr
}

func (s *MemorySource) Close() error {
	return nil
}
