package events

import (
	"sync"

	"github.com/CIRISAI/CIRISBridge/internal/logger"
	"github.com/CIRISAI/CIRISBridge/internal/metrics"
	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

// EventBus fans engine events out to buffered subscriptions. A full
// subscription loses the event rather than blocking the publisher.
type EventBus struct {
	mu         sync.RWMutex
	subs       map[<-chan *models.Event]*subscription
	bufferSize int
	metrics    *metrics.Metrics
	closed     bool
}

type subscription struct {
	ch    chan *models.Event
	types map[models.EventType]struct{} // empty means every type
}

func (s *subscription) wants(t models.EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

type BusOption func(*EventBus)

func WithBusMetrics(m *metrics.Metrics) BusOption {
	return func(b *EventBus) { b.metrics = m }
}

func NewEventBus(bufferSize int, opts ...BusOption) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	b := &EventBus{
		subs:       make(map[<-chan *models.Event]*subscription),
		bufferSize: bufferSize,
		metrics:    metrics.Get(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe returns a channel receiving the given event types, or every
// type when none are given. On a closed bus the channel is already closed.
func (b *EventBus) Subscribe(types ...models.EventType) <-chan *models.Event {
	sub := &subscription{
		ch:    make(chan *models.Event, b.bufferSize),
		types: make(map[models.EventType]struct{}, len(types)),
	}
	for _, t := range types {
		sub.types[t] = struct{}{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub.ch
	}
	b.subs[sub.ch] = sub
	return sub.ch
}

func (b *EventBus) SubscribeAll() <-chan *models.Event {
	return b.Subscribe()
}

// Unsubscribe stops delivery to ch and closes it. Unknown channels are
// ignored.
func (b *EventBus) Unsubscribe(ch <-chan *models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[ch]
	if !ok {
		return
	}
	delete(b.subs, ch)
	close(sub.ch)
}

func (b *EventBus) Publish(event *models.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subs {
		if !sub.wants(event.Type) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			b.metrics.IncEventDropped(string(event.Type))
			logger.WithField("event_type", event.Type).Warn("Event subscriber full, dropping event")
		}
	}
}

func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, sub := range b.subs {
		close(sub.ch)
	}
	b.subs = nil
}
