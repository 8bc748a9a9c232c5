package websocket

import (
	"context"

	"github.com/CIRISAI/CIRISBridge/internal/logger"
	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

// EventBridge forwards engine events to dashboard clients.
type EventBridge struct {
	hub        *Hub
	eventsChan <-chan *models.Event
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

func NewEventBridge(hub *Hub, eventsChan <-chan *models.Event) *EventBridge {
	ctx, cancel := context.WithCancel(context.Background())
	return &EventBridge{
		hub:        hub,
		eventsChan: eventsChan,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

func (b *EventBridge) Start() {
	go b.run()
	logger.WithComponent("websocket").Info("Event bridge started")
}

func (b *EventBridge) Stop() {
	b.cancel()
	<-b.done
	logger.WithComponent("websocket").Info("Event bridge stopped")
}

func (b *EventBridge) run() {
	defer close(b.done)
	for {
		select {
		case <-b.ctx.Done():
			return
		case event, ok := <-b.eventsChan:
			if !ok {
				return
			}
			if msg := FromEvent(event); msg != nil {
				b.hub.Broadcast(msg)
			}
		}
	}
}
