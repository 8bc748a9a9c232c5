package websocket

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/CIRISAI/CIRISBridge/internal/logger"
	"github.com/CIRISAI/CIRISBridge/pkg/config"
)

var ErrTooManyConnections = errors.New("too many websocket connections")

type Settings struct {
	MaxConnections  int
	PingInterval    time.Duration
	WriteTimeout    time.Duration
	PongTimeout     time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	BroadcastBuffer int
	ClientBuffer    int
}

func NewSettings(cfg *config.WebSocketConfig) Settings {
	s := Settings{
		MaxConnections:  1000,
		PingInterval:    30 * time.Second,
		WriteTimeout:    10 * time.Second,
		PongTimeout:     60 * time.Second,
		MaxMessageSize:  512,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		BroadcastBuffer: 256,
		ClientBuffer:    256,
	}
	if cfg == nil {
		return s
	}
	if cfg.MaxConnections > 0 {
		s.MaxConnections = cfg.MaxConnections
	}
	if cfg.PingInterval > 0 {
		s.PingInterval = cfg.PingInterval
	}
	if cfg.WriteTimeout > 0 {
		s.WriteTimeout = cfg.WriteTimeout
	}
	if cfg.PongTimeout > 0 {
		s.PongTimeout = cfg.PongTimeout
	}
	if cfg.MaxMessageSize > 0 {
		s.MaxMessageSize = cfg.MaxMessageSize
	}
	if cfg.ReadBufferSize > 0 {
		s.ReadBufferSize = cfg.ReadBufferSize
	}
	if cfg.WriteBufferSize > 0 {
		s.WriteBufferSize = cfg.WriteBufferSize
	}
	if cfg.BroadcastBuffer > 0 {
		s.BroadcastBuffer = cfg.BroadcastBuffer
	}
	if cfg.ClientBuffer > 0 {
		s.ClientBuffer = cfg.ClientBuffer
	}
	// Pings must arrive before the peer's read deadline.
	if s.PingInterval >= s.PongTimeout {
		s.PingInterval = s.PongTimeout * 9 / 10
	}
	return s
}

type Hub struct {
	settings Settings
	slots    *semaphore.Weighted

	clients    map[*Client]bool
	broadcast  chan *OutgoingMessage
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
}

func NewHub(cfg *config.WebSocketConfig) *Hub {
	settings := NewSettings(cfg)
	return &Hub{
		settings:   settings,
		slots:      semaphore.NewWeighted(int64(settings.MaxConnections)),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *OutgoingMessage, settings.BroadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Settings() Settings {
	return h.settings
}

// Acquire reserves a connection slot; Release returns it.
func (h *Hub) Acquire() error {
	if !h.slots.TryAcquire(1) {
		return ErrTooManyConnections
	}
	return nil
}

func (h *Hub) Release() {
	h.slots.Release(1)
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				h.remove(client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			logger.WithComponent("websocket").Infof("Client connected (total: %d)", count)

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			count := len(h.clients)
			h.mu.Unlock()
			logger.WithComponent("websocket").Infof("Client disconnected (total: %d)", count)

		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

// remove must be called with mu held.
func (h *Hub) remove(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	h.Release()
}

func (h *Hub) deliver(message *OutgoingMessage) {
	data := message.JSON()

	var slow []*Client
	h.mu.RLock()
	for client := range h.clients {
		if !client.Wants(message.Service) {
			continue
		}
		select {
		case client.send <- data:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	if len(slow) == 0 {
		return
	}
	h.mu.Lock()
	for _, client := range slow {
		h.remove(client)
	}
	h.mu.Unlock()
	logger.WithComponent("websocket").Warnf("Dropped %d slow clients", len(slow))
}

func (h *Hub) Broadcast(message *OutgoingMessage) {
	select {
	case h.broadcast <- message:
	default:
		logger.WithComponent("websocket").Warn("Broadcast channel full, dropping message")
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}
