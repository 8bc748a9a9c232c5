package websocket

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/CIRISAI/CIRISBridge/internal/logger"
)

// Client is one dashboard connection. An empty service filter receives
// everything.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu       sync.RWMutex
	services map[string]struct{}
}

func NewClient(hub *Hub, conn *websocket.Conn, services []string) *Client {
	c := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, hub.settings.ClientBuffer),
	}
	c.setServices(services)
	return c
}

func (c *Client) setServices(services []string) {
	set := make(map[string]struct{}, len(services))
	for _, s := range services {
		if s = strings.TrimSpace(s); s != "" {
			set[s] = struct{}{}
		}
	}
	c.mu.Lock()
	c.services = set
	c.mu.Unlock()
}

// Wants reports whether a message for service reaches this client.
// Engine-wide messages have no service and reach everyone.
func (c *Client) Wants(service string) bool {
	if service == "" {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.services) == 0 {
		return true
	}
	_, ok := c.services[service]
	return ok
}

func (c *Client) Services() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.services))
	for s := range c.services {
		out = append(out, s)
	}
	return out
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	settings := c.hub.settings
	c.conn.SetReadLimit(settings.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(settings.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(settings.PongTimeout))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.WithError(err).WithField("component", "websocket").Warn("Unexpected close")
			}
			return
		}

		var msg IncomingMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			c.handleMessage(&msg)
		}
	}
}

func (c *Client) WritePump() {
	settings := c.hub.settings
	ticker := time.NewTicker(settings.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(settings.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(settings.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(msg *IncomingMessage) {
	switch msg.Type {
	case "subscribe":
		c.setServices(msg.Services)
		c.confirm("subscribed")
	case "unsubscribe":
		c.setServices(nil)
		c.confirm("unsubscribed")
	}
}

func (c *Client) confirm(action string) {
	msg := &OutgoingMessage{
		Type:      MessageTypeSubscription,
		Message:   action,
		Timestamp: time.Now().UTC(),
		Data:      map[string]interface{}{"services": c.Services()},
	}
	select {
	case c.send <- msg.JSON():
	default:
		logger.WithComponent("websocket").Warn("Client send buffer full, dropping confirmation")
	}
}

// ServeWebSocket upgrades the request. The initial filter comes from the
// comma-separated service query parameter.
func ServeWebSocket(hub *Hub) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  hub.settings.ReadBufferSize,
		WriteBufferSize: hub.settings.WriteBufferSize,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	return func(c *gin.Context) {
		if err := hub.Acquire(); err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "kind": "Unavailable"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.Release()
			if !errors.Is(err, websocket.ErrBadHandshake) {
				logger.WithError(err).WithField("component", "websocket").Warn("Upgrade failed")
			}
			return
		}

		var services []string
		if q := c.Query("service"); q != "" {
			services = strings.Split(q, ",")
		}
		client := NewClient(hub, conn, services)
		hub.Register(client)

		go client.WritePump()
		go client.ReadPump()
	}
}
