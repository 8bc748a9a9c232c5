package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CIRISAI/CIRISBridge/pkg/config"
	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

func newTestServer(t *testing.T, cfg *config.WebSocketConfig) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := NewHub(cfg)
	go hub.Run()

	r := gin.New()
	r.GET("/ws", ServeWebSocket(hub))
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		hub.Stop()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) *OutgoingMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg OutgoingMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return &msg
}

func TestHub_FiltersByService(t *testing.T) {
	hub, srv := newTestServer(t, nil)

	authOnly := dial(t, srv, "?service=auth")
	everything := dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 10*time.Millisecond)

	hub.Broadcast(FromEvent(models.NewEvent(models.EventTypeAnomalyCreated, "checkout", "volume drop")))
	hub.Broadcast(FromEvent(models.NewEvent(models.EventTypeAnomalyCreated, "auth", "auth burst")))

	msg := read(t, authOnly)
	assert.Equal(t, MessageTypeAnomaly, msg.Type)
	assert.Equal(t, "auth", msg.Service)

	assert.Equal(t, "checkout", read(t, everything).Service)
	assert.Equal(t, "auth", read(t, everything).Service)
}

func TestHub_SubscribeChangesFilter(t *testing.T) {
	hub, srv := newTestServer(t, nil)

	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(IncomingMessage{Type: "subscribe", Services: []string{"billing"}}))
	confirm := read(t, conn)
	assert.Equal(t, MessageTypeSubscription, confirm.Type)
	assert.Equal(t, "subscribed", confirm.Message)

	hub.Broadcast(FromEvent(models.NewEvent(models.EventTypeAnomalyCreated, "auth", "ignored")))
	hub.Broadcast(FromEvent(models.NewEvent(models.EventTypeBaselineRecomputed, "", "engine wide")))
	assert.Equal(t, MessageTypeBaseline, read(t, conn).Type)
}

func TestHub_ConnectionLimit(t *testing.T) {
	hub, srv := newTestServer(t, &config.WebSocketConfig{MaxConnections: 1})

	dial(t, srv, "")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestFromEvent_SkipsIngestProgress(t *testing.T) {
	assert.Nil(t, FromEvent(models.NewEvent(models.EventTypeIngestCompleted, "", "tick")))
	msg := FromEvent(models.NewEvent(models.EventTypeRuleFlagged, "", "noisy").WithSeverity(models.SeverityWarning))
	require.NotNil(t, msg)
	assert.Equal(t, MessageTypeRuleFlagged, msg.Type)
	assert.Equal(t, "warning", msg.Severity)
}

func TestNewSettings_PingBeforePong(t *testing.T) {
	s := NewSettings(&config.WebSocketConfig{PingInterval: time.Minute, PongTimeout: 30 * time.Second})
	assert.Less(t, s.PingInterval, s.PongTimeout)
}
