package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func testMessage() *Message {
	anomalies := []*models.Anomaly{
		models.NewAnomaly(&models.Candidate{RuleID: models.RuleVolumeAnomaly, Service: "api", Severity: models.SeverityWarning,
			Score: 1.2, DetectedAt: t0, Metadata: map[string]any{"observed": 135}}),
		models.NewAnomaly(&models.Candidate{RuleID: models.RuleNovelErrorPattern, Service: "billing", Severity: models.SeverityWarning,
			Score: 1, DetectedAt: t0}),
	}
	alert := models.NewAlert("webhook", models.SeverityWarning, []string{anomalies[0].ID, anomalies[1].ID}, t0)
	return NewMessage(alert, anomalies)
}

func TestNewMessage(t *testing.T) {
	msg := testMessage()
	assert.Equal(t, "[warning] 2 anomalies", msg.Title)
	require.Len(t, msg.Lines, 2)
	assert.Contains(t, msg.Lines[0], "volume_anomaly on api")
	assert.Contains(t, msg.Lines[0], "observed=135")
	assert.Equal(t, []string{"api", "billing"}, msg.Services())

	single := NewMessage(models.NewAlert("log", models.SeverityCritical, nil, t0), msg.Anomalies[:1])
	assert.Equal(t, "[warning] volume_anomaly on api", single.Title)
}

func TestWebhookNotifier(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n, err := NewWebhookNotifier(WebhookConfig{URL: srv.URL})
	require.NoError(t, err)
	require.NoError(t, n.Send(context.Background(), testMessage()))

	assert.Equal(t, "[warning] 2 anomalies", got["title"])
	assert.Equal(t, "warning", got["severity"])
	assert.Len(t, got["anomalies"], 2)
}

func TestWebhookNotifier_CustomTemplate(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
	}))
	defer srv.Close()

	n, err := NewWebhookNotifier(WebhookConfig{URL: srv.URL, Template: `{"text":{{json .Title}}}`})
	require.NoError(t, err)
	require.NoError(t, n.Send(context.Background(), testMessage()))
	assert.JSONEq(t, `{"text":"[warning] 2 anomalies"}`, body)

	_, err = NewWebhookNotifier(WebhookConfig{URL: srv.URL, Template: `{{.Nope`})
	assert.Error(t, err)
}

func TestWebhookNotifier_Non2xxIsDeliveryError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n, err := NewWebhookNotifier(WebhookConfig{URL: srv.URL})
	require.NoError(t, err)
	err = n.Send(context.Background(), testMessage())
	assert.ErrorIs(t, err, models.ErrDelivery)
	assert.Contains(t, err.Error(), "502")
}

func TestSlackNotifier(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	n := NewSlackNotifier(SlackConfig{WebhookURL: srv.URL, Channel: "#alerts"})
	require.NoError(t, n.Send(context.Background(), testMessage()))

	assert.Equal(t, "#alerts", got["channel"])
	assert.Equal(t, "anomaly-engine", got["username"])
	attachments, ok := got["attachments"].([]any)
	require.True(t, ok)
	require.Len(t, attachments, 1)
	assert.Equal(t, "#ffcc00", attachments[0].(map[string]any)["color"])
}

func TestSlackNotifier_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewSlackNotifier(SlackConfig{WebhookURL: srv.URL}).Send(context.Background(), testMessage())
	assert.ErrorIs(t, err, models.ErrDelivery)
}

func TestEmailNotifier(t *testing.T) {
	n := NewEmailNotifier(EmailConfig{Host: "127.0.0.1", Port: 1, From: "engine@example.com", To: []string{"oncall@example.com"}})
	assert.Equal(t, []string{"[warning] 2 anomalies"}, n.message(testMessage()).GetHeader("Subject"))

	err := n.Send(context.Background(), testMessage())
	assert.ErrorIs(t, err, models.ErrDelivery)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, n.Send(ctx, testMessage()), models.ErrDelivery)
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier()
	assert.Equal(t, "log", n.Name())
	assert.NoError(t, n.Send(context.Background(), testMessage()))
}
