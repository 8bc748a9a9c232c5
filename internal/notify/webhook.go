package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"text/template"
	"time"
)

const defaultWebhookTemplate = `{"alert_id":{{json .AlertID}},"title":{{json .Title}},"severity":{{json .Severity}},"lines":{{json .Lines}},"anomalies":{{json .Anomalies}}}`

type WebhookConfig struct {
	URL string
	// Template is a text/template rendering the request body from a
	// Message. The json function encodes a value as JSON.
	Template string
	Timeout  time.Duration
}

// WebhookNotifier POSTs a templated JSON body to a URL.
type WebhookNotifier struct {
	url    string
	tmpl   *template.Template
	client *http.Client
}

func NewWebhookNotifier(cfg WebhookConfig) (*WebhookNotifier, error) {
	text := cfg.Template
	if text == "" {
		text = defaultWebhookTemplate
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	tmpl, err := template.New("webhook").Funcs(template.FuncMap{
		"json": func(v any) (string, error) {
			b, err := json.Marshal(v)
			return string(b), err
		},
	}).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse webhook template: %w", err)
	}

	return &WebhookNotifier{
		url:    cfg.URL,
		tmpl:   tmpl,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (n *WebhookNotifier) Name() string { return "webhook" }

func (n *WebhookNotifier) Send(ctx context.Context, msg *Message) error {
	var body bytes.Buffer
	if err := n.tmpl.Execute(&body, msg); err != nil {
		return deliveryError(n.Name(), fmt.Errorf("render body: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, &body)
	if err != nil {
		return deliveryError(n.Name(), err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return deliveryError(n.Name(), err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return deliveryError(n.Name(), fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return nil
}
