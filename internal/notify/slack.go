package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/slack-go/slack"

	"github.com/CIRISAI/CIRISBridge/pkg/models"
)

type SlackConfig struct {
	WebhookURL string
	Channel    string
	Username   string
}

// SlackNotifier posts to an incoming webhook.
type SlackNotifier struct {
	cfg SlackConfig
}

func NewSlackNotifier(cfg SlackConfig) *SlackNotifier {
	if cfg.Username == "" {
		cfg.Username = "anomaly-engine"
	}
	return &SlackNotifier{cfg: cfg}
}

func (n *SlackNotifier) Name() string { return "slack" }

func (n *SlackNotifier) Send(ctx context.Context, msg *Message) error {
	attachment := slack.Attachment{
		Color:    severityColor(msg.Severity),
		Title:    msg.Title,
		Text:     strings.Join(msg.Lines, "\n"),
		Fallback: msg.Title,
		Fields: []slack.AttachmentField{
			{Title: "Severity", Value: string(msg.Severity), Short: true},
			{Title: "Services", Value: strings.Join(msg.Services(), ", "), Short: true},
			{Title: "Anomalies", Value: strconv.Itoa(len(msg.Anomalies)), Short: true},
		},
		Footer: fmt.Sprintf("alert %s", msg.AlertID),
		Ts:     json.Number(strconv.FormatInt(msg.CreatedAt.Unix(), 10)),
	}

	err := slack.PostWebhookContext(ctx, n.cfg.WebhookURL, &slack.WebhookMessage{
		Channel:     n.cfg.Channel,
		Username:    n.cfg.Username,
		Text:        msg.Title,
		Attachments: []slack.Attachment{attachment},
	})
	if err != nil {
		return deliveryError(n.Name(), err)
	}
	return nil
}

func severityColor(s models.Severity) string {
	switch s {
	case models.SeverityInfo:
		return "#36a64f"
	case models.SeverityWarning:
		return "#ffcc00"
	case models.SeverityCritical:
		return "#ff0000"
	default:
		return "#000000"
	}
}
