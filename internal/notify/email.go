package notify

import (
	"context"
	"strings"

	"gopkg.in/gomail.v2"
)

type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

type EmailNotifier struct {
	cfg    EmailConfig
	dialer *gomail.Dialer
}

func NewEmailNotifier(cfg EmailConfig) *EmailNotifier {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &EmailNotifier{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (n *EmailNotifier) Name() string { return "email" }

func (n *EmailNotifier) message(msg *Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.From)
	m.SetHeader("To", n.cfg.To...)
	m.SetHeader("Subject", msg.Title)
	m.SetBody("text/plain", strings.Join(msg.Lines, "\n")+"\n")
	return m
}

// Send dials the SMTP server for this message only. gomail has no context
// support, so an expired ctx abandons the attempt and reports it failed.
func (n *EmailNotifier) Send(ctx context.Context, msg *Message) error {
	m := n.message(msg)

	done := make(chan error, 1)
	go func() { done <- n.dialer.DialAndSend(m) }()

	select {
	case err := <-done:
		if err != nil {
			return deliveryError(n.Name(), err)
		}
		return nil
	case <-ctx.Done():
		return deliveryError(n.Name(), ctx.Err())
	}
}
