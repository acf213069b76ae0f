// Package mailer sends transactional email. It is a side channel: nothing
// in the request workflow waits for or depends on delivery.
package mailer

import (
	"time"

	"github.com/dalemusser/waffle/pantry/email"
)

// Email is one outgoing message. At least one body must be set.
type Email struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

func (e Email) message() email.Message {
	return email.Message{
		To:       []string{e.To},
		Subject:  e.Subject,
		TextBody: e.TextBody,
		HTMLBody: e.HTMLBody,
	}
}

// Config holds SMTP settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Pass     string
	From     string
	FromName string
	Timeout  time.Duration
}

// NewSender returns an SMTP sender for cfg. Port 465 uses implicit TLS,
// anything else STARTTLS.
func NewSender(cfg Config) *email.Sender {
	return email.NewSender(email.Config{
		Host:        cfg.Host,
		Port:        cfg.Port,
		Username:    cfg.User,
		Password:    cfg.Pass,
		FromAddress: cfg.From,
		FromName:    cfg.FromName,
		UseSSL:      cfg.Port == 465,
		Timeout:     cfg.Timeout,
	})
}
