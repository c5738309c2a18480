package mail

import (
	"context"

	"github.com/gofiber/fiber/v2/log"

	"github.com/nutrixpert/nutrixpert/internal/pkg/env"
)

// Sender delivers a rendered HTML email.
type Sender interface {
	Send(ctx context.Context, to, from, subject, html string) error
}

// NewSender returns an SMTP sender when SMTP_HOST is configured and a
// logging sender otherwise.
func NewSender(cfg env.Config) Sender {
	if cfg.SMTPHost == "" {
		log.Warn("[Mail] SMTP_HOST not set, emails are only logged")
		return LogSender{}
	}
	return &SMTPSender{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
	}
}

// LogSender writes emails to the log instead of sending them.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, to, from, subject, html string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log.Infof("[Mail] (not sent) to=%s from=%s subject=%q bytes=%d", to, from, subject, len(html))
	return nil
}
