// Package mailer sends transactional email. Delivery is best-effort: Send
// reports success as a bool and never returns an error to the caller.
package mailer

import (
	"context"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

//go:generate mockgen -build_flags=--mod=mod -package mailertest -destination ./mailertest/mock_sender.go -source=mailer.go

// Sender delivers one HTML email.
type Sender interface {
	Send(ctx context.Context, to, subject, html string) bool
}

// ResendSender delivers through the Resend API.
type ResendSender struct {
	client *resend.Client
	from   string
	log    *zap.Logger
}

func NewResendSender(apiKey, from string, log *zap.Logger) *ResendSender {
	return &ResendSender{client: resend.NewClient(apiKey), from: from, log: log}
}

func (s *ResendSender) Send(ctx context.Context, to, subject, html string) bool {
	sent, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		Html:    html,
	})
	if err != nil {
		s.log.Error("email send failed", zap.String("to", to), zap.String("subject", subject), zap.Error(err))
		return false
	}
	s.log.Info("email sent", zap.String("to", to), zap.String("resend_id", sent.Id))
	return true
}

// LogSender is used when no API key is configured. It logs the message and
// reports failure, so callers surface the missing delivery.
type LogSender struct {
	log *zap.Logger
}

func NewLogSender(log *zap.Logger) *LogSender { return &LogSender{log: log} }

func (s *LogSender) Send(_ context.Context, to, subject, html string) bool {
	s.log.Warn("email delivery not configured; message not sent",
		zap.String("to", to), zap.String("subject", subject), zap.Int("html_bytes", len(html)))
	return false
}

// New picks the Resend sender when apiKey is set.
func New(apiKey, from string, log *zap.Logger) Sender {
	if apiKey == "" {
		return NewLogSender(log)
	}
	return NewResendSender(apiKey, from, log)
}
