package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"time"

	"go.uber.org/zap"

	"github.com/tenantops/platform-core/internal/ratelimit"
)

// SMTPSender delivers email notifications over plain SMTP.
type SMTPSender struct {
	addr string
	from string
}

func NewSMTPSender(host string, port int, from string) *SMTPSender {
	return &SMTPSender{
		addr: fmt.Sprintf("%s:%d", host, port),
		from: from,
	}
}

func (s *SMTPSender) Send(_ context.Context, n Notification) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		s.from, n.Recipient, n.Subject, n.Body)

	if err := smtp.SendMail(s.addr, nil, s.from, []string{n.Recipient}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// LogSender writes the notification to the log instead of sending it.
// Used in development and as the SMS transport until a provider is
// wired in.
type LogSender struct {
	channel Channel
	logger  *zap.Logger
}

func NewLogSender(channel Channel, logger *zap.Logger) *LogSender {
	return &LogSender{channel: channel, logger: logger}
}

func (s *LogSender) Send(_ context.Context, n Notification) error {
	s.logger.Info("Notification",
		zap.String("channel", string(s.channel)),
		zap.String("recipient", n.Recipient),
		zap.String("subject", n.Subject),
		zap.String("body", n.Body),
	)
	return nil
}

// ThrottledSender wraps a sender with a per-recipient hourly window.
// Exceeding the window drops the notification without error: repeated
// quota alarms to the same phone are noise, not data loss.
type ThrottledSender struct {
	inner   Sender
	limiter *ratelimit.Limiter
	logger  *zap.Logger
}

func NewThrottledSender(inner Sender, store ratelimit.WindowStore, perHour int, logger *zap.Logger) *ThrottledSender {
	return &ThrottledSender{
		inner:   inner,
		limiter: ratelimit.NewLimiter(store, "notify:sms", perHour, time.Hour),
		logger:  logger,
	}
}

func (s *ThrottledSender) Send(ctx context.Context, n Notification) error {
	allowed, err := s.limiter.Allow(ctx, n.Recipient)
	if err != nil {
		// Counting failed; deliver anyway rather than silently dropping.
		s.logger.Warn("SMS rate limiter unavailable", zap.Error(err))
		return s.inner.Send(ctx, n)
	}
	if !allowed {
		s.logger.Info("SMS suppressed by rate limit",
			zap.String("recipient", n.Recipient),
		)
		return nil
	}
	return s.inner.Send(ctx, n)
}
