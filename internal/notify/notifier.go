package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tenantops/platform-core/internal/config"
	"github.com/tenantops/platform-core/internal/metrics"
	"github.com/tenantops/platform-core/internal/ratelimit"
)

// Channel identifies a delivery medium. Senders are resolved through a
// table built once at construction, never by config-string lookup at
// send time.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

type Notification struct {
	TenantID  string
	Channel   Channel
	Recipient string
	Subject   string
	Body      string
}

// Sender delivers one notification over one channel.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// Registry holds the channel dispatch table.
type Registry struct {
	senders map[Channel]Sender
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewRegistry wires the configured senders. The SMS sender is guarded by
// a per-recipient sliding window limiter shared across workers.
func NewRegistry(cfg config.NotifyConfig, smsWindow ratelimit.WindowStore, logger *zap.Logger, collector *metrics.Collector) *Registry {
	senders := map[Channel]Sender{}

	if cfg.SMTPHost != "" {
		senders[ChannelEmail] = NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)
	} else {
		senders[ChannelEmail] = NewLogSender(ChannelEmail, logger)
	}

	var sms Sender = NewLogSender(ChannelSMS, logger)
	senders[ChannelSMS] = NewThrottledSender(sms, smsWindow, cfg.SMSPerHour, logger)

	return &Registry{
		senders: senders,
		logger:  logger,
		metrics: collector,
	}
}

// Send routes a notification to its channel's sender.
func (r *Registry) Send(ctx context.Context, n Notification) error {
	sender, ok := r.senders[n.Channel]
	if !ok {
		return fmt.Errorf("no sender registered for channel %s", n.Channel)
	}

	err := sender.Send(ctx, n)
	if r.metrics != nil {
		r.metrics.RecordNotification(string(n.Channel), err)
	}
	if err != nil {
		r.logger.Warn("Notification send failed",
			zap.Error(err),
			zap.String("channel", string(n.Channel)),
			zap.String("tenant_id", n.TenantID),
		)
		return err
	}
	return nil
}
