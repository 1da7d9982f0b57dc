package scheduler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tenantops/platform-core/internal/billing"
	"github.com/tenantops/platform-core/internal/db"
	"github.com/tenantops/platform-core/internal/notify"
)

// failingWebhookThreshold is the failure count at which the scan starts
// flagging a webhook.
const failingWebhookThreshold = 10

// refreshCurrencies are the quote currencies pre-fetched each cycle.
var refreshCurrencies = []string{"EUR", "GBP", "JPY", "CAD", "AUD", "INR"}

// evaluateQuotas walks every active tenant's quota metrics, records a
// warning for each crossed threshold and notifies the tenant unless the
// current warning cycle is still inside its grace period.
func (s *Scheduler) evaluateQuotas(ctx context.Context) {
	tenantIDs, err := s.repo.ListTenantIDs(ctx)
	if err != nil {
		s.logger.Error("Failed to list tenants for quota evaluation", zap.Error(err))
		return
	}

	for _, tenantID := range tenantIDs {
		metrics, err := s.billing.QuotaMetrics(ctx, tenantID)
		if errors.Is(err, billing.ErrNoSubscription) {
			continue
		}
		if err != nil {
			s.logger.Error("Failed to load quota metrics",
				zap.Error(err),
				zap.String("tenant_id", tenantID),
			)
			continue
		}

		for _, metric := range metrics {
			s.evaluateQuota(ctx, tenantID, metric)
		}
	}
}

func (s *Scheduler) evaluateQuota(ctx context.Context, tenantID, metric string) {
	percentage, err := s.billing.UsagePercentage(ctx, tenantID, metric)
	if err != nil {
		s.logger.Error("Failed to compute usage percentage",
			zap.Error(err),
			zap.String("tenant_id", tenantID),
			zap.String("metric", metric),
		)
		return
	}

	threshold, crossed := s.classify(percentage)
	if !crossed {
		return
	}

	warning, err := s.quota.RecordWarning(ctx, tenantID, metric, percentage, threshold)
	if err != nil {
		s.logger.Error("Failed to record quota warning",
			zap.Error(err),
			zap.String("tenant_id", tenantID),
			zap.String("metric", metric),
		)
		return
	}

	event := "quota." + string(threshold)
	if _, err := s.dispatcher.Dispatch(ctx, tenantID, event, map[string]interface{}{
		"quota_type": metric,
		"percentage": percentage,
		"threshold":  string(threshold),
	}, true); err != nil {
		s.logger.Warn("Failed to dispatch quota event",
			zap.Error(err),
			zap.String("event", event),
			zap.String("tenant_id", tenantID),
		)
	}

	// The first warning of a cycle always notifies; repeats are
	// suppressed until the grace period runs out.
	if warning.WarningCount > 1 && s.quota.IsInGracePeriod(warning, s.config.Quota.GraceDays) {
		return
	}
	s.notifyQuota(ctx, tenantID, metric, percentage, threshold)
}

func (s *Scheduler) classify(percentage float64) (db.ThresholdType, bool) {
	cfg := s.config.Quota
	switch {
	case percentage >= cfg.BlockPercent:
		return db.ThresholdBlock, true
	case percentage >= cfg.CriticalPercent:
		return db.ThresholdCritical, true
	case percentage >= cfg.WarningPercent:
		return db.ThresholdWarning, true
	default:
		return "", false
	}
}

func (s *Scheduler) notifyQuota(ctx context.Context, tenantID, metric string, percentage float64, threshold db.ThresholdType) {
	tenant, err := s.repo.GetTenant(ctx, tenantID)
	if err != nil {
		s.logger.Error("Failed to load tenant for quota notification",
			zap.Error(err),
			zap.String("tenant_id", tenantID),
		)
		return
	}

	n := notify.Notification{
		TenantID:  tenantID,
		Channel:   notify.ChannelEmail,
		Recipient: tenant.Email,
		Subject:   fmt.Sprintf("Quota %s: %s at %.0f%%", threshold, metric, percentage),
		Body: fmt.Sprintf(
			"Your usage of %s has reached %.1f%% of your plan quota (%s threshold).",
			metric, percentage, threshold,
		),
	}
	if err := s.notifier.Send(ctx, n); err != nil {
		return
	}

	if threshold == db.ThresholdBlock {
		n.Channel = notify.ChannelSMS
		_ = s.notifier.Send(ctx, n)
	}
}

func (s *Scheduler) reportUsage(ctx context.Context) {
	count, err := s.billing.ReportPending(ctx, s.config.Scheduler.UsageBatchSize)
	if err != nil {
		s.logger.Error("Usage reporting failed", zap.Error(err))
		return
	}
	if count > 0 {
		s.logger.Info("Reported usage batch", zap.Int("count", count))
	}
}

func (s *Scheduler) refreshCurrencyRates(ctx context.Context) {
	s.currency.RefreshRates(ctx, s.config.Currency.BaseCurrency, refreshCurrencies)
}

func (s *Scheduler) expireSubscriptions(ctx context.Context) {
	expired, err := s.billing.ExpireDue(ctx)
	if err != nil {
		s.logger.Error("Subscription expiry sweep failed", zap.Error(err))
		return
	}
	if expired > 0 {
		s.logger.Info("Expired subscriptions", zap.Int("count", expired))
	}
}

func (s *Scheduler) scanFailingWebhooks(ctx context.Context) {
	failing, err := s.repo.GetFailingWebhooks(ctx, failingWebhookThreshold)
	if err != nil {
		s.logger.Error("Failing webhook scan failed", zap.Error(err))
		return
	}

	for _, wh := range failing {
		s.logger.Warn("Webhook accumulating failures",
			zap.String("webhook_id", wh.ID),
			zap.String("tenant_id", wh.TenantID),
			zap.String("url", wh.URL),
			zap.Int("failure_count", wh.FailureCount),
		)
	}
}
