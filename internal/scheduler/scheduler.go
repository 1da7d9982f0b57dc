package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tenantops/platform-core/internal/billing"
	"github.com/tenantops/platform-core/internal/config"
	"github.com/tenantops/platform-core/internal/db"
	"github.com/tenantops/platform-core/internal/notify"
	"github.com/tenantops/platform-core/internal/pricing"
	"github.com/tenantops/platform-core/internal/quota"
	"github.com/tenantops/platform-core/internal/webhooks"
)

// Scheduler runs the periodic maintenance jobs: quota evaluation, usage
// reporting, currency refresh, subscription expiry and the failing
// webhook scan. Each job has its own ticker so a slow one does not
// starve the others.
type Scheduler struct {
	repo       *db.Repository
	billing    *billing.Service
	quota      *quota.Service
	currency   *pricing.CurrencyService
	dispatcher *webhooks.Dispatcher
	notifier   *notify.Registry
	logger     *zap.Logger
	config     *config.Config
}

func NewScheduler(
	repo *db.Repository,
	billingSvc *billing.Service,
	quotaSvc *quota.Service,
	currency *pricing.CurrencyService,
	dispatcher *webhooks.Dispatcher,
	notifier *notify.Registry,
	logger *zap.Logger,
	cfg *config.Config,
) *Scheduler {
	return &Scheduler{
		repo:       repo,
		billing:    billingSvc,
		quota:      quotaSvc,
		currency:   currency,
		dispatcher: dispatcher,
		notifier:   notifier,
		logger:     logger,
		config:     cfg,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting scheduler",
		zap.Duration("quota_interval", s.config.Scheduler.QuotaInterval),
		zap.Duration("usage_interval", s.config.Scheduler.UsageInterval),
		zap.Duration("currency_interval", s.config.Scheduler.CurrencyInterval),
	)

	quotaTicker := time.NewTicker(s.config.Scheduler.QuotaInterval)
	usageTicker := time.NewTicker(s.config.Scheduler.UsageInterval)
	currencyTicker := time.NewTicker(s.config.Scheduler.CurrencyInterval)
	expiryTicker := time.NewTicker(s.config.Scheduler.ExpiryInterval)
	webhookTicker := time.NewTicker(s.config.Scheduler.WebhookInterval)
	defer quotaTicker.Stop()
	defer usageTicker.Stop()
	defer currencyTicker.Stop()
	defer expiryTicker.Stop()
	defer webhookTicker.Stop()

	// Rates should be warm before the first checkout of the day.
	s.refreshCurrencyRates(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping scheduler")
			return
		case <-quotaTicker.C:
			s.evaluateQuotas(ctx)
		case <-usageTicker.C:
			s.reportUsage(ctx)
		case <-currencyTicker.C:
			s.refreshCurrencyRates(ctx)
		case <-expiryTicker.C:
			s.expireSubscriptions(ctx)
		case <-webhookTicker.C:
			s.scanFailingWebhooks(ctx)
		}
	}
}
