package handlers

import (
	"go.uber.org/zap"

	"github.com/tenantops/platform-core/internal/billing"
	"github.com/tenantops/platform-core/internal/config"
	"github.com/tenantops/platform-core/internal/db"
	"github.com/tenantops/platform-core/internal/metrics"
	"github.com/tenantops/platform-core/internal/pricing"
	"github.com/tenantops/platform-core/internal/quota"
	"github.com/tenantops/platform-core/internal/ratelimit"
	"github.com/tenantops/platform-core/internal/webhooks"
)

type Handler struct {
	repo       *db.Repository
	dispatcher *webhooks.Dispatcher
	deliverer  *webhooks.Deliverer
	quota      *quota.Service
	rateLimits *ratelimit.Service
	billing    *billing.Service
	tax        *pricing.TaxCalculator
	currency   *pricing.CurrencyService
	regional   *pricing.RegionalPricer
	metrics    *metrics.Collector
	config     *config.Config
	logger     *zap.Logger
}

func NewHandler(
	repo *db.Repository,
	dispatcher *webhooks.Dispatcher,
	deliverer *webhooks.Deliverer,
	quotaSvc *quota.Service,
	rateLimits *ratelimit.Service,
	billingSvc *billing.Service,
	tax *pricing.TaxCalculator,
	currency *pricing.CurrencyService,
	regional *pricing.RegionalPricer,
	collector *metrics.Collector,
	cfg *config.Config,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		repo:       repo,
		dispatcher: dispatcher,
		deliverer:  deliverer,
		quota:      quotaSvc,
		rateLimits: rateLimits,
		billing:    billingSvc,
		tax:        tax,
		currency:   currency,
		regional:   regional,
		metrics:    collector,
		config:     cfg,
		logger:     logger,
	}
}
