package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/tenantops/platform-core/internal/billing"
	"github.com/tenantops/platform-core/internal/config"
	"github.com/tenantops/platform-core/internal/db"
	"github.com/tenantops/platform-core/internal/metrics"
	"github.com/tenantops/platform-core/internal/notify"
	"github.com/tenantops/platform-core/internal/pricing"
	"github.com/tenantops/platform-core/internal/queue"
	"github.com/tenantops/platform-core/internal/quota"
	"github.com/tenantops/platform-core/internal/scheduler"
	"github.com/tenantops/platform-core/internal/storage/redis"
	"github.com/tenantops/platform-core/internal/webhooks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	database, err := db.NewConnection(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	repo := db.NewRepository(database)

	cache := redis.NewClient(cfg.Redis.URL)
	defer cache.Close()

	jobQueue := queue.NewRedisQueue(cache.Client)
	collector := metrics.NewCollector()

	deliverer := webhooks.NewDeliverer(repo, logger, collector, cfg.Delivery)
	dispatcher := webhooks.NewDispatcher(repo, deliverer, jobQueue, logger, collector)
	quotaSvc := quota.NewService(repo, logger, collector)
	billingSvc := billing.NewService(repo, dispatcher, logger, collector)
	var rateProvider pricing.RateProvider
	if cfg.Currency.ProviderURL != "" {
		rateProvider = pricing.NewHTTPRateProvider(cfg.Currency.ProviderURL, cfg.Currency.ProviderTimeout)
	}
	currency := pricing.NewCurrencyService(repo, rateProvider, logger, collector)
	notifier := notify.NewRegistry(cfg.Notify, cache, logger, collector)

	sched := scheduler.NewScheduler(
		repo, billingSvc, quotaSvc, currency, dispatcher, notifier, logger, cfg,
	)

	ctx, cancel := context.WithCancel(context.Background())
	go sched.Start(ctx)

	logger.Info("Scheduler started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down scheduler...")
	cancel()
	logger.Info("Scheduler exited")
}
