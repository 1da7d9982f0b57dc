package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tenantops/platform-core/internal/api"
	"github.com/tenantops/platform-core/internal/api/handlers"
	"github.com/tenantops/platform-core/internal/billing"
	"github.com/tenantops/platform-core/internal/config"
	"github.com/tenantops/platform-core/internal/db"
	"github.com/tenantops/platform-core/internal/metrics"
	"github.com/tenantops/platform-core/internal/pricing"
	"github.com/tenantops/platform-core/internal/queue"
	"github.com/tenantops/platform-core/internal/quota"
	"github.com/tenantops/platform-core/internal/ratelimit"
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

	if err := db.Migrate(database, cfg.Database.MigrationsPath); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	repo := db.NewRepository(database)

	cache := redis.NewClient(cfg.Redis.URL)
	defer cache.Close()

	jobQueue := queue.NewRedisQueue(cache.Client)
	collector := metrics.NewCollector()

	deliverer := webhooks.NewDeliverer(repo, logger, collector, cfg.Delivery)
	dispatcher := webhooks.NewDispatcher(repo, deliverer, jobQueue, logger, collector)
	quotaSvc := quota.NewService(repo, logger, collector)
	rateLimitSvc := ratelimit.NewService(repo, cache, logger)
	guard := ratelimit.NewGuard(rateLimitSvc, cache)
	billingSvc := billing.NewService(repo, dispatcher, logger, collector)
	tax := pricing.NewTaxCalculator(logger)
	var rateProvider pricing.RateProvider
	if cfg.Currency.ProviderURL != "" {
		rateProvider = pricing.NewHTTPRateProvider(cfg.Currency.ProviderURL, cfg.Currency.ProviderTimeout)
	}
	currency := pricing.NewCurrencyService(repo, rateProvider, logger, collector)
	regional := pricing.NewRegionalPricer(currency)

	handler := handlers.NewHandler(
		repo, dispatcher, deliverer, quotaSvc, rateLimitSvc, billingSvc,
		tax, currency, regional, collector, cfg, logger,
	)

	server := api.NewServer(cfg, repo, handler, guard, collector, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: server.Router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("API server started", zap.String("port", cfg.Server.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
