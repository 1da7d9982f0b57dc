package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/tenantops/platform-core/internal/config"
	"github.com/tenantops/platform-core/internal/db"
	"github.com/tenantops/platform-core/internal/metrics"
	"github.com/tenantops/platform-core/internal/queue"
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

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < cfg.Delivery.WorkerCount; i++ {
		worker := webhooks.NewWorker(i, jobQueue, repo, deliverer, logger, collector)
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Start(ctx)
		}()
	}

	logger.Info("Delivery workers started", zap.Int("count", cfg.Delivery.WorkerCount))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down workers...")
	cancel()
	wg.Wait()
	logger.Info("Workers exited")
}
