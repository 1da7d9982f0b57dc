package webhooks

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/tenantops/platform-core/internal/db"
	"github.com/tenantops/platform-core/internal/metrics"
	"github.com/tenantops/platform-core/internal/queue"
)

// Worker consumes delivery jobs from the queue and runs them through the
// delivery engine. Each job is one webhook delivery; concurrency comes
// from running multiple workers, never from inside a delivery.
type Worker struct {
	id        int
	queue     *queue.RedisQueue
	repo      *db.Repository
	deliverer *Deliverer
	logger    *zap.Logger
	metrics   *metrics.Collector
}

func NewWorker(id int, jobQueue *queue.RedisQueue, repo *db.Repository, deliverer *Deliverer, logger *zap.Logger, collector *metrics.Collector) *Worker {
	return &Worker{
		id:        id,
		queue:     jobQueue,
		repo:      repo,
		deliverer: deliverer,
		logger:    logger.With(zap.Int("worker_id", id)),
		metrics:   collector,
	}
}

func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Delivery worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Delivery worker stopped")
			return
		default:
		}

		job, err := w.queue.Pop(ctx, 5*time.Second)
		if err != nil {
			if errors.Is(err, queue.ErrTimeout) || ctx.Err() != nil {
				continue
			}
			w.logger.Error("Failed to pop delivery job", zap.Error(err))
			continue
		}

		w.processJob(ctx, job)

		if depth, err := w.queue.Length(ctx); err == nil && w.metrics != nil {
			w.metrics.SetQueueDepth(depth)
		}
	}
}

func (w *Worker) processJob(ctx context.Context, job *queue.DeliveryJob) {
	w.logger.Debug("Processing delivery",
		zap.String("job_id", job.ID),
		zap.String("webhook_id", job.WebhookID),
		zap.String("event", job.Event),
	)

	webhook, err := w.repo.GetWebhookByID(ctx, job.WebhookID)
	if err != nil {
		// Webhook deleted between dispatch and delivery; drop the job.
		if errors.Is(err, db.ErrNotFound) {
			w.logger.Warn("Webhook gone, dropping job",
				zap.String("job_id", job.ID),
				zap.String("webhook_id", job.WebhookID),
			)
			return
		}
		w.logger.Error("Failed to load webhook",
			zap.Error(err),
			zap.String("webhook_id", job.WebhookID),
		)
		return
	}

	res := w.deliverer.Deliver(ctx, webhook, job.Event, job.Payload)

	if res.Success {
		w.logger.Debug("Delivery succeeded",
			zap.String("webhook_id", webhook.ID),
			zap.String("event", job.Event),
			zap.Int("attempts", res.Attempts),
			zap.Duration("duration", res.Duration),
		)
	} else {
		w.logger.Warn("Delivery failed",
			zap.String("webhook_id", webhook.ID),
			zap.String("event", job.Event),
			zap.String("failure", string(res.Failure)),
			zap.Int("attempts", res.Attempts),
			zap.String("error", res.Error),
		)
	}
}
