package webhooks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tenantops/platform-core/internal/db"
	"github.com/tenantops/platform-core/internal/metrics"
	"github.com/tenantops/platform-core/internal/queue"
)

const payloadVersion = "1.0"

// SubscriberStore resolves the active webhooks subscribed to an event.
type SubscriberStore interface {
	GetWebhooksByEvent(ctx context.Context, tenantID, event string) ([]*db.Webhook, error)
}

// JobQueue enqueues async delivery jobs.
type JobQueue interface {
	Push(ctx context.Context, job *queue.DeliveryJob) error
}

type Dispatcher struct {
	store     SubscriberStore
	deliverer *Deliverer
	queue     JobQueue
	logger    *zap.Logger
	metrics   *metrics.Collector
	now       func() time.Time
}

func NewDispatcher(store SubscriberStore, deliverer *Deliverer, jobQueue JobQueue, logger *zap.Logger, collector *metrics.Collector) *Dispatcher {
	return &Dispatcher{
		store:     store,
		deliverer: deliverer,
		queue:     jobQueue,
		logger:    logger,
		metrics:   collector,
		now:       time.Now,
	}
}

type DispatchResult struct {
	Event      string `json:"event"`
	Dispatched int    `json:"dispatched"`
	Async      bool   `json:"async"`
}

// Event is one named domain event with its caller payload, used for
// batch dispatching.
type Event struct {
	Name    string
	Payload map[string]interface{}
}

// Dispatch fans an event out to every active webhook subscribed to its
// exact name. With zero matches it returns without side effects. In
// async mode one queue job is pushed per webhook; in sync mode each
// delivery runs inline and failures are isolated per webhook.
func (d *Dispatcher) Dispatch(ctx context.Context, tenantID, event string, payload map[string]interface{}, async bool) (*DispatchResult, error) {
	webhooks, err := d.store.GetWebhooksByEvent(ctx, tenantID, event)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve webhooks for event %s: %w", event, err)
	}

	result := &DispatchResult{Event: event, Async: async}
	if len(webhooks) == 0 {
		return result, nil
	}

	enriched := d.enrich(event, payload)

	for _, webhook := range webhooks {
		if async {
			job := &queue.DeliveryJob{
				ID:        uuid.New().String(),
				WebhookID: webhook.ID,
				TenantID:  tenantID,
				Event:     event,
				Payload:   enriched,
				CreatedAt: d.now(),
			}
			if err := d.queue.Push(ctx, job); err != nil {
				d.logger.Error("Failed to enqueue delivery",
					zap.Error(err),
					zap.String("webhook_id", webhook.ID),
					zap.String("event", event),
				)
				continue
			}
		} else {
			res := d.deliverer.Deliver(ctx, webhook, event, enriched)
			if !res.Success {
				d.logger.Warn("Synchronous delivery failed",
					zap.String("webhook_id", webhook.ID),
					zap.String("event", event),
					zap.String("failure", string(res.Failure)),
					zap.String("error", res.Error),
				)
			}
		}
		result.Dispatched++
	}

	mode := "sync"
	if async {
		mode = "async"
	}
	if d.metrics != nil {
		d.metrics.RecordDispatch(tenantID, event, mode, result.Dispatched)
	}

	return result, nil
}

// DispatchBatch dispatches independent events, summing deliveries across
// all of them. One event's failure does not stop the rest.
func (d *Dispatcher) DispatchBatch(ctx context.Context, tenantID string, events []Event, async bool) (int, error) {
	total := 0
	var firstErr error

	for _, ev := range events {
		res, err := d.Dispatch(ctx, tenantID, ev.Name, ev.Payload, async)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		total += res.Dispatched
	}

	return total, firstErr
}

// enrich merges the caller payload with the envelope fields. The
// envelope keys are authoritative: callers cannot override event,
// timestamp, or version.
func (d *Dispatcher) enrich(event string, payload map[string]interface{}) map[string]interface{} {
	enriched := make(map[string]interface{}, len(payload)+3)
	for k, v := range payload {
		enriched[k] = v
	}
	enriched["event"] = event
	enriched["timestamp"] = d.now().UTC().Format(time.RFC3339)
	enriched["version"] = payloadVersion
	return enriched
}
