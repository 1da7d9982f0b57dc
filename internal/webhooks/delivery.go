package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tenantops/platform-core/internal/config"
	"github.com/tenantops/platform-core/internal/db"
	"github.com/tenantops/platform-core/internal/metrics"
)

type FailureKind string

const (
	FailureNone       FailureKind = ""
	FailureNotActive  FailureKind = "not_active"
	FailureTimeout    FailureKind = "timeout"
	FailureConnection FailureKind = "connection"
	FailureHTTP       FailureKind = "http_error"
)

// DeliveryResult reports the outcome of one Deliver call. Failures are
// data, never errors: a failed delivery must not abort sibling
// deliveries in a dispatch batch.
type DeliveryResult struct {
	Success    bool          `json:"success"`
	StatusCode int           `json:"status_code,omitempty"`
	Body       string        `json:"body,omitempty"`
	Attempts   int           `json:"attempts"`
	Duration   time.Duration `json:"duration"`
	Failure    FailureKind   `json:"failure,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// DeliveryStore is the persistence surface the engine needs: one log row
// and one atomic counter bump per delivery.
type DeliveryStore interface {
	CreateWebhookLog(ctx context.Context, l *db.WebhookLog) error
	RecordDeliverySuccess(ctx context.Context, webhookID string, at time.Time) error
	RecordDeliveryFailure(ctx context.Context, webhookID string) error
}

type Deliverer struct {
	store   DeliveryStore
	client  *http.Client
	logger  *zap.Logger
	metrics *metrics.Collector
	cfg     config.DeliveryConfig

	// injectable for tests
	sleep func(time.Duration)
	now   func() time.Time
}

func NewDeliverer(store DeliveryStore, logger *zap.Logger, collector *metrics.Collector, cfg config.DeliveryConfig) *Deliverer {
	return &Deliverer{
		store:   store,
		client:  &http.Client{},
		logger:  logger,
		metrics: collector,
		cfg:     cfg,
		sleep:   time.Sleep,
		now:     time.Now,
	}
}

type attemptOutcome struct {
	success    bool
	retryable  bool
	failure    FailureKind
	statusCode *int
	body       string
	errMsg     string
}

// Deliver sends one event payload to one webhook endpoint with bounded,
// backing-off retries. Attempts are strictly sequential; regardless of
// how many run, exactly one log row is written and exactly one counter
// is incremented.
func (d *Deliverer) Deliver(ctx context.Context, webhook *db.Webhook, event string, payload map[string]interface{}) *DeliveryResult {
	if !webhook.IsActive {
		return &DeliveryResult{
			Failure: FailureNotActive,
			Error:   "webhook is not active",
		}
	}

	deliveryID := uuid.New().String()

	body, err := json.Marshal(payload)
	if err != nil {
		// Config-level failure: no HTTP call was made, but the delivery
		// was requested, so it still leaves an audit trail.
		res := &DeliveryResult{
			Attempts: 1,
			Failure:  FailureConnection,
			Error:    "failed to marshal payload: " + err.Error(),
		}
		d.recordOutcome(ctx, webhook, deliveryID, event, payload, res)
		return res
	}

	signature := ""
	if webhook.Secret != "" {
		signature = Sign(webhook.Secret, body)
	}

	maxAttempts := webhook.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = d.cfg.MaxAttempts
	}
	timeout := time.Duration(webhook.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = d.cfg.Timeout
	}

	start := d.now()
	attempts := 0
	var last attemptOutcome

	for {
		attempts++
		last = d.attemptOnce(ctx, webhook, body, signature, event, deliveryID, timeout)
		if last.success || !last.retryable || attempts >= maxAttempts {
			break
		}
		d.sleep(d.backoffDelay(attempts))
	}

	res := &DeliveryResult{
		Success:  last.success,
		Attempts: attempts,
		Duration: d.now().Sub(start),
		Failure:  last.failure,
		Body:     last.body,
		Error:    last.errMsg,
	}
	if last.statusCode != nil {
		res.StatusCode = *last.statusCode
	}

	d.recordOutcome(ctx, webhook, deliveryID, event, payload, res)
	return res
}

// Test fires a synthetic test.webhook event through the full delivery
// contract, retries included.
func (d *Deliverer) Test(ctx context.Context, webhook *db.Webhook) *DeliveryResult {
	payload := map[string]interface{}{
		"event":      "test.webhook",
		"timestamp":  d.now().UTC().Format(time.RFC3339),
		"version":    "1.0",
		"webhook_id": webhook.ID,
		"test":       true,
	}
	return d.Deliver(ctx, webhook, "test.webhook", payload)
}

func (d *Deliverer) attemptOnce(ctx context.Context, webhook *db.Webhook, body []byte, signature, event, deliveryID string, timeout time.Duration) attemptOutcome {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodPost, webhook.URL, bytes.NewReader(body))
	if err != nil {
		return attemptOutcome{
			failure: FailureConnection,
			errMsg:  "failed to build request: " + err.Error(),
		}
	}

	for k, v := range webhook.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", d.cfg.UserAgent)
	req.Header.Set("X-Platform-Event", event)
	req.Header.Set("X-Platform-Delivery", deliveryID)
	if signature != "" {
		req.Header.Set(d.cfg.SignatureName, signature)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || actx.Err() == context.DeadlineExceeded {
			return attemptOutcome{
				failure: FailureTimeout,
				errMsg:  "request timed out after " + timeout.String(),
			}
		}
		// Transport error with no status: retryable
		return attemptOutcome{
			retryable: true,
			failure:   FailureConnection,
			errMsg:    err.Error(),
		}
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, int64(d.cfg.ResponseBodyKB)*1024)
	respBody, _ := io.ReadAll(limited)
	code := resp.StatusCode

	if code >= 200 && code < 300 {
		return attemptOutcome{
			success:    true,
			statusCode: &code,
			body:       string(respBody),
		}
	}

	out := attemptOutcome{
		failure:    FailureHTTP,
		statusCode: &code,
		body:       string(respBody),
		errMsg:     "endpoint returned HTTP " + resp.Status,
	}
	// Only server-side errors are worth retrying; a 4xx means the
	// request itself is wrong and hammering the endpoint won't fix it.
	out.retryable = code >= 500
	return out
}

// backoffDelay is 2^(attempt-1) seconds capped at the configured maximum:
// 1s, 2s, 4s, ...
func (d *Deliverer) backoffDelay(attempt int) time.Duration {
	delay := time.Duration(1<<uint(attempt-1)) * time.Second
	if delay > d.cfg.MaxBackoff {
		delay = d.cfg.MaxBackoff
	}
	return delay
}

// recordOutcome persists the terminal log row and bumps the counter. The
// HTTP side effect already happened, so persistence failures are logged
// loudly rather than swallowed.
func (d *Deliverer) recordOutcome(ctx context.Context, webhook *db.Webhook, deliveryID, event string, payload map[string]interface{}, res *DeliveryResult) {
	entry := &db.WebhookLog{
		ID:           deliveryID,
		WebhookID:    webhook.ID,
		TenantID:     webhook.TenantID,
		Event:        event,
		Payload:      db.JSONB(payload),
		ResponseBody: res.Body,
		Attempt:      res.Attempts,
		DurationMs:   int(res.Duration.Milliseconds()),
		Success:      res.Success,
		Error:        res.Error,
		CreatedAt:    d.now(),
	}
	if res.StatusCode != 0 {
		code := res.StatusCode
		entry.StatusCode = &code
	}

	if err := d.store.CreateWebhookLog(ctx, entry); err != nil {
		d.logger.Error("Delivery outcome not recorded",
			zap.Error(err),
			zap.String("webhook_id", webhook.ID),
			zap.String("delivery_id", deliveryID),
			zap.String("event", event),
		)
	}

	var err error
	if res.Success {
		err = d.store.RecordDeliverySuccess(ctx, webhook.ID, d.now())
	} else {
		err = d.store.RecordDeliveryFailure(ctx, webhook.ID)
	}
	if err != nil {
		d.logger.Error("Failed to update delivery counters",
			zap.Error(err),
			zap.String("webhook_id", webhook.ID),
		)
	}

	if d.metrics != nil {
		d.metrics.RecordDelivery(webhook.TenantID, event, res.Success, res.Attempts, res.Duration)
	}
}
