package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Collector struct {
	// Webhook delivery
	deliveriesTotal  *prometheus.CounterVec
	deliveryDuration *prometheus.HistogramVec
	deliveryAttempts *prometheus.HistogramVec
	deliveryRetries  *prometheus.CounterVec
	queueDepth       prometheus.Gauge
	dispatchedTotal  *prometheus.CounterVec

	// Quota / rate limiting
	quotaWarningsTotal  *prometheus.CounterVec
	quotaPercentage     *prometheus.GaugeVec
	rateLimitRejections *prometheus.CounterVec

	// Notifications
	notificationsSent   *prometheus.CounterVec
	notificationsFailed *prometheus.CounterVec

	// Billing
	subscriptionEvents *prometheus.CounterVec
	usageReported      prometheus.Counter
	currencyFallbacks  prometheus.Counter
}

func NewCollector() *Collector {
	return &Collector{
		deliveriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platform_webhook_deliveries_total",
				Help: "Webhook delivery outcomes",
			},
			[]string{"tenant_id", "event", "status"},
		),

		deliveryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "platform_webhook_delivery_duration_seconds",
				Help:    "Duration of webhook deliveries including retries",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"tenant_id", "event"},
		),

		deliveryAttempts: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "platform_webhook_delivery_attempts",
				Help:    "Attempts consumed per delivery",
				Buckets: []float64{1, 2, 3, 4, 5},
			},
			[]string{"tenant_id"},
		),

		deliveryRetries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platform_webhook_delivery_retries_total",
				Help: "Retried delivery attempts",
			},
			[]string{"tenant_id"},
		),

		queueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "platform_webhook_queue_depth",
				Help: "Pending jobs in the delivery queue",
			},
		),

		dispatchedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platform_webhook_dispatched_total",
				Help: "Webhook deliveries fanned out per event",
			},
			[]string{"tenant_id", "event", "mode"},
		),

		quotaWarningsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platform_quota_warnings_total",
				Help: "Quota warnings recorded",
			},
			[]string{"tenant_id", "quota_type", "threshold"},
		),

		quotaPercentage: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "platform_quota_usage_percent",
				Help: "Latest quota usage percentage",
			},
			[]string{"tenant_id", "quota_type"},
		),

		rateLimitRejections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platform_rate_limit_rejections_total",
				Help: "Requests rejected by rate limiting",
			},
			[]string{"tenant_id", "limit_type"},
		),

		notificationsSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platform_notifications_sent_total",
				Help: "Notifications sent per channel",
			},
			[]string{"channel"},
		),

		notificationsFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platform_notifications_failed_total",
				Help: "Notification send failures per channel",
			},
			[]string{"channel"},
		),

		subscriptionEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "platform_subscription_events_total",
				Help: "Subscription lifecycle transitions",
			},
			[]string{"event"},
		),

		usageReported: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "platform_usage_records_reported_total",
				Help: "Usage records marked as reported upstream",
			},
		),

		currencyFallbacks: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "platform_currency_rate_fallbacks_total",
				Help: "Currency conversions that fell back to 1.0",
			},
		),
	}
}

func (c *Collector) RecordDelivery(tenantID, event string, success bool, attempts int, duration time.Duration) {
	status := "failure"
	if success {
		status = "success"
	}
	c.deliveriesTotal.WithLabelValues(tenantID, event, status).Inc()
	c.deliveryDuration.WithLabelValues(tenantID, event).Observe(duration.Seconds())
	c.deliveryAttempts.WithLabelValues(tenantID).Observe(float64(attempts))
	if attempts > 1 {
		c.deliveryRetries.WithLabelValues(tenantID).Add(float64(attempts - 1))
	}
}

func (c *Collector) RecordDispatch(tenantID, event, mode string, count int) {
	c.dispatchedTotal.WithLabelValues(tenantID, event, mode).Add(float64(count))
}

func (c *Collector) SetQueueDepth(n int64) {
	c.queueDepth.Set(float64(n))
}

func (c *Collector) RecordQuotaWarning(tenantID, quotaType, threshold string, percentage float64) {
	c.quotaWarningsTotal.WithLabelValues(tenantID, quotaType, threshold).Inc()
	c.quotaPercentage.WithLabelValues(tenantID, quotaType).Set(percentage)
}

func (c *Collector) RecordRateLimitRejection(tenantID, limitType string) {
	c.rateLimitRejections.WithLabelValues(tenantID, limitType).Inc()
}

func (c *Collector) RecordNotification(channel string, err error) {
	if err != nil {
		c.notificationsFailed.WithLabelValues(channel).Inc()
		return
	}
	c.notificationsSent.WithLabelValues(channel).Inc()
}

func (c *Collector) RecordSubscriptionEvent(event string) {
	c.subscriptionEvents.WithLabelValues(event).Inc()
}

func (c *Collector) RecordUsageReported(count int) {
	c.usageReported.Add(float64(count))
}

func (c *Collector) RecordCurrencyFallback() {
	c.currencyFallbacks.Inc()
}
