package db

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

type LimitType string

const (
	LimitTypeAPI     LimitType = "api"
	LimitTypeWeb     LimitType = "web"
	LimitTypeWebhook LimitType = "webhook"
	LimitTypeOther   LimitType = "other"
)

type ThresholdType string

const (
	ThresholdWarning  ThresholdType = "warning"
	ThresholdCritical ThresholdType = "critical"
	ThresholdBlock    ThresholdType = "block"
)

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionTrialing  SubscriptionStatus = "trialing"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

type Tenant struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Webhook struct {
	ID              string      `json:"id" db:"id"`
	TenantID        string      `json:"-" db:"tenant_id"`
	ConnectorID     string      `json:"connector_id" db:"connector_id"`
	URL             string      `json:"url" db:"url"`
	Secret          string      `json:"-" db:"secret"`
	Events          StringSlice `json:"events" db:"events"`
	Headers         StringMap   `json:"headers" db:"headers"`
	IsActive        bool        `json:"is_active" db:"is_active"`
	MaxAttempts     int         `json:"max_attempts" db:"max_attempts"`
	TimeoutSeconds  int         `json:"timeout_seconds" db:"timeout_seconds"`
	SuccessCount    int         `json:"success_count" db:"success_count"`
	FailureCount    int         `json:"failure_count" db:"failure_count"`
	LastTriggeredAt *time.Time  `json:"last_triggered_at" db:"last_triggered_at"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" db:"updated_at"`
}

// WebhookLog is the immutable audit record of one delivery. A single
// Deliver call writes exactly one row, snapshotting the final attempt.
type WebhookLog struct {
	ID           string    `json:"id" db:"id"`
	WebhookID    string    `json:"webhook_id" db:"webhook_id"`
	TenantID     string    `json:"-" db:"tenant_id"`
	Event        string    `json:"event" db:"event"`
	Payload      JSONB     `json:"payload" db:"payload"`
	StatusCode   *int      `json:"status_code,omitempty" db:"status_code"`
	ResponseBody string    `json:"response_body,omitempty" db:"response_body"`
	Attempt      int       `json:"attempt" db:"attempt"`
	DurationMs   int       `json:"duration_ms" db:"duration_ms"`
	Success      bool      `json:"success" db:"success"`
	Error        string    `json:"error,omitempty" db:"error"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// RateLimitConfig is a per-tenant policy row; TenantID nil means global.
type RateLimitConfig struct {
	ID              string      `json:"id" db:"id"`
	TenantID        *string     `json:"tenant_id" db:"tenant_id"`
	LimitType       LimitType   `json:"limit_type" db:"limit_type"`
	MaxRequests     int         `json:"max_requests" db:"max_requests"`
	WindowSeconds   int         `json:"window_seconds" db:"window_seconds"`
	BurstLimit      int         `json:"burst_limit" db:"burst_limit"`
	ThrottlePercent int         `json:"throttle_percent" db:"throttle_percent"`
	BlockSeconds    int         `json:"block_seconds" db:"block_seconds"`
	IPAllowList     StringSlice `json:"ip_allow_list" db:"ip_allow_list"`
	IPDenyList      StringSlice `json:"ip_deny_list" db:"ip_deny_list"`
	IsActive        bool        `json:"is_active" db:"is_active"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" db:"updated_at"`
}

// QuotaWarning tracks one warning cycle. At most one non-dismissed row
// exists per (tenant_id, quota_type); re-warning updates it in place.
type QuotaWarning struct {
	ID            string        `json:"id" db:"id"`
	TenantID      string        `json:"-" db:"tenant_id"`
	QuotaType     string        `json:"quota_type" db:"quota_type"`
	Percentage    float64       `json:"percentage" db:"percentage"`
	ThresholdType ThresholdType `json:"threshold_type" db:"threshold_type"`
	FirstWarnedAt time.Time     `json:"first_warned_at" db:"first_warned_at"`
	LastWarnedAt  time.Time     `json:"last_warned_at" db:"last_warned_at"`
	WarningCount  int           `json:"warning_count" db:"warning_count"`
	Dismissed     bool          `json:"dismissed" db:"dismissed"`
	DismissedAt   *time.Time    `json:"dismissed_at" db:"dismissed_at"`
	DismissedBy   *string       `json:"dismissed_by" db:"dismissed_by"`
	Metadata      JSONB         `json:"metadata" db:"metadata"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
}

type Plan struct {
	ID         string      `json:"id" db:"id"`
	Code       string      `json:"code" db:"code"`
	Name       string      `json:"name" db:"name"`
	Modules    StringSlice `json:"modules" db:"modules"`
	Quotas     Int64Map    `json:"quotas" db:"quotas"`
	PriceCents int         `json:"price_cents" db:"price_cents"`
	TrialDays  int         `json:"trial_days" db:"trial_days"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at" db:"updated_at"`
}

type Subscription struct {
	ID           string             `json:"id" db:"id"`
	TenantID     string             `json:"-" db:"tenant_id"`
	PlanID       string             `json:"plan_id" db:"plan_id"`
	Status       SubscriptionStatus `json:"status" db:"status"`
	BillingCycle string             `json:"billing_cycle" db:"billing_cycle"`
	TrialEndsAt  *time.Time         `json:"trial_ends_at" db:"trial_ends_at"`
	StartsAt     time.Time          `json:"starts_at" db:"starts_at"`
	EndsAt       *time.Time         `json:"ends_at" db:"ends_at"`
	CancelledAt  *time.Time         `json:"cancelled_at" db:"cancelled_at"`
	CancelReason *string            `json:"cancel_reason" db:"cancel_reason"`
	CreatedAt    time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at" db:"updated_at"`
}

// IsActive is the single gating predicate: status active and not past
// the end of the validity window. Every module-access decision goes
// through this, never a cached copy.
func (s *Subscription) IsActive(now time.Time) bool {
	return s.Status == SubscriptionActive && (s.EndsAt == nil || s.EndsAt.After(now))
}

// InTrial reports whether the subscription grants access through an
// unexpired trial window.
func (s *Subscription) InTrial(now time.Time) bool {
	return s.Status == SubscriptionTrialing && s.TrialEndsAt != nil && s.TrialEndsAt.After(now)
}

// UsageRecord is an append-only metered usage event.
type UsageRecord struct {
	ID             string     `json:"id" db:"id"`
	TenantID       string     `json:"-" db:"tenant_id"`
	SubscriptionID string     `json:"subscription_id" db:"subscription_id"`
	Metric         string     `json:"metric" db:"metric"`
	Quantity       int64      `json:"quantity" db:"quantity"`
	PeriodStart    time.Time  `json:"period_start" db:"period_start"`
	PeriodEnd      time.Time  `json:"period_end" db:"period_end"`
	Reported       bool       `json:"reported" db:"reported"`
	ReportedAt     *time.Time `json:"reported_at" db:"reported_at"`
	RecordedAt     time.Time  `json:"recorded_at" db:"recorded_at"`
}

type CurrencyRate struct {
	ID            string    `json:"id" db:"id"`
	BaseCurrency  string    `json:"base_currency" db:"base_currency"`
	QuoteCurrency string    `json:"quote_currency" db:"quote_currency"`
	Rate          float64   `json:"rate" db:"rate"`
	RateDate      time.Time `json:"rate_date" db:"rate_date"`
	Source        string    `json:"source" db:"source"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Custom types for PostgreSQL JSONB columns

type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *StringSlice) Scan(value interface{}) error {
	if value == nil {
		*s = []string{}
		return nil
	}
	return json.Unmarshal(value.([]byte), s)
}

func (s StringSlice) Contains(v string) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}

type StringMap map[string]string

func (m StringMap) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *StringMap) Scan(value interface{}) error {
	if value == nil {
		*m = make(map[string]string)
		return nil
	}
	return json.Unmarshal(value.([]byte), m)
}

type Int64Map map[string]int64

func (m Int64Map) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *Int64Map) Scan(value interface{}) error {
	if value == nil {
		*m = make(map[string]int64)
		return nil
	}
	return json.Unmarshal(value.([]byte), m)
}

type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	return json.Unmarshal(value.([]byte), j)
}
