package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
)

// Plan operations

func (r *Repository) GetPlan(ctx context.Context, id string) (*Plan, error) {
	var p Plan
	err := r.db.GetContext(ctx, &p, `SELECT * FROM plans WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return &p, err
}

func (r *Repository) GetPlanByCode(ctx context.Context, code string) (*Plan, error) {
	var p Plan
	err := r.db.GetContext(ctx, &p, `SELECT * FROM plans WHERE code = $1`, code)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return &p, err
}

func (r *Repository) ListPlans(ctx context.Context) ([]*Plan, error) {
	plans := []*Plan{}
	err := r.db.SelectContext(ctx, &plans, `SELECT * FROM plans ORDER BY price_cents`)
	return plans, err
}

// Subscription operations

func (r *Repository) CreateSubscription(ctx context.Context, s *Subscription) error {
	query := `
        INSERT INTO subscriptions (
            id, tenant_id, plan_id, status, billing_cycle, trial_ends_at,
            starts_at, ends_at, cancelled_at, cancel_reason, created_at, updated_at
        ) VALUES (
            :id, :tenant_id, :plan_id, :status, :billing_cycle, :trial_ends_at,
            :starts_at, :ends_at, :cancelled_at, :cancel_reason, :created_at, :updated_at
        )`

	_, err := r.db.NamedExecContext(ctx, query, s)
	return err
}

// GetCurrentSubscription returns the tenant's most recent non-terminal
// subscription. Callers decide access via Subscription.IsActive.
func (r *Repository) GetCurrentSubscription(ctx context.Context, tenantID string) (*Subscription, error) {
	var s Subscription
	query := `
        SELECT * FROM subscriptions
        WHERE tenant_id = $1 AND status NOT IN ('cancelled', 'expired')
        ORDER BY created_at DESC
        LIMIT 1`

	err := r.db.GetContext(ctx, &s, query, tenantID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return &s, err
}

func (r *Repository) GetSubscription(ctx context.Context, id, tenantID string) (*Subscription, error) {
	var s Subscription
	err := r.db.GetContext(ctx, &s,
		`SELECT * FROM subscriptions WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return &s, err
}

func (r *Repository) UpdateSubscription(ctx context.Context, s *Subscription) error {
	query := `
        UPDATE subscriptions SET
            status = :status,
            trial_ends_at = :trial_ends_at,
            ends_at = :ends_at,
            cancelled_at = :cancelled_at,
            cancel_reason = :cancel_reason,
            updated_at = :updated_at
        WHERE id = :id AND tenant_id = :tenant_id`

	_, err := r.db.NamedExecContext(ctx, query, s)
	return err
}

// GetExpiredSubscriptions finds rows whose validity or trial window has
// passed but whose status has not been rolled over yet.
func (r *Repository) GetExpiredSubscriptions(ctx context.Context, now time.Time) ([]*Subscription, error) {
	subs := []*Subscription{}
	query := `
        SELECT * FROM subscriptions
        WHERE (status = 'active' AND ends_at IS NOT NULL AND ends_at <= $1)
           OR (status = 'trialing' AND trial_ends_at IS NOT NULL AND trial_ends_at <= $1)`

	err := r.db.SelectContext(ctx, &subs, query, now)
	return subs, err
}

// Usage operations

func (r *Repository) CreateUsageRecord(ctx context.Context, u *UsageRecord) error {
	query := `
        INSERT INTO usage_records (
            id, tenant_id, subscription_id, metric, quantity,
            period_start, period_end, reported, recorded_at
        ) VALUES (
            :id, :tenant_id, :subscription_id, :metric, :quantity,
            :period_start, :period_end, :reported, :recorded_at
        )`

	_, err := r.db.NamedExecContext(ctx, query, u)
	return err
}

func (r *Repository) ListUsageRecords(ctx context.Context, tenantID string, periodStart, periodEnd time.Time) ([]*UsageRecord, error) {
	records := []*UsageRecord{}
	query := `
        SELECT * FROM usage_records
        WHERE tenant_id = $1 AND period_start >= $2 AND period_end <= $3
        ORDER BY recorded_at DESC`

	err := r.db.SelectContext(ctx, &records, query, tenantID, periodStart, periodEnd)
	return records, err
}

// SumUsage totals a metric for a tenant inside one billing period.
func (r *Repository) SumUsage(ctx context.Context, tenantID, metric string, periodStart, periodEnd time.Time) (int64, error) {
	var total int64
	query := `
        SELECT COALESCE(SUM(quantity), 0) FROM usage_records
        WHERE tenant_id = $1 AND metric = $2
          AND period_start >= $3 AND period_end <= $4`

	err := r.db.GetContext(ctx, &total, query, tenantID, metric, periodStart, periodEnd)
	return total, err
}

func (r *Repository) GetUnreportedUsage(ctx context.Context, limit int) ([]*UsageRecord, error) {
	records := []*UsageRecord{}
	query := `
        SELECT * FROM usage_records
        WHERE reported = false
        ORDER BY recorded_at
        LIMIT $1`

	err := r.db.SelectContext(ctx, &records, query, limit)
	return records, err
}

func (r *Repository) MarkUsageReported(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sqlx.In(
		`UPDATE usage_records SET reported = true, reported_at = ? WHERE id IN (?)`, at, ids)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	return err
}

// Currency rate operations

func (r *Repository) GetCurrencyRate(ctx context.Context, base, quote string, date time.Time) (*CurrencyRate, error) {
	var cr CurrencyRate
	query := `
        SELECT * FROM currency_rates
        WHERE base_currency = $1 AND quote_currency = $2 AND rate_date = $3::date`

	err := r.db.GetContext(ctx, &cr, query, base, quote, date)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return &cr, err
}

func (r *Repository) SaveCurrencyRate(ctx context.Context, cr *CurrencyRate) error {
	query := `
        INSERT INTO currency_rates (
            id, base_currency, quote_currency, rate, rate_date, source, created_at
        ) VALUES (
            :id, :base_currency, :quote_currency, :rate, :rate_date, :source, :created_at
        ) ON CONFLICT (base_currency, quote_currency, rate_date) DO UPDATE SET
            rate = EXCLUDED.rate,
            source = EXCLUDED.source`

	_, err := r.db.NamedExecContext(ctx, query, cr)
	return err
}
