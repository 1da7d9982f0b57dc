package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Quota warning operations.
//
// The find-or-create-then-increment sequence is a check-then-act race
// under concurrent triggers for the same tenant, so it runs inside a
// transaction holding a row lock on the current cycle.

func (r *Repository) UpsertQuotaWarning(ctx context.Context, tenantID, quotaType string, percentage float64, threshold ThresholdType, now time.Time) (*QuotaWarning, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var w QuotaWarning
	err = tx.GetContext(ctx, &w, `
        SELECT * FROM quota_warnings
        WHERE tenant_id = $1 AND quota_type = $2 AND dismissed = false
        FOR UPDATE`, tenantID, quotaType)

	if err == sql.ErrNoRows {
		w = QuotaWarning{
			ID:            uuid.New().String(),
			TenantID:      tenantID,
			QuotaType:     quotaType,
			FirstWarnedAt: now,
			Metadata:      JSONB{},
			CreatedAt:     now,
		}
		_, err = tx.NamedExecContext(ctx, `
            INSERT INTO quota_warnings (
                id, tenant_id, quota_type, percentage, threshold_type,
                first_warned_at, last_warned_at, warning_count, dismissed,
                metadata, created_at
            ) VALUES (
                :id, :tenant_id, :quota_type, :percentage, :threshold_type,
                :first_warned_at, :first_warned_at, 0, false,
                :metadata, :created_at
            )`, map[string]interface{}{
			"id":              w.ID,
			"tenant_id":       w.TenantID,
			"quota_type":      w.QuotaType,
			"percentage":      percentage,
			"threshold_type":  threshold,
			"first_warned_at": now,
			"metadata":        w.Metadata,
			"created_at":      now,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create quota warning: %w", err)
		}
	} else if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
        UPDATE quota_warnings
        SET percentage = $2,
            threshold_type = $3,
            last_warned_at = $4,
            warning_count = warning_count + 1
        WHERE id = $1`, w.ID, percentage, threshold, now)
	if err != nil {
		return nil, fmt.Errorf("failed to update quota warning: %w", err)
	}

	if err := tx.GetContext(ctx, &w, `SELECT * FROM quota_warnings WHERE id = $1`, w.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *Repository) GetQuotaWarning(ctx context.Context, id, tenantID string) (*QuotaWarning, error) {
	var w QuotaWarning
	err := r.db.GetContext(ctx, &w,
		`SELECT * FROM quota_warnings WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return &w, err
}

// ActiveQuotaWarnings returns the non-dismissed warning cycles for a tenant.
func (r *Repository) ActiveQuotaWarnings(ctx context.Context, tenantID string) ([]*QuotaWarning, error) {
	warnings := []*QuotaWarning{}
	query := `
        SELECT * FROM quota_warnings
        WHERE tenant_id = $1 AND dismissed = false
        ORDER BY last_warned_at DESC`

	err := r.db.SelectContext(ctx, &warnings, query, tenantID)
	return warnings, err
}

// DismissQuotaWarning closes the current cycle. A later breach for the
// same tenant and quota type starts a fresh row with a new first_warned_at.
func (r *Repository) DismissQuotaWarning(ctx context.Context, id, tenantID, userID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
        UPDATE quota_warnings
        SET dismissed = true, dismissed_at = $3, dismissed_by = $4
        WHERE id = $1 AND tenant_id = $2 AND dismissed = false`,
		id, tenantID, at, userID)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Rate limit config operations.

func (r *Repository) CreateRateLimitConfig(ctx context.Context, c *RateLimitConfig) error {
	query := `
        INSERT INTO rate_limit_configs (
            id, tenant_id, limit_type, max_requests, window_seconds,
            burst_limit, throttle_percent, block_seconds, ip_allow_list,
            ip_deny_list, is_active, created_at, updated_at
        ) VALUES (
            :id, :tenant_id, :limit_type, :max_requests, :window_seconds,
            :burst_limit, :throttle_percent, :block_seconds, :ip_allow_list,
            :ip_deny_list, :is_active, :created_at, :updated_at
        )`

	_, err := r.db.NamedExecContext(ctx, query, c)
	return err
}

// GetRateLimitConfig returns the active tenant-specific config for a
// limit type. Pass nil tenantID for the global row.
func (r *Repository) GetRateLimitConfig(ctx context.Context, tenantID *string, limitType LimitType) (*RateLimitConfig, error) {
	var c RateLimitConfig
	var err error

	if tenantID == nil {
		err = r.db.GetContext(ctx, &c, `
            SELECT * FROM rate_limit_configs
            WHERE tenant_id IS NULL AND limit_type = $1 AND is_active = true`, limitType)
	} else {
		err = r.db.GetContext(ctx, &c, `
            SELECT * FROM rate_limit_configs
            WHERE tenant_id = $1 AND limit_type = $2 AND is_active = true`, *tenantID, limitType)
	}

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return &c, err
}

func (r *Repository) ListRateLimitConfigs(ctx context.Context, tenantID string) ([]*RateLimitConfig, error) {
	configs := []*RateLimitConfig{}
	query := `
        SELECT * FROM rate_limit_configs
        WHERE tenant_id = $1 OR tenant_id IS NULL
        ORDER BY limit_type, tenant_id NULLS LAST`

	err := r.db.SelectContext(ctx, &configs, query, tenantID)
	return configs, err
}

func (r *Repository) UpdateRateLimitConfig(ctx context.Context, c *RateLimitConfig) error {
	query := `
        UPDATE rate_limit_configs SET
            max_requests = :max_requests,
            window_seconds = :window_seconds,
            burst_limit = :burst_limit,
            throttle_percent = :throttle_percent,
            block_seconds = :block_seconds,
            ip_allow_list = :ip_allow_list,
            ip_deny_list = :ip_deny_list,
            is_active = :is_active,
            updated_at = :updated_at
        WHERE id = :id`

	_, err := r.db.NamedExecContext(ctx, query, c)
	return err
}

func (r *Repository) DeleteRateLimitConfig(ctx context.Context, id string) (*RateLimitConfig, error) {
	var c RateLimitConfig
	err := r.db.GetContext(ctx, &c, `SELECT * FROM rate_limit_configs WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	_, err = r.db.ExecContext(ctx, `DELETE FROM rate_limit_configs WHERE id = $1`, id)
	return &c, err
}
