package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

var ErrNotFound = fmt.Errorf("not found")

type Repository struct {
	db *sqlx.DB
}

func NewConnection(databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Ping() error {
	return r.db.Ping()
}

// Tenant operations

func (r *Repository) CreateTenant(ctx context.Context, t *Tenant, passwordHash string) error {
	query := `
        INSERT INTO tenants (id, name, email, is_active, created_at, updated_at)
        VALUES (:id, :name, :email, :is_active, :created_at, :updated_at)`

	_, err := r.db.NamedExecContext(ctx, query, t)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO tenant_passwords (tenant_id, password_hash) VALUES ($1, $2)`,
		t.ID, passwordHash,
	)
	return err
}

func (r *Repository) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	var t Tenant
	err := r.db.GetContext(ctx, &t, `SELECT * FROM tenants WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return &t, err
}

func (r *Repository) GetTenantByEmail(ctx context.Context, email string) (*Tenant, string, error) {
	var t Tenant
	var passwordHash string

	row := r.db.QueryRowContext(ctx, `
        SELECT t.id, t.name, t.email, t.is_active, t.created_at, t.updated_at, tp.password_hash
        FROM tenants t
        JOIN tenant_passwords tp ON t.id = tp.tenant_id
        WHERE t.email = $1`, email)

	err := row.Scan(&t.ID, &t.Name, &t.Email, &t.IsActive, &t.CreatedAt, &t.UpdatedAt, &passwordHash)
	if err == sql.ErrNoRows {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	return &t, passwordHash, nil
}

func (r *Repository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM tenants WHERE email = $1)`, email)
	return exists, err
}

func (r *Repository) ListTenantIDs(ctx context.Context) ([]string, error) {
	ids := []string{}
	err := r.db.SelectContext(ctx, &ids, `SELECT id FROM tenants WHERE is_active = true`)
	return ids, err
}

// Webhook operations

func (r *Repository) CreateWebhook(ctx context.Context, w *Webhook) error {
	query := `
        INSERT INTO webhooks (
            id, tenant_id, connector_id, url, secret, events, headers,
            is_active, max_attempts, timeout_seconds, success_count,
            failure_count, created_at, updated_at
        ) VALUES (
            :id, :tenant_id, :connector_id, :url, :secret, :events, :headers,
            :is_active, :max_attempts, :timeout_seconds, :success_count,
            :failure_count, :created_at, :updated_at
        )`

	_, err := r.db.NamedExecContext(ctx, query, w)
	return err
}

func (r *Repository) GetWebhook(ctx context.Context, id, tenantID string) (*Webhook, error) {
	var w Webhook
	err := r.db.GetContext(ctx, &w,
		`SELECT * FROM webhooks WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return &w, err
}

func (r *Repository) GetWebhookByID(ctx context.Context, id string) (*Webhook, error) {
	var w Webhook
	err := r.db.GetContext(ctx, &w, `SELECT * FROM webhooks WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return &w, err
}

func (r *Repository) ListWebhooks(ctx context.Context, tenantID string, limit, offset int) ([]*Webhook, error) {
	webhooks := []*Webhook{}
	query := `
        SELECT * FROM webhooks
        WHERE tenant_id = $1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`

	err := r.db.SelectContext(ctx, &webhooks, query, tenantID, limit, offset)
	return webhooks, err
}

func (r *Repository) UpdateWebhook(ctx context.Context, w *Webhook) error {
	query := `
        UPDATE webhooks SET
            url = :url,
            secret = :secret,
            events = :events,
            headers = :headers,
            is_active = :is_active,
            max_attempts = :max_attempts,
            timeout_seconds = :timeout_seconds,
            updated_at = :updated_at
        WHERE id = :id AND tenant_id = :tenant_id`

	_, err := r.db.NamedExecContext(ctx, query, w)
	return err
}

func (r *Repository) DeleteWebhook(ctx context.Context, id, tenantID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM webhooks WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	return err
}

// GetWebhooksByEvent resolves the active webhooks subscribed to an exact
// event name. Membership is JSONB containment, never a substring match.
func (r *Repository) GetWebhooksByEvent(ctx context.Context, tenantID, event string) ([]*Webhook, error) {
	member, err := json.Marshal([]string{event})
	if err != nil {
		return nil, err
	}

	webhooks := []*Webhook{}
	query := `
        SELECT * FROM webhooks
        WHERE tenant_id = $1 AND is_active = true AND events @> $2`

	err = r.db.SelectContext(ctx, &webhooks, query, tenantID, member)
	return webhooks, err
}

// RecordDeliverySuccess atomically bumps the success counter and stamps
// the last trigger time. Counter updates are done in SQL so concurrent
// deliveries to the same webhook never lose increments.
func (r *Repository) RecordDeliverySuccess(ctx context.Context, webhookID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
        UPDATE webhooks
        SET success_count = success_count + 1, last_triggered_at = $2
        WHERE id = $1`, webhookID, at)
	return err
}

func (r *Repository) RecordDeliveryFailure(ctx context.Context, webhookID string) error {
	_, err := r.db.ExecContext(ctx, `
        UPDATE webhooks
        SET failure_count = failure_count + 1
        WHERE id = $1`, webhookID)
	return err
}

func (r *Repository) CreateWebhookLog(ctx context.Context, l *WebhookLog) error {
	query := `
        INSERT INTO webhook_logs (
            id, webhook_id, tenant_id, event, payload, status_code,
            response_body, attempt, duration_ms, success, error, created_at
        ) VALUES (
            :id, :webhook_id, :tenant_id, :event, :payload, :status_code,
            :response_body, :attempt, :duration_ms, :success, :error, :created_at
        )`

	_, err := r.db.NamedExecContext(ctx, query, l)
	return err
}

func (r *Repository) ListWebhookLogs(ctx context.Context, webhookID, tenantID string, limit, offset int) ([]*WebhookLog, error) {
	logs := []*WebhookLog{}
	query := `
        SELECT l.* FROM webhook_logs l
        JOIN webhooks w ON l.webhook_id = w.id
        WHERE l.webhook_id = $1 AND w.tenant_id = $2
        ORDER BY l.created_at DESC
        LIMIT $3 OFFSET $4`

	err := r.db.SelectContext(ctx, &logs, query, webhookID, tenantID, limit, offset)
	return logs, err
}

// GetFailingWebhooks returns active webhooks whose recent failures exceed
// the threshold, for the scheduler's failure scan.
func (r *Repository) GetFailingWebhooks(ctx context.Context, minFailures int) ([]*Webhook, error) {
	webhooks := []*Webhook{}
	query := `
        SELECT * FROM webhooks
        WHERE is_active = true AND failure_count >= $1
        ORDER BY failure_count DESC`

	err := r.db.SelectContext(ctx, &webhooks, query, minFailures)
	return webhooks, err
}
