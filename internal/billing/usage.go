package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tenantops/platform-core/internal/db"
)

// RecordUsage appends one metered usage event against the tenant's
// current billing period. Records are append-only; totals are computed
// by summation, never by mutating rows.
func (s *Service) RecordUsage(ctx context.Context, tenantID, metric string, quantity int64) (*db.UsageRecord, error) {
	sub, err := s.store.GetCurrentSubscription(ctx, tenantID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNoSubscription
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}

	now := s.now()
	periodStart, periodEnd := currentPeriod(sub, now)

	record := &db.UsageRecord{
		ID:             uuid.New().String(),
		TenantID:       tenantID,
		SubscriptionID: sub.ID,
		Metric:         metric,
		Quantity:       quantity,
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		RecordedAt:     now,
	}

	if err := s.store.CreateUsageRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to record usage: %w", err)
	}
	return record, nil
}

// UsagePercentage computes how much of the plan's quota for a metric the
// tenant has consumed in the current billing period. A metric absent
// from the plan quotas is unlimited and reports 0%.
func (s *Service) UsagePercentage(ctx context.Context, tenantID, metric string) (float64, error) {
	sub, err := s.store.GetCurrentSubscription(ctx, tenantID)
	if errors.Is(err, db.ErrNotFound) {
		return 0, ErrNoSubscription
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load subscription: %w", err)
	}

	plan, err := s.store.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return 0, fmt.Errorf("failed to load plan: %w", err)
	}

	limit, ok := plan.Quotas[metric]
	if !ok || limit <= 0 {
		return 0, nil
	}

	periodStart, periodEnd := currentPeriod(sub, s.now())
	used, err := s.store.SumUsage(ctx, tenantID, metric, periodStart, periodEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to sum usage: %w", err)
	}

	return float64(used) / float64(limit) * 100, nil
}

// QuotaMetrics lists the metrics the tenant's plan limits.
func (s *Service) QuotaMetrics(ctx context.Context, tenantID string) ([]string, error) {
	sub, err := s.store.GetCurrentSubscription(ctx, tenantID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNoSubscription
	}
	if err != nil {
		return nil, err
	}

	plan, err := s.store.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}

	metrics := make([]string, 0, len(plan.Quotas))
	for metric := range plan.Quotas {
		metrics = append(metrics, metric)
	}
	return metrics, nil
}

// ListUsage returns the tenant's usage records for the current period.
func (s *Service) ListUsage(ctx context.Context, tenantID string) ([]*db.UsageRecord, error) {
	sub, err := s.store.GetCurrentSubscription(ctx, tenantID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNoSubscription
	}
	if err != nil {
		return nil, err
	}

	periodStart, periodEnd := currentPeriod(sub, s.now())
	return s.store.ListUsageRecords(ctx, tenantID, periodStart, periodEnd)
}

// ReportPending flags a batch of usage records as reported upstream.
func (s *Service) ReportPending(ctx context.Context, batchSize int) (int, error) {
	records, err := s.store.GetUnreportedUsage(ctx, batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to load unreported usage: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}

	if err := s.store.MarkUsageReported(ctx, ids, s.now()); err != nil {
		return 0, fmt.Errorf("failed to mark usage reported: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordUsageReported(len(ids))
	}
	s.logger.Debug("Usage records reported", zap.Int("count", len(ids)))

	return len(ids), nil
}
