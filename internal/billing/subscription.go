package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tenantops/platform-core/internal/db"
	"github.com/tenantops/platform-core/internal/metrics"
	"github.com/tenantops/platform-core/internal/webhooks"
)

var (
	ErrAlreadySubscribed = errors.New("tenant already has a subscription")
	ErrNoSubscription    = errors.New("tenant has no subscription")
)

// Store is the persistence surface for plans, subscriptions and usage.
type Store interface {
	GetPlan(ctx context.Context, id string) (*db.Plan, error)
	GetPlanByCode(ctx context.Context, code string) (*db.Plan, error)
	ListPlans(ctx context.Context) ([]*db.Plan, error)
	CreateSubscription(ctx context.Context, s *db.Subscription) error
	GetCurrentSubscription(ctx context.Context, tenantID string) (*db.Subscription, error)
	GetSubscription(ctx context.Context, id, tenantID string) (*db.Subscription, error)
	UpdateSubscription(ctx context.Context, s *db.Subscription) error
	GetExpiredSubscriptions(ctx context.Context, now time.Time) ([]*db.Subscription, error)
	CreateUsageRecord(ctx context.Context, u *db.UsageRecord) error
	SumUsage(ctx context.Context, tenantID, metric string, periodStart, periodEnd time.Time) (int64, error)
	GetUnreportedUsage(ctx context.Context, limit int) ([]*db.UsageRecord, error)
	MarkUsageReported(ctx context.Context, ids []string, at time.Time) error
	ListUsageRecords(ctx context.Context, tenantID string, periodStart, periodEnd time.Time) ([]*db.UsageRecord, error)
}

// EventDispatcher fans subscription lifecycle events out to webhooks.
type EventDispatcher interface {
	Dispatch(ctx context.Context, tenantID, event string, payload map[string]interface{}, async bool) (*webhooks.DispatchResult, error)
}

type Service struct {
	store      Store
	dispatcher EventDispatcher
	logger     *zap.Logger
	metrics    *metrics.Collector
	now        func() time.Time
}

func NewService(store Store, dispatcher EventDispatcher, logger *zap.Logger, collector *metrics.Collector) *Service {
	return &Service{
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    collector,
		now:        time.Now,
	}
}

// Subscribe binds a tenant to a plan. Plans with trial days start in
// trialing status; otherwise the subscription is active immediately.
func (s *Service) Subscribe(ctx context.Context, tenantID, planCode, billingCycle string) (*db.Subscription, error) {
	if _, err := s.store.GetCurrentSubscription(ctx, tenantID); err == nil {
		return nil, ErrAlreadySubscribed
	} else if !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("failed to check current subscription: %w", err)
	}

	plan, err := s.store.GetPlanByCode(ctx, planCode)
	if err != nil {
		return nil, fmt.Errorf("failed to load plan %s: %w", planCode, err)
	}

	now := s.now()
	sub := &db.Subscription{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		PlanID:       plan.ID,
		Status:       db.SubscriptionActive,
		BillingCycle: billingCycle,
		StartsAt:     now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if plan.TrialDays > 0 {
		trialEnd := now.AddDate(0, 0, plan.TrialDays)
		sub.Status = db.SubscriptionTrialing
		sub.TrialEndsAt = &trialEnd
	}

	if err := s.store.CreateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	s.emit(ctx, tenantID, "subscription.created", map[string]interface{}{
		"subscription_id": sub.ID,
		"plan":            plan.Code,
		"status":          string(sub.Status),
		"billing_cycle":   sub.BillingCycle,
	})

	s.logger.Info("Subscription created",
		zap.String("subscription_id", sub.ID),
		zap.String("tenant_id", tenantID),
		zap.String("plan", plan.Code),
		zap.String("status", string(sub.Status)),
	)

	return sub, nil
}

// Cancel ends a subscription. Immediate cancellation closes access now;
// otherwise access runs until the end of the current billing period.
func (s *Service) Cancel(ctx context.Context, subID, tenantID, reason string, immediate bool) (*db.Subscription, error) {
	sub, err := s.store.GetSubscription(ctx, subID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}

	if sub.Status == db.SubscriptionCancelled || sub.Status == db.SubscriptionExpired {
		return sub, nil
	}

	now := s.now()
	sub.CancelledAt = &now
	if reason != "" {
		sub.CancelReason = &reason
	}

	if immediate {
		sub.Status = db.SubscriptionCancelled
		sub.EndsAt = &now
	} else {
		_, periodEnd := currentPeriod(sub, now)
		sub.EndsAt = &periodEnd
	}
	sub.UpdatedAt = now

	if err := s.store.UpdateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to cancel subscription: %w", err)
	}

	s.emit(ctx, tenantID, "subscription.cancelled", map[string]interface{}{
		"subscription_id": sub.ID,
		"immediate":       immediate,
		"ends_at":         sub.EndsAt.UTC().Format(time.RFC3339),
	})

	return sub, nil
}

// Current returns the tenant's current subscription.
func (s *Service) Current(ctx context.Context, tenantID string) (*db.Subscription, error) {
	sub, err := s.store.GetCurrentSubscription(ctx, tenantID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNoSubscription
	}
	return sub, err
}

// HasModuleAccess is the single gating decision: the subscription must
// be active (or inside an unexpired trial) and its plan must include
// the module.
func (s *Service) HasModuleAccess(ctx context.Context, tenantID, module string) (bool, error) {
	sub, err := s.store.GetCurrentSubscription(ctx, tenantID)
	if errors.Is(err, db.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load subscription: %w", err)
	}

	now := s.now()
	if !sub.IsActive(now) && !sub.InTrial(now) {
		return false, nil
	}

	plan, err := s.store.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return false, fmt.Errorf("failed to load plan: %w", err)
	}
	return plan.Modules.Contains(module), nil
}

// ExpireDue rolls over subscriptions whose validity or trial window has
// passed. Run periodically by the scheduler.
func (s *Service) ExpireDue(ctx context.Context) (int, error) {
	subs, err := s.store.GetExpiredSubscriptions(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to find expired subscriptions: %w", err)
	}

	expired := 0
	for _, sub := range subs {
		sub.Status = db.SubscriptionExpired
		sub.UpdatedAt = s.now()

		if err := s.store.UpdateSubscription(ctx, sub); err != nil {
			s.logger.Error("Failed to expire subscription",
				zap.Error(err),
				zap.String("subscription_id", sub.ID),
			)
			continue
		}
		expired++

		s.emit(ctx, sub.TenantID, "subscription.expired", map[string]interface{}{
			"subscription_id": sub.ID,
		})
	}

	return expired, nil
}

func (s *Service) ListPlans(ctx context.Context) ([]*db.Plan, error) {
	return s.store.ListPlans(ctx)
}

func (s *Service) emit(ctx context.Context, tenantID, event string, payload map[string]interface{}) {
	if s.metrics != nil {
		s.metrics.RecordSubscriptionEvent(event)
	}
	if s.dispatcher == nil {
		return
	}
	if _, err := s.dispatcher.Dispatch(ctx, tenantID, event, payload, true); err != nil {
		s.logger.Warn("Failed to dispatch subscription event",
			zap.Error(err),
			zap.String("event", event),
			zap.String("tenant_id", tenantID),
		)
	}
}

// currentPeriod computes the billing period containing the given time,
// anchored on the subscription start.
func currentPeriod(sub *db.Subscription, now time.Time) (time.Time, time.Time) {
	months := 1
	if sub.BillingCycle == "yearly" {
		months = 12
	}

	start := sub.StartsAt
	for {
		end := start.AddDate(0, months, 0)
		if end.After(now) {
			return start, end
		}
		start = end
	}
}
