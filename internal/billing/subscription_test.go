package billing

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tenantops/platform-core/internal/db"
	"github.com/tenantops/platform-core/internal/webhooks"
)

type fakeStore struct {
	plans []*db.Plan
	subs  []*db.Subscription
	usage []*db.UsageRecord
}

func (s *fakeStore) GetPlan(_ context.Context, id string) (*db.Plan, error) {
	for _, p := range s.plans {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, db.ErrNotFound
}

func (s *fakeStore) GetPlanByCode(_ context.Context, code string) (*db.Plan, error) {
	for _, p := range s.plans {
		if p.Code == code {
			return p, nil
		}
	}
	return nil, db.ErrNotFound
}

func (s *fakeStore) ListPlans(_ context.Context) ([]*db.Plan, error) {
	return s.plans, nil
}

func (s *fakeStore) CreateSubscription(_ context.Context, sub *db.Subscription) error {
	s.subs = append(s.subs, sub)
	return nil
}

func (s *fakeStore) GetCurrentSubscription(_ context.Context, tenantID string) (*db.Subscription, error) {
	for i := len(s.subs) - 1; i >= 0; i-- {
		sub := s.subs[i]
		if sub.TenantID == tenantID &&
			sub.Status != db.SubscriptionCancelled && sub.Status != db.SubscriptionExpired {
			return sub, nil
		}
	}
	return nil, db.ErrNotFound
}

func (s *fakeStore) GetSubscription(_ context.Context, id, tenantID string) (*db.Subscription, error) {
	for _, sub := range s.subs {
		if sub.ID == id && sub.TenantID == tenantID {
			return sub, nil
		}
	}
	return nil, db.ErrNotFound
}

func (s *fakeStore) UpdateSubscription(_ context.Context, sub *db.Subscription) error {
	for i, existing := range s.subs {
		if existing.ID == sub.ID {
			s.subs[i] = sub
			return nil
		}
	}
	return db.ErrNotFound
}

func (s *fakeStore) GetExpiredSubscriptions(_ context.Context, now time.Time) ([]*db.Subscription, error) {
	var out []*db.Subscription
	for _, sub := range s.subs {
		switch sub.Status {
		case db.SubscriptionActive:
			if sub.EndsAt != nil && !sub.EndsAt.After(now) {
				out = append(out, sub)
			}
		case db.SubscriptionTrialing:
			if sub.TrialEndsAt != nil && !sub.TrialEndsAt.After(now) {
				out = append(out, sub)
			}
		}
	}
	return out, nil
}

func (s *fakeStore) CreateUsageRecord(_ context.Context, u *db.UsageRecord) error {
	s.usage = append(s.usage, u)
	return nil
}

func (s *fakeStore) SumUsage(_ context.Context, tenantID, metric string, periodStart, periodEnd time.Time) (int64, error) {
	var total int64
	for _, u := range s.usage {
		if u.TenantID == tenantID && u.Metric == metric &&
			!u.RecordedAt.Before(periodStart) && u.RecordedAt.Before(periodEnd) {
			total += u.Quantity
		}
	}
	return total, nil
}

func (s *fakeStore) GetUnreportedUsage(_ context.Context, limit int) ([]*db.UsageRecord, error) {
	var out []*db.UsageRecord
	for _, u := range s.usage {
		if !u.Reported {
			out = append(out, u)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) MarkUsageReported(_ context.Context, ids []string, at time.Time) error {
	for _, u := range s.usage {
		for _, id := range ids {
			if u.ID == id {
				u.Reported = true
				u.ReportedAt = &at
			}
		}
	}
	return nil
}

func (s *fakeStore) ListUsageRecords(_ context.Context, tenantID string, periodStart, periodEnd time.Time) ([]*db.UsageRecord, error) {
	var out []*db.UsageRecord
	for _, u := range s.usage {
		if u.TenantID == tenantID && !u.RecordedAt.Before(periodStart) && u.RecordedAt.Before(periodEnd) {
			out = append(out, u)
		}
	}
	return out, nil
}

type fakeDispatcher struct {
	events []string
}

func (d *fakeDispatcher) Dispatch(_ context.Context, _, event string, _ map[string]interface{}, _ bool) (*webhooks.DispatchResult, error) {
	d.events = append(d.events, event)
	return &webhooks.DispatchResult{Event: event, Dispatched: 1, Async: true}, nil
}

var testNow = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

func proPlan() *db.Plan {
	return &db.Plan{
		ID:      "plan-pro",
		Code:    "pro",
		Name:    "Pro",
		Modules: db.StringSlice{"webhooks", "analytics"},
		Quotas:  db.Int64Map{"api_calls": 1000},
	}
}

func trialPlan() *db.Plan {
	p := proPlan()
	p.ID = "plan-trial"
	p.Code = "trial"
	p.TrialDays = 14
	return p
}

func newTestBilling(store *fakeStore, dispatcher *fakeDispatcher) *Service {
	svc := NewService(store, dispatcher, zap.NewNop(), nil)
	svc.now = func() time.Time { return testNow }
	return svc
}

func TestSubscribeActivatesImmediately(t *testing.T) {
	store := &fakeStore{plans: []*db.Plan{proPlan()}}
	dispatcher := &fakeDispatcher{}
	svc := newTestBilling(store, dispatcher)

	sub, err := svc.Subscribe(context.Background(), "tenant-1", "pro", "monthly")
	if err != nil {
		t.Fatal(err)
	}
	if sub.Status != db.SubscriptionActive {
		t.Errorf("status = %s, want active", sub.Status)
	}
	if !sub.IsActive(testNow) {
		t.Error("new subscription not active")
	}
	if len(dispatcher.events) != 1 || dispatcher.events[0] != "subscription.created" {
		t.Errorf("events = %v, want subscription.created", dispatcher.events)
	}
}

func TestSubscribeTrialPlanStartsTrialing(t *testing.T) {
	store := &fakeStore{plans: []*db.Plan{trialPlan()}}
	svc := newTestBilling(store, &fakeDispatcher{})

	sub, err := svc.Subscribe(context.Background(), "tenant-1", "trial", "monthly")
	if err != nil {
		t.Fatal(err)
	}
	if sub.Status != db.SubscriptionTrialing {
		t.Errorf("status = %s, want trialing", sub.Status)
	}
	wantEnd := testNow.AddDate(0, 0, 14)
	if sub.TrialEndsAt == nil || !sub.TrialEndsAt.Equal(wantEnd) {
		t.Errorf("trial ends = %v, want %v", sub.TrialEndsAt, wantEnd)
	}
	if !sub.InTrial(testNow) {
		t.Error("trialing subscription not in trial")
	}
}

func TestSubscribeRejectsSecondSubscription(t *testing.T) {
	store := &fakeStore{plans: []*db.Plan{proPlan()}}
	svc := newTestBilling(store, &fakeDispatcher{})

	if _, err := svc.Subscribe(context.Background(), "tenant-1", "pro", "monthly"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Subscribe(context.Background(), "tenant-1", "pro", "monthly"); err != ErrAlreadySubscribed {
		t.Errorf("err = %v, want ErrAlreadySubscribed", err)
	}
}

func TestCancelImmediateEndsNow(t *testing.T) {
	store := &fakeStore{plans: []*db.Plan{proPlan()}}
	dispatcher := &fakeDispatcher{}
	svc := newTestBilling(store, dispatcher)

	sub, _ := svc.Subscribe(context.Background(), "tenant-1", "pro", "monthly")

	cancelled, err := svc.Cancel(context.Background(), sub.ID, "tenant-1", "too expensive", true)
	if err != nil {
		t.Fatal(err)
	}
	if cancelled.Status != db.SubscriptionCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}
	if cancelled.EndsAt == nil || !cancelled.EndsAt.Equal(testNow) {
		t.Errorf("ends at = %v, want now", cancelled.EndsAt)
	}
	if cancelled.IsActive(testNow) {
		t.Error("immediately cancelled subscription still active")
	}
	if dispatcher.events[len(dispatcher.events)-1] != "subscription.cancelled" {
		t.Errorf("events = %v, want subscription.cancelled last", dispatcher.events)
	}
}

func TestCancelAtPeriodEndKeepsAccess(t *testing.T) {
	store := &fakeStore{plans: []*db.Plan{proPlan()}}
	svc := newTestBilling(store, &fakeDispatcher{})

	sub, _ := svc.Subscribe(context.Background(), "tenant-1", "pro", "monthly")

	// Move into the subscription's first period before cancelling.
	svc.now = func() time.Time { return testNow.AddDate(0, 0, 10) }
	cancelled, err := svc.Cancel(context.Background(), sub.ID, "tenant-1", "", false)
	if err != nil {
		t.Fatal(err)
	}

	wantEnd := testNow.AddDate(0, 1, 0)
	if cancelled.EndsAt == nil || !cancelled.EndsAt.Equal(wantEnd) {
		t.Errorf("ends at = %v, want period end %v", cancelled.EndsAt, wantEnd)
	}
	if !cancelled.IsActive(testNow.AddDate(0, 0, 10)) {
		t.Error("subscription lost access before period end")
	}
	if cancelled.IsActive(wantEnd.Add(time.Second)) {
		t.Error("subscription retained access past period end")
	}
}

func TestHasModuleAccess(t *testing.T) {
	store := &fakeStore{plans: []*db.Plan{proPlan()}}
	svc := newTestBilling(store, &fakeDispatcher{})

	if ok, _ := svc.HasModuleAccess(context.Background(), "tenant-1", "webhooks"); ok {
		t.Error("tenant without subscription has access")
	}

	svc.Subscribe(context.Background(), "tenant-1", "pro", "monthly")

	if ok, _ := svc.HasModuleAccess(context.Background(), "tenant-1", "webhooks"); !ok {
		t.Error("subscribed tenant denied a plan module")
	}
	if ok, _ := svc.HasModuleAccess(context.Background(), "tenant-1", "sso"); ok {
		t.Error("tenant granted a module outside the plan")
	}
}

func TestExpireDueRollsOverAndEmits(t *testing.T) {
	store := &fakeStore{plans: []*db.Plan{proPlan()}}
	dispatcher := &fakeDispatcher{}
	svc := newTestBilling(store, dispatcher)

	sub, _ := svc.Subscribe(context.Background(), "tenant-1", "pro", "monthly")
	past := testNow.Add(-time.Hour)
	sub.EndsAt = &past
	store.UpdateSubscription(context.Background(), sub)

	expired, err := svc.ExpireDue(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if expired != 1 {
		t.Errorf("expired = %d, want 1", expired)
	}
	if store.subs[0].Status != db.SubscriptionExpired {
		t.Errorf("status = %s, want expired", store.subs[0].Status)
	}
	if dispatcher.events[len(dispatcher.events)-1] != "subscription.expired" {
		t.Errorf("events = %v, want subscription.expired last", dispatcher.events)
	}
}
