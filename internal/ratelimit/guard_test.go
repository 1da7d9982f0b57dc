package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tenantops/platform-core/internal/db"
)

// expiringWindowStore mirrors the redis cache's IncrWindow: the count
// resets once the key expires, but every hit refreshes the TTL.
type expiringWindowStore struct {
	now     func() time.Time
	counts  map[string]int64
	expires map[string]time.Time
	err     error
}

func newExpiringWindowStore(now func() time.Time) *expiringWindowStore {
	return &expiringWindowStore{
		now:     now,
		counts:  map[string]int64{},
		expires: map[string]time.Time{},
	}
}

func (s *expiringWindowStore) IncrWindow(_ context.Context, key string, window time.Duration) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	if exp, ok := s.expires[key]; ok && !s.now().Before(exp) {
		delete(s.counts, key)
	}
	s.counts[key]++
	s.expires[key] = s.now().Add(window)
	return s.counts[key], nil
}

func guardPolicyRow(tenantID string, maxRequests, windowSeconds int) *db.RateLimitConfig {
	return &db.RateLimitConfig{
		ID:            "g-" + tenantID,
		TenantID:      &tenantID,
		LimitType:     db.LimitTypeAPI,
		MaxRequests:   maxRequests,
		WindowSeconds: windowSeconds,
		IsActive:      true,
	}
}

func newTestGuard(row *db.RateLimitConfig, windows WindowStore, now func() time.Time) *Guard {
	svc := NewService(&fakeConfigStore{rows: []*db.RateLimitConfig{row}}, newFakeCache(), zap.NewNop())
	g := NewGuard(svc, windows)
	g.now = now
	return g
}

func TestGuardAdmitsUpToPolicyLimit(t *testing.T) {
	clock := time.Unix(1000, 0)
	now := func() time.Time { return clock }
	g := newTestGuard(guardPolicyRow("tenant-1", 3, 60), newExpiringWindowStore(now), now)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		decision, err := g.Allow(ctx, "tenant-1", db.LimitTypeAPI)
		if err != nil {
			t.Fatal(err)
		}
		if !decision.Allowed {
			t.Fatalf("request %d rejected inside the limit", i+1)
		}
		if decision.Count != int64(i+1) {
			t.Errorf("count = %d, want %d", decision.Count, i+1)
		}
	}

	decision, err := g.Allow(ctx, "tenant-1", db.LimitTypeAPI)
	if err != nil {
		t.Fatal(err)
	}
	if decision.Allowed {
		t.Error("request over the limit was admitted")
	}
	if decision.Policy.MaxRequests != 3 {
		t.Errorf("policy on decision = %d, want the resolved row", decision.Policy.MaxRequests)
	}
}

func TestGuardFreshWindowResetsCount(t *testing.T) {
	clock := time.Unix(1000, 0)
	now := func() time.Time { return clock }
	g := newTestGuard(guardPolicyRow("tenant-1", 1, 60), newExpiringWindowStore(now), now)

	ctx := context.Background()
	g.Allow(ctx, "tenant-1", db.LimitTypeAPI)
	if decision, _ := g.Allow(ctx, "tenant-1", db.LimitTypeAPI); decision.Allowed {
		t.Fatal("second request in the same window admitted over limit")
	}

	clock = clock.Add(60 * time.Second)
	if decision, _ := g.Allow(ctx, "tenant-1", db.LimitTypeAPI); !decision.Allowed {
		t.Error("request in a fresh window was rejected")
	}
}

func TestGuardSustainedSubLimitTrafficStaysAdmitted(t *testing.T) {
	// 2 req/s against a 5-per-second policy. The tenant never goes
	// idle, so the store refreshes the key's TTL on every hit; only
	// window-bucketed keys keep the count from growing across windows.
	clock := time.Unix(1000, 0)
	now := func() time.Time { return clock }
	g := newTestGuard(guardPolicyRow("tenant-1", 5, 1), newExpiringWindowStore(now), now)

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		decision, err := g.Allow(ctx, "tenant-1", db.LimitTypeAPI)
		if err != nil {
			t.Fatal(err)
		}
		if !decision.Allowed {
			t.Fatalf("request %d rejected: traffic below the policy rate must always be admitted", i+1)
		}
		clock = clock.Add(500 * time.Millisecond)
	}
}

func TestGuardFailsOpenOnStoreError(t *testing.T) {
	clock := time.Unix(1000, 0)
	now := func() time.Time { return clock }
	store := newExpiringWindowStore(now)
	store.err = errors.New("redis down")
	g := newTestGuard(guardPolicyRow("tenant-1", 1, 60), store, now)

	decision, err := g.Allow(context.Background(), "tenant-1", db.LimitTypeAPI)
	if err != nil {
		t.Fatal(err)
	}
	if !decision.Allowed {
		t.Error("unavailable window store must admit the request")
	}
}
