package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeWindowStore struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newFakeWindowStore() *fakeWindowStore {
	return &fakeWindowStore{counts: map[string]int64{}}
}

func (s *fakeWindowStore) IncrWindow(_ context.Context, key string, _ time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[key]++
	return s.counts[key], nil
}

func TestLimiterAllowsUpToLimit(t *testing.T) {
	lim := NewLimiter(newFakeWindowStore(), "test", 3, time.Minute)
	lim.now = func() time.Time { return time.Unix(1000, 0) }

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		ok, err := lim.Allow(ctx, "key")
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatalf("request %d rejected inside the limit", i+1)
		}
	}

	ok, _ := lim.Allow(ctx, "key")
	if ok {
		t.Error("request over the limit was admitted")
	}
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	lim := NewLimiter(newFakeWindowStore(), "test", 1, time.Minute)
	lim.now = func() time.Time { return time.Unix(1000, 0) }

	ctx := context.Background()
	lim.Allow(ctx, "a")
	if ok, _ := lim.Allow(ctx, "a"); ok {
		t.Error("key a over its limit")
	}
	if ok, _ := lim.Allow(ctx, "b"); !ok {
		t.Error("key b rejected by key a's counter")
	}
}

func TestLimiterNewWindowResetsCount(t *testing.T) {
	lim := NewLimiter(newFakeWindowStore(), "test", 1, time.Minute)
	lim.now = func() time.Time { return time.Unix(1000, 0) }

	ctx := context.Background()
	lim.Allow(ctx, "key")
	if ok, _ := lim.Allow(ctx, "key"); ok {
		t.Fatal("second request in same window admitted over limit")
	}

	lim.now = func() time.Time { return time.Unix(1000+60, 0) }
	if ok, _ := lim.Allow(ctx, "key"); !ok {
		t.Error("request in a fresh window was rejected")
	}
}

func TestBurstGateLimitsBurst(t *testing.T) {
	gate := NewBurstGate(0.001, 2)

	if !gate.Allow("k") || !gate.Allow("k") {
		t.Fatal("burst capacity rejected")
	}
	if gate.Allow("k") {
		t.Error("request over burst capacity admitted")
	}
	if !gate.Allow("other") {
		t.Error("unrelated key throttled")
	}
}
