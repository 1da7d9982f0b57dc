package ratelimit

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tenantops/platform-core/internal/db"
)

type fakeConfigStore struct {
	rows  []*db.RateLimitConfig
	reads int
}

func (s *fakeConfigStore) GetRateLimitConfig(_ context.Context, tenantID *string, limitType db.LimitType) (*db.RateLimitConfig, error) {
	s.reads++
	for _, row := range s.rows {
		if row.LimitType != limitType || !row.IsActive {
			continue
		}
		if tenantID == nil && row.TenantID == nil {
			return row, nil
		}
		if tenantID != nil && row.TenantID != nil && *tenantID == *row.TenantID {
			return row, nil
		}
	}
	return nil, db.ErrNotFound
}

func (s *fakeConfigStore) CreateRateLimitConfig(_ context.Context, c *db.RateLimitConfig) error {
	s.rows = append(s.rows, c)
	return nil
}

func (s *fakeConfigStore) UpdateRateLimitConfig(_ context.Context, c *db.RateLimitConfig) error {
	for i, row := range s.rows {
		if row.ID == c.ID {
			s.rows[i] = c
			return nil
		}
	}
	return db.ErrNotFound
}

func (s *fakeConfigStore) DeleteRateLimitConfig(_ context.Context, id string) (*db.RateLimitConfig, error) {
	for i, row := range s.rows {
		if row.ID == id {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
			return row, nil
		}
	}
	return nil, db.ErrNotFound
}

func (s *fakeConfigStore) ListRateLimitConfigs(_ context.Context, tenantID string) ([]*db.RateLimitConfig, error) {
	var out []*db.RateLimitConfig
	for _, row := range s.rows {
		if row.TenantID != nil && *row.TenantID == tenantID {
			out = append(out, row)
		}
	}
	return out, nil
}

type fakeCache struct {
	entries map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string][]byte{}}
}

func (c *fakeCache) GetJSON(_ context.Context, key string, dest interface{}) error {
	data, ok := c.entries[key]
	if !ok {
		return db.ErrNotFound
	}
	return json.Unmarshal(data, dest)
}

func (c *fakeCache) SetJSON(_ context.Context, key string, value interface{}, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = data
	return nil
}

func (c *fakeCache) Delete(_ context.Context, key string) error {
	delete(c.entries, key)
	return nil
}

func (c *fakeCache) DeletePattern(_ context.Context, pattern string) error {
	// Patterns in this package are always "prefix*suffix".
	parts := strings.SplitN(pattern, "*", 2)
	for key := range c.entries {
		if strings.HasPrefix(key, parts[0]) && strings.HasSuffix(key, parts[1]) {
			delete(c.entries, key)
		}
	}
	return nil
}

func tenantRow(id, tenantID string, limitType db.LimitType, maxRequests int) *db.RateLimitConfig {
	return &db.RateLimitConfig{
		ID:            id,
		TenantID:      &tenantID,
		LimitType:     limitType,
		MaxRequests:   maxRequests,
		WindowSeconds: 60,
		IsActive:      true,
	}
}

func globalRow(id string, limitType db.LimitType, maxRequests int) *db.RateLimitConfig {
	return &db.RateLimitConfig{
		ID:            id,
		LimitType:     limitType,
		MaxRequests:   maxRequests,
		WindowSeconds: 60,
		IsActive:      true,
	}
}

func TestGetConfigTenantOverridesGlobal(t *testing.T) {
	store := &fakeConfigStore{rows: []*db.RateLimitConfig{
		globalRow("g1", db.LimitTypeAPI, 100),
		tenantRow("t1", "tenant-1", db.LimitTypeAPI, 500),
	}}
	svc := NewService(store, newFakeCache(), zap.NewNop())

	policy, err := svc.GetConfig(context.Background(), "tenant-1", db.LimitTypeAPI)
	if err != nil {
		t.Fatal(err)
	}
	if policy.MaxRequests != 500 || policy.Source != "tenant" {
		t.Errorf("policy = %+v, want tenant row to win", policy)
	}
}

func TestGetConfigFallsBackToGlobal(t *testing.T) {
	store := &fakeConfigStore{rows: []*db.RateLimitConfig{
		globalRow("g1", db.LimitTypeAPI, 100),
	}}
	svc := NewService(store, newFakeCache(), zap.NewNop())

	policy, err := svc.GetConfig(context.Background(), "tenant-2", db.LimitTypeAPI)
	if err != nil {
		t.Fatal(err)
	}
	if policy.MaxRequests != 100 || policy.Source != "global" {
		t.Errorf("policy = %+v, want global row", policy)
	}
}

func TestGetConfigHardcodedDefaults(t *testing.T) {
	svc := NewService(&fakeConfigStore{}, newFakeCache(), zap.NewNop())

	cases := []struct {
		limitType db.LimitType
		want      int
	}{
		{db.LimitTypeAPI, 300},
		{db.LimitTypeWeb, 120},
		{db.LimitTypeWebhook, 60},
		{db.LimitTypeOther, 30},
	}
	for _, tc := range cases {
		policy, err := svc.GetConfig(context.Background(), "tenant-1", tc.limitType)
		if err != nil {
			t.Fatal(err)
		}
		if policy.MaxRequests != tc.want || policy.Source != "default" {
			t.Errorf("%s: policy = %+v, want default %d/min", tc.limitType, policy, tc.want)
		}
		if policy.Window != time.Minute {
			t.Errorf("%s: window = %v, want 1m", tc.limitType, policy.Window)
		}
	}
}

func TestGetConfigCachesResolution(t *testing.T) {
	store := &fakeConfigStore{rows: []*db.RateLimitConfig{
		tenantRow("t1", "tenant-1", db.LimitTypeAPI, 500),
	}}
	svc := NewService(store, newFakeCache(), zap.NewNop())

	svc.GetConfig(context.Background(), "tenant-1", db.LimitTypeAPI)
	readsAfterFirst := store.reads

	svc.GetConfig(context.Background(), "tenant-1", db.LimitTypeAPI)
	if store.reads != readsAfterFirst {
		t.Error("second lookup hit the store instead of the cache")
	}
}

func TestUpdateInvalidatesTenantEntry(t *testing.T) {
	row := tenantRow("t1", "tenant-1", db.LimitTypeAPI, 500)
	store := &fakeConfigStore{rows: []*db.RateLimitConfig{row}}
	svc := NewService(store, newFakeCache(), zap.NewNop())

	svc.GetConfig(context.Background(), "tenant-1", db.LimitTypeAPI)

	updated := *row
	updated.MaxRequests = 50
	if err := svc.Update(context.Background(), &updated); err != nil {
		t.Fatal(err)
	}

	policy, err := svc.GetConfig(context.Background(), "tenant-1", db.LimitTypeAPI)
	if err != nil {
		t.Fatal(err)
	}
	if policy.MaxRequests != 50 {
		t.Errorf("policy after update = %d, stale cache entry served", policy.MaxRequests)
	}
}

func TestGlobalChangeInvalidatesAllTenantEntries(t *testing.T) {
	global := globalRow("g1", db.LimitTypeWeb, 100)
	store := &fakeConfigStore{rows: []*db.RateLimitConfig{global}}
	cache := newFakeCache()
	svc := NewService(store, cache, zap.NewNop())

	svc.GetConfig(context.Background(), "tenant-1", db.LimitTypeWeb)
	svc.GetConfig(context.Background(), "tenant-2", db.LimitTypeWeb)
	svc.GetConfig(context.Background(), "tenant-3", db.LimitTypeAPI)

	updated := *global
	updated.MaxRequests = 10
	if err := svc.Update(context.Background(), &updated); err != nil {
		t.Fatal(err)
	}

	for _, tenant := range []string{"tenant-1", "tenant-2"} {
		policy, _ := svc.GetConfig(context.Background(), tenant, db.LimitTypeWeb)
		if policy.MaxRequests != 10 {
			t.Errorf("%s: stale web policy %d after global update", tenant, policy.MaxRequests)
		}
	}

	// Entries for other limit types survive the pattern delete.
	if _, ok := cache.entries[cacheKey("tenant-3", db.LimitTypeAPI)]; !ok {
		t.Error("api entry was wrongly invalidated by a web policy change")
	}
}
