package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tenantops/platform-core/internal/db"
)

// Policy is the resolved effective rate-limit policy for one tenant and
// limit type.
type Policy struct {
	LimitType       db.LimitType  `json:"limit_type"`
	MaxRequests     int           `json:"max_requests"`
	Window          time.Duration `json:"window"`
	BurstLimit      int           `json:"burst_limit"`
	ThrottlePercent int           `json:"throttle_percent"`
	BlockDuration   time.Duration `json:"block_duration"`
	IPAllowList     []string      `json:"ip_allow_list,omitempty"`
	IPDenyList      []string      `json:"ip_deny_list,omitempty"`
	Source          string        `json:"source"`
}

// Hardcoded fallbacks per limit type, used when neither a tenant row nor
// a global row exists.
var defaultPolicies = map[db.LimitType]Policy{
	db.LimitTypeAPI: {
		LimitType: db.LimitTypeAPI, MaxRequests: 300, Window: time.Minute,
		BurstLimit: 50, BlockDuration: 5 * time.Minute, Source: "default",
	},
	db.LimitTypeWeb: {
		LimitType: db.LimitTypeWeb, MaxRequests: 120, Window: time.Minute,
		BurstLimit: 20, BlockDuration: 10 * time.Minute, Source: "default",
	},
	db.LimitTypeWebhook: {
		LimitType: db.LimitTypeWebhook, MaxRequests: 60, Window: time.Minute,
		BurstLimit: 10, BlockDuration: 15 * time.Minute, Source: "default",
	},
	db.LimitTypeOther: {
		LimitType: db.LimitTypeOther, MaxRequests: 30, Window: time.Minute,
		BurstLimit: 5, BlockDuration: 30 * time.Minute, Source: "default",
	},
}

// ConfigStore is the persistence surface for policy rows.
type ConfigStore interface {
	GetRateLimitConfig(ctx context.Context, tenantID *string, limitType db.LimitType) (*db.RateLimitConfig, error)
	CreateRateLimitConfig(ctx context.Context, c *db.RateLimitConfig) error
	UpdateRateLimitConfig(ctx context.Context, c *db.RateLimitConfig) error
	DeleteRateLimitConfig(ctx context.Context, id string) (*db.RateLimitConfig, error)
	ListRateLimitConfigs(ctx context.Context, tenantID string) ([]*db.RateLimitConfig, error)
}

// Cache is a read-through cache with explicit invalidation. Entries have
// no TTL: a cached policy is correct until a write invalidates it.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePattern(ctx context.Context, pattern string) error
}

type Service struct {
	store  ConfigStore
	cache  Cache
	logger *zap.Logger
}

func NewService(store ConfigStore, cache Cache, logger *zap.Logger) *Service {
	return &Service{store: store, cache: cache, logger: logger}
}

func cacheKey(tenantID string, limitType db.LimitType) string {
	return fmt.Sprintf("ratelimit:config:%s:%s", tenantID, limitType)
}

// GetConfig resolves the effective policy: tenant-specific active row,
// else global active row, else the hardcoded default for the limit type.
func (s *Service) GetConfig(ctx context.Context, tenantID string, limitType db.LimitType) (*Policy, error) {
	key := cacheKey(tenantID, limitType)

	var cached Policy
	if err := s.cache.GetJSON(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	policy, err := s.resolve(ctx, tenantID, limitType)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetJSON(ctx, key, policy, 0); err != nil {
		s.logger.Warn("Failed to cache rate limit policy",
			zap.Error(err),
			zap.String("tenant_id", tenantID),
			zap.String("limit_type", string(limitType)),
		)
	}

	return policy, nil
}

func (s *Service) resolve(ctx context.Context, tenantID string, limitType db.LimitType) (*Policy, error) {
	row, err := s.store.GetRateLimitConfig(ctx, &tenantID, limitType)
	if err == nil {
		return policyFromConfig(row, "tenant"), nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("failed to load tenant rate limit config: %w", err)
	}

	row, err = s.store.GetRateLimitConfig(ctx, nil, limitType)
	if err == nil {
		return policyFromConfig(row, "global"), nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("failed to load global rate limit config: %w", err)
	}

	def, ok := defaultPolicies[limitType]
	if !ok {
		def = defaultPolicies[db.LimitTypeOther]
	}
	return &def, nil
}

func policyFromConfig(c *db.RateLimitConfig, source string) *Policy {
	return &Policy{
		LimitType:       c.LimitType,
		MaxRequests:     c.MaxRequests,
		Window:          time.Duration(c.WindowSeconds) * time.Second,
		BurstLimit:      c.BurstLimit,
		ThrottlePercent: c.ThrottlePercent,
		BlockDuration:   time.Duration(c.BlockSeconds) * time.Second,
		IPAllowList:     c.IPAllowList,
		IPDenyList:      c.IPDenyList,
		Source:          source,
	}
}

// Create persists a policy row and invalidates the cache entries it can
// now shadow.
func (s *Service) Create(ctx context.Context, c *db.RateLimitConfig) error {
	if err := s.store.CreateRateLimitConfig(ctx, c); err != nil {
		return fmt.Errorf("failed to create rate limit config: %w", err)
	}
	return s.invalidate(ctx, c)
}

func (s *Service) Update(ctx context.Context, c *db.RateLimitConfig) error {
	if err := s.store.UpdateRateLimitConfig(ctx, c); err != nil {
		return fmt.Errorf("failed to update rate limit config: %w", err)
	}
	return s.invalidate(ctx, c)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	c, err := s.store.DeleteRateLimitConfig(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete rate limit config: %w", err)
	}
	return s.invalidate(ctx, c)
}

func (s *Service) List(ctx context.Context, tenantID string) ([]*db.RateLimitConfig, error) {
	return s.store.ListRateLimitConfigs(ctx, tenantID)
}

// invalidate drops derived cache entries. A tenant row affects one key;
// a global row may back any tenant's resolved policy for that limit
// type, so the whole pattern goes.
func (s *Service) invalidate(ctx context.Context, c *db.RateLimitConfig) error {
	if c.TenantID != nil {
		return s.cache.Delete(ctx, cacheKey(*c.TenantID, c.LimitType))
	}
	return s.cache.DeletePattern(ctx, fmt.Sprintf("ratelimit:config:*:%s", c.LimitType))
}
