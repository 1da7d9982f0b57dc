package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/tenantops/platform-core/internal/db"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed bool
	Policy  *Policy
	Count   int64
}

// Guard enforces resolved policies: the shared window counter is the
// authoritative limit, the local burst gate smooths spikes inside it.
type Guard struct {
	service *Service
	windows WindowStore
	bursts  *BurstGate
	now     func() time.Time
}

func NewGuard(service *Service, windows WindowStore) *Guard {
	return &Guard{
		service: service,
		windows: windows,
		bursts:  NewBurstGate(50, 100),
		now:     time.Now,
	}
}

// Allow admits or rejects one request for (tenant, limitType) under the
// tenant's effective policy. Window store failures admit the request: an
// unavailable counter must not take the API down with it.
func (g *Guard) Allow(ctx context.Context, tenantID string, limitType db.LimitType) (*Decision, error) {
	policy, err := g.service.GetConfig(ctx, tenantID, limitType)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve rate limit policy: %w", err)
	}

	if !g.burstAllow(tenantID, policy) {
		return &Decision{Allowed: false, Policy: policy}, nil
	}

	// The window bucket is folded into the key. The store refreshes the
	// key's TTL on every hit, so an unbucketed key under sustained
	// traffic would never expire and the count would grow forever.
	bucket := g.now().Unix() / int64(policy.Window.Seconds())
	key := fmt.Sprintf("ratelimit:hits:%s:%s:%d", tenantID, limitType, bucket)
	count, err := g.windows.IncrWindow(ctx, key, policy.Window)
	if err != nil {
		g.service.logger.Warn("Rate limit window store unavailable, admitting request")
		return &Decision{Allowed: true, Policy: policy}, nil
	}

	return &Decision{
		Allowed: count <= int64(policy.MaxRequests),
		Policy:  policy,
		Count:   count,
	}, nil
}

func (g *Guard) burstAllow(tenantID string, policy *Policy) bool {
	if policy.BurstLimit <= 0 {
		return true
	}
	perSecond := float64(policy.MaxRequests) / policy.Window.Seconds()
	return g.bursts.AllowLimit(
		fmt.Sprintf("%s:%s", tenantID, policy.LimitType),
		perSecond, policy.BurstLimit,
	)
}
