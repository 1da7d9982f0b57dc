package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// WindowStore counts hits inside a time window. The Redis cache client
// implements it; tests inject an in-memory version. Keeping the store
// injected means multiple workers share one counter instead of each
// process keeping its own map.
type WindowStore interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Limiter is a windowed counter keyed by an arbitrary identifier, such
// as a tenant ID or an SMS recipient.
type Limiter struct {
	store  WindowStore
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewLimiter(store WindowStore, prefix string, limit int, window time.Duration) *Limiter {
	return &Limiter{
		store:  store,
		prefix: prefix,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow counts one hit against the key's current window and reports
// whether it is still inside the limit.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	bucket := l.now().Unix() / int64(l.window.Seconds())
	windowKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, bucket)

	count, err := l.store.IncrWindow(ctx, windowKey, l.window)
	if err != nil {
		return false, fmt.Errorf("failed to count window hit: %w", err)
	}
	return count <= int64(l.limit), nil
}

// BurstGate smooths short spikes with per-key token buckets on top of
// the shared window counter. Buckets are process-local; the
// authoritative count lives in the window store.
type BurstGate struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func NewBurstGate(perSecond float64, burst int) *BurstGate {
	return &BurstGate{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(perSecond),
		burst:    burst,
	}
}

func (g *BurstGate) Allow(key string) bool {
	return g.AllowLimit(key, float64(g.rps), g.burst)
}

// AllowLimit admits under a caller-supplied refill rate and burst size.
// The bucket is created on first sight of the key; later calls reuse it
// even if the supplied limits changed.
func (g *BurstGate) AllowLimit(key string, perSecond float64, burst int) bool {
	g.mu.Lock()
	lim, ok := g.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(perSecond), burst)
		g.limiters[key] = lim
	}
	g.mu.Unlock()

	return lim.Allow()
}
