package rates

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Cache stores rates by key. A zero ttl means the entry never expires.
type Cache interface {
	Get(ctx context.Context, key string) (decimal.Decimal, bool, error)
	Set(ctx context.Context, key string, v decimal.Decimal, ttl time.Duration) error
}

// Cached wraps a Provider with a Cache. Concurrent misses share a single
// upstream request. Cache failures are logged and fall through to the
// upstream provider.
type Cached struct {
	upstream Provider
	cache    Cache
	key      string
	ttl      time.Duration
	group    singleflight.Group
}

var _ Provider = (*Cached)(nil)

// NewCached creates a caching Provider. key identifies the quote in the
// cache; ttl 0 keeps the first successful rate for the process lifetime.
func NewCached(upstream Provider, cache Cache, key string, ttl time.Duration) *Cached {
	return &Cached{
		upstream: upstream,
		cache:    cache,
		key:      key,
		ttl:      ttl,
	}
}

// Rate implements Provider.
func (c *Cached) Rate(ctx context.Context) (decimal.Decimal, error) {
	lg := zctx.From(ctx)

	v, ok, err := c.cache.Get(ctx, c.key)
	switch {
	case err != nil:
		lg.Warn("Read cached exchange rate", zap.String("key", c.key), zap.Error(err))
	case ok:
		return v, nil
	}

	// The shared fetch outlives any single caller: a canceled caller stops
	// waiting without failing the others.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(c.key, func() (any, error) {
		rate, err := c.upstream.Rate(fetchCtx)
		if err != nil {
			return nil, err
		}
		if err := c.cache.Set(fetchCtx, c.key, rate, c.ttl); err != nil {
			lg.Warn("Store exchange rate", zap.String("key", c.key), zap.Error(err))
		}
		return rate, nil
	})
	select {
	case <-ctx.Done():
		return decimal.Zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return decimal.Zero, res.Err
		}
		return res.Val.(decimal.Decimal), nil
	}
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value   decimal.Decimal
	expires time.Time // zero means never
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: map[string]memoryEntry{},
		now:     time.Now,
	}
}

// Get implements Cache.
func (m *MemoryCache) Get(_ context.Context, key string) (decimal.Decimal, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return decimal.Zero, false, nil
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.entries, key)
		return decimal.Zero, false, nil
	}
	return e.value, true, nil
}

// Set implements Cache.
func (m *MemoryCache) Set(_ context.Context, key string, v decimal.Decimal, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := memoryEntry{value: v}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}
