package registry

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// CachedRegistry memoizes ListByKind results for a fixed TTL. Changes made
// through another process become visible once the entry expires.
type CachedRegistry struct {
	inner Registry
	ttl   time.Duration
	now   func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	descriptors []Descriptor
	expires     time.Time
}

// NewCachedRegistry wraps inner. A non-positive ttl disables caching.
func NewCachedRegistry(inner Registry, ttl time.Duration) *CachedRegistry {
	return &CachedRegistry{
		inner:   inner,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *CachedRegistry) ListByKind(ctx context.Context, kinds ...Kind) ([]Descriptor, error) {
	if c.ttl <= 0 {
		return c.inner.ListByKind(ctx, kinds...)
	}

	key := cacheKey(kinds)
	now := c.now()

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && now.Before(e.expires) {
		c.mu.Unlock()
		return append([]Descriptor(nil), e.descriptors...), nil
	}
	c.mu.Unlock()

	ds, err := c.inner.ListByKind(ctx, kinds...)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{descriptors: ds, expires: now.Add(c.ttl)}
	c.mu.Unlock()

	return append([]Descriptor(nil), ds...), nil
}

// Invalidate drops every cached entry.
func (c *CachedRegistry) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// Ping forwards to the wrapped registry when it supports health checks.
func (c *CachedRegistry) Ping(ctx context.Context) error {
	if p, ok := c.inner.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func cacheKey(kinds []Kind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
