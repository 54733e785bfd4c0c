package entitystore

import (
	"context"
	"sync"
)

// Cache stores committed entities by subject IRI. Implementations must hand
// out independent copies; a cached entity must never share mutable
// containers with what a caller mutates afterwards.
type Cache interface {
	Get(ctx context.Context, subject IRI) (*Entity, bool, error)
	Set(ctx context.Context, e *Entity) error
	Delete(ctx context.Context, subject IRI) error
}

// contextKey is a private type to prevent context key collisions.
type contextKey string

// CacheBypassKey is the context key used to store the cache bypass flag.
const CacheBypassKey contextKey = "entitystore.cache_bypass"

// WithCacheBypass returns a context that signals read operations to skip the
// cache and read from the store, for callers that need read-after-write
// freshness across processes.
//
// Example usage:
//
//	ctx = entitystore.WithCacheBypass(ctx)
//	project, err := store.Load(ctx, schema, graph, subject)
func WithCacheBypass(ctx context.Context) context.Context {
	return context.WithValue(ctx, CacheBypassKey, true)
}

// CacheBypassed extracts the cache bypass flag from the context. Without the
// flag reads are served from the cache when possible.
func CacheBypassed(ctx context.Context) bool {
	bypass, ok := ctx.Value(CacheBypassKey).(bool)
	return ok && bypass
}

// MemoryCache is a process-local Cache backed by a map. Entities are cloned
// on the way in and on the way out.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[IRI]*Entity
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[IRI]*Entity)}
}

func (c *MemoryCache) Get(_ context.Context, subject IRI) (*Entity, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[subject]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	clone, err := e.Clone()
	if err != nil {
		return nil, false, err
	}

	return clone, true, nil
}

func (c *MemoryCache) Set(_ context.Context, e *Entity) error {
	clone, err := e.Clone()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.entries[e.Subject()] = clone
	c.mu.Unlock()

	return nil
}

func (c *MemoryCache) Delete(_ context.Context, subject IRI) error {
	c.mu.Lock()
	delete(c.entries, subject)
	c.mu.Unlock()

	return nil
}
