// Package identity resolves natural keys to single in-memory handles for
// the duration of one population run.
//
// A Cache checks its memo, then the store, and only then builds a new
// entity. New entities are queued until the owning stage commits them.
package identity

import (
	"context"
	"sync"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/interpro-loader/internal/errors"
)

// Lookup finds a persisted entity by natural key. found is false when the
// store has no such key.
type Lookup[T any] func(ctx context.Context, key string) (value T, found bool, err error)

// Stats counts how GetOrCreate and Resolve calls were satisfied.
type Stats struct {
	MemoHits  int64
	StoreHits int64
	Created   int64
	Misses    int64
}

// Cache is a per-run, per-kind identity map. It is safe for concurrent use,
// though the pipeline drives it from a single goroutine.
type Cache[T any] struct {
	kind   string
	lookup Lookup[T]

	mu          sync.Mutex
	memo        *cache.Cache
	pending     []T
	pendingKeys []string
	stats       Stats
}

// New creates an empty cache for one entity kind.
func New[T any](kind string, lookup Lookup[T]) *Cache[T] {
	return &Cache[T]{
		kind:   kind,
		lookup: lookup,
		// No expiry and no janitor goroutine: entries live exactly as long as the run.
		memo: cache.New(cache.NoExpiration, 0),
	}
}

// GetOrCreate returns the handle for key. Repeated calls with the same key
// return the identical handle. When neither the memo nor the store knows
// the key, factory builds the entity, which is memoized and queued for insert.
func (c *Cache[T]) GetOrCreate(ctx context.Context, key string, factory func() T) (T, error) {
	return c.GetOrCreateMatching(ctx, key, factory, nil)
}

// GetOrCreateMatching is GetOrCreate with a conflict check. When key
// already has a handle, matches is called with it and a false result is a
// fatal duplicate-key error. factory only runs for new keys.
func (c *Cache[T]) GetOrCreateMatching(ctx context.Context, key string, factory func() T, matches func(existing T) bool) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.memo.Get(key); ok {
		c.stats.MemoHits++
		existing := v.(T)
		return existing, c.checkConflict(key, existing, matches)
	}

	var zero T
	existing, found, err := c.lookupLocked(ctx, key)
	if err != nil {
		return zero, err
	}
	if found {
		c.stats.StoreHits++
		c.memo.SetDefault(key, existing)
		return existing, c.checkConflict(key, existing, matches)
	}

	created := factory()
	c.stats.Created++
	c.memo.SetDefault(key, created)
	c.pending = append(c.pending, created)
	c.pendingKeys = append(c.pendingKeys, key)
	return created, nil
}

// Resolve returns the handle for key without ever creating one. Store hits
// are memoized; misses are not.
func (c *Cache[T]) Resolve(ctx context.Context, key string) (T, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.memo.Get(key); ok {
		c.stats.MemoHits++
		return v.(T), true, nil
	}

	value, found, err := c.lookupLocked(ctx, key)
	if err != nil || !found {
		if err == nil {
			c.stats.Misses++
		}
		return value, false, err
	}
	c.stats.StoreHits++
	c.memo.SetDefault(key, value)
	return value, true, nil
}

func (c *Cache[T]) lookupLocked(ctx context.Context, key string) (T, bool, error) {
	var zero T
	if c.lookup == nil {
		return zero, false, nil
	}
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	value, found, err := c.lookup(ctx, key)
	if err != nil {
		return zero, false, errors.New(err).
			Component("identity").
			Category(errors.CategoryDatabase).
			Context("kind", c.kind).
			Context("key", key).
			Build()
	}
	return value, found, nil
}

func (c *Cache[T]) checkConflict(key string, existing T, matches func(T) bool) error {
	if matches == nil || matches(existing) {
		return nil
	}
	return errors.Newf("%s %q redefined with conflicting attributes", c.kind, key).
		Component("identity").
		Category(errors.CategoryDuplicateKey).
		Priority(errors.PriorityHigh).
		Context("kind", c.kind).
		Context("key", key).
		Build()
}

// Pending returns the entities created since the last Commit or Discard, in
// creation order.
func (c *Cache[T]) Pending() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, len(c.pending))
	copy(out, c.pending)
	return out
}

// Commit marks all pending entities as persisted. Their handles stay memoized.
func (c *Cache[T]) Commit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = nil
	c.pendingKeys = nil
}

// Discard forgets pending entities after a failed commit so later calls
// consult the store again.
func (c *Cache[T]) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.pendingKeys {
		c.memo.Delete(key)
	}
	c.pending = nil
	c.pendingKeys = nil
}

// Forget drops committed keys from the memo.
func (c *Cache[T]) Forget(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		c.memo.Delete(key)
	}
}

// Len returns the number of memoized handles.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.memo.ItemCount()
}

// Stats returns a snapshot of the hit counters.
func (c *Cache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Kind returns the entity kind this cache resolves.
func (c *Cache[T]) Kind() string { return c.kind }

// FromFinder adapts a finder that reports a missing key with an error
// matching notFound.
func FromFinder[T any](find func(ctx context.Context, key string) (T, error), notFound error) Lookup[T] {
	return func(ctx context.Context, key string) (T, bool, error) {
		v, err := find(ctx, key)
		if errors.Is(err, notFound) {
			var zero T
			return zero, false, nil
		}
		if err != nil {
			var zero T
			return zero, false, err
		}
		return v, true, nil
	}
}
