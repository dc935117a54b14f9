package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/roach88/skillwave/internal/ir"
)

// DefaultCapacity is the default maximum number of in-memory entries.
const DefaultCapacity = 1024

// Cache is a bounded, thread-safe execution cache keyed by content hash.
//
// Thread-safety model:
//   - All methods are safe for concurrent use.
//   - The LRU keeps its own short critical section; Get/Put on distinct keys
//     never wait on each other beyond it.
//   - Entries are immutable values, so eviction never affects a reader that
//     already holds one.
type Cache struct {
	lru            *lru.Cache[ir.Hash, Entry]
	backend        Backend
	replayFailures bool
	now            func() time.Time
	logger         *slog.Logger

	hits      metric.Int64Counter
	misses    metric.Int64Counter
	evictions metric.Int64Counter
}

// Option configures a Cache.
type Option func(*Cache)

// WithBackend layers a persistent store under the in-memory LRU:
// read-through on miss, write-through on put.
func WithBackend(b Backend) Option {
	return func(c *Cache) {
		c.backend = b
	}
}

// WithReplayFailures makes failed entries usable as terminal outcomes.
// Default: false (a failed entry is a miss and the unit is retried).
func WithReplayFailures(replay bool) Option {
	return func(c *Cache) {
		c.replayFailures = replay
	}
}

// WithClock overrides the clock used to stamp entries without CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithLogger sets the logger used for backend and corruption warnings.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = l
	}
}

// New creates a Cache holding at most capacity entries in memory.
func New(capacity int, opts ...Option) (*Cache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("cache: capacity must be positive, got %d", capacity)
	}
	l, err := lru.New[ir.Hash, Entry](capacity)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}

	c := &Cache{
		lru:    l,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	meter := otel.Meter("skillwave/cache")
	if c.hits, err = meter.Int64Counter("skillwave.cache.hits",
		metric.WithDescription("Cache lookups that found an entry")); err != nil {
		return nil, err
	}
	if c.misses, err = meter.Int64Counter("skillwave.cache.misses",
		metric.WithDescription("Cache lookups that found nothing")); err != nil {
		return nil, err
	}
	if c.evictions, err = meter.Int64Counter("skillwave.cache.evictions",
		metric.WithDescription("Entries evicted by the LRU bound")); err != nil {
		return nil, err
	}

	return c, nil
}

// Get returns the entry stored for hash.
//
// On an in-memory miss the backend (if any) is consulted and a found entry
// is promoted into the LRU. Backend errors and corrupt entries are logged
// and reported as a miss; they never propagate.
func (c *Cache) Get(ctx context.Context, hash ir.Hash) (Entry, bool) {
	if e, ok := c.lru.Get(hash); ok {
		c.hits.Add(ctx, 1)
		return e, true
	}

	if e, ok := c.load(ctx, hash); ok {
		c.add(ctx, e)
		c.hits.Add(ctx, 1)
		return e, true
	}

	c.misses.Add(ctx, 1)
	return Entry{}, false
}

// Peek is like Get but leaves the cache untouched: recency is not
// updated, backend entries are not promoted and no metrics are recorded.
func (c *Cache) Peek(ctx context.Context, hash ir.Hash) (Entry, bool) {
	if e, ok := c.lru.Peek(hash); ok {
		return e, true
	}
	return c.load(ctx, hash)
}

func (c *Cache) load(ctx context.Context, hash ir.Hash) (Entry, bool) {
	if c.backend == nil {
		return Entry{}, false
	}
	e, ok, err := c.backend.LoadEntry(ctx, hash)
	switch {
	case err != nil:
		c.logger.Warn("cache backend load failed, treating as miss",
			"hash", hash.Short(), "error", err)
	case ok && e.Hash != hash:
		c.logger.Warn("cache backend returned mismatched entry, treating as miss",
			"hash", hash.Short(), "got", e.Hash.Short())
	case ok:
		if verr := e.validate(); verr != nil {
			c.logger.Warn("corrupt cache entry, treating as miss",
				"hash", hash.Short(), "error", verr)
			break
		}
		return e, true
	}
	return Entry{}, false
}

// Put inserts or atomically replaces the entry for e.Hash.
// A zero CreatedAt is stamped with the cache clock.
//
// The in-memory insert always happens for a valid entry; a backend write
// failure is returned so the caller can log it.
func (c *Cache) Put(ctx context.Context, e Entry) error {
	if err := e.validate(); err != nil {
		return err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = c.now()
	}
	if e.Output == nil {
		e.Output = ir.IRObject{}
	}

	c.add(ctx, e)

	if c.backend != nil {
		if err := c.backend.SaveEntry(ctx, e); err != nil {
			return fmt.Errorf("cache: backend save %s: %w", e.Hash.Short(), err)
		}
	}
	return nil
}

func (c *Cache) add(ctx context.Context, e Entry) {
	if evicted := c.lru.Add(e.Hash, e); evicted {
		c.evictions.Add(ctx, 1)
	}
}

// Invalidate removes every entry matched by sel, in the backend first and
// then in memory. A backend failure leaves the in-memory entries in place.
// Returns the number of entries removed.
func (c *Cache) Invalidate(ctx context.Context, sel Selector) (int, error) {
	sel, err := sel.Normalize()
	if err != nil {
		return 0, err
	}

	backendRemoved := 0
	if c.backend != nil {
		if backendRemoved, err = c.backend.DeleteEntries(ctx, sel); err != nil {
			return 0, fmt.Errorf("cache: backend invalidate: %w", err)
		}
	}

	removed := 0
	for _, key := range c.lru.Keys() {
		e, ok := c.lru.Peek(key)
		if !ok || !sel.Matches(e) {
			continue
		}
		if c.lru.Remove(key) {
			removed++
		}
	}
	// Every in-memory entry was written through or loaded from the
	// backend, so the backend count is the total.
	removed = max(removed, backendRemoved)

	c.logger.Info("cache invalidated", "unit", sel.UnitID, "prefix", sel.HashPrefix, "removed", removed)
	return removed, nil
}

// Len returns the number of in-memory entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Usable applies the failed-entry policy: a succeeded entry is always
// usable; a failed entry only when failure replay is configured.
func (c *Cache) Usable(e Entry) bool {
	if e.Status == StatusSucceeded {
		return true
	}
	return c.replayFailures && e.Status == StatusFailed
}
