// Package cache provides the bounded TTL caches shared by the embedding and answer paths.
//
// Eviction is by insertion order, not recency: when a cache grows past its bound the entry
// that was inserted first goes, regardless of how often it was read. Overwriting a key keeps
// its original insertion position and refreshes its timestamp.
package cache

import (
	"container/list"
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Backend is the contract both the in-memory and the redis caches satisfy.
// A miss never fails: backend errors are reported as misses.
type Backend[V any] interface {
	Get(ctx context.Context, key string) (V, bool)
	Set(ctx context.Context, key string, value V)
}

// Observer is notified of hits and misses. internal/metrics implements it.
type Observer interface {
	CacheLookup(cache string, hit bool)
}

type entry[V any] struct {
	key     string
	value   V
	created time.Time
	elem    *list.Element
}

// Cache is an in-memory TTL cache bounded by entry count.
type Cache[V any] struct {
	name     string
	ttl      time.Duration
	max      int
	mu       sync.Mutex
	entries  map[string]*entry[V]
	order    *list.List // front = oldest insertion
	now      func() time.Time
	observer Observer
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	now      func() time.Time
	observer Observer
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithObserver reports hits and misses to o.
func WithObserver(o Observer) Option {
	return func(opts *options) { opts.observer = o }
}

// New creates a cache named name holding at most max entries for ttl each.
func New[V any](name string, ttl time.Duration, max int, opts ...Option) *Cache[V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if max <= 0 {
		max = 1
	}
	return &Cache[V]{
		name:     name,
		ttl:      ttl,
		max:      max,
		entries:  make(map[string]*entry[V]),
		order:    list.New(),
		now:      o.now,
		observer: o.observer,
	}
}

// Get returns the value for key if present and younger than the TTL.
// Expired entries found on read are removed.
func (c *Cache[V]) Get(_ context.Context, key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if ok && c.now().Sub(e.created) >= c.ttl {
		c.removeLocked(e)
		ok = false
	}
	if c.observer != nil {
		c.observer.CacheLookup(c.name, ok)
	}
	if !ok {
		return zero, false
	}
	return e.value, true
}

// Set stores value under key. Last writer wins.
func (c *Cache[V]) Set(_ context.Context, key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.entries[key]; ok {
		e.value = value
		e.created = now
		return
	}

	e := &entry[V]{key: key, value: value, created: now}
	e.elem = c.order.PushBack(e)
	c.entries[key] = e

	for len(c.entries) > c.max {
		oldest := c.order.Front()
		c.removeLocked(oldest.Value.(*entry[V]))
	}
}

// Delete removes key if present.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.removeLocked(e)
	}
}

// Len returns the number of stored entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep removes every expired entry and returns how many were removed.
func (c *Cache[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for elem := c.order.Front(); elem != nil; {
		next := elem.Next()
		e := elem.Value.(*entry[V])
		if now.Sub(e.created) >= c.ttl {
			c.removeLocked(e)
			removed++
		}
		elem = next
	}
	return removed
}

// Run sweeps expired entries every interval until ctx is done.
func (c *Cache[V]) Run(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				logger.Debug("Swept expired cache entries", "cache", c.name, "removed", n)
			}
		}
	}
}

func (c *Cache[V]) removeLocked(e *entry[V]) {
	c.order.Remove(e.elem)
	delete(c.entries, e.key)
}

// NormalizeQuery lowercases q and collapses runs of whitespace.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// ResponseKey combines a caller identity with the normalized query.
func ResponseKey(userID, query string) string {
	if userID == "" {
		return NormalizeQuery(query)
	}
	return userID + ":" + NormalizeQuery(query)
}
