// Package cache provides the shared capability result cache. It keys
// results by request fingerprint, guarantees at most one in-flight
// computation per fingerprint, and serves cached successes until TTL
// expiry. Failed computations are never cached.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sells-group/outreach-cli/internal/model"
)

// ComputeFunc produces a capability result on a cache miss.
type ComputeFunc func(ctx context.Context) (*model.CapabilityResult, error)

type entry struct {
	result    *model.CapabilityResult
	createdAt time.Time
	expiresAt time.Time
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Entries   int   `json:"entries"`
}

// Cache is the fingerprint-keyed result cache shared by all concurrent
// pipeline runs. The single-flight group is the only synchronization
// point the pipeline relies on for duplicate provider suppression.
type Cache struct {
	ttl        time.Duration
	maxEntries int

	flight singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// New creates a Cache. maxEntries <= 0 disables the LRU-style cap;
// time-based expiry always applies.
func New(ttl time.Duration, maxEntries int) *Cache {
	return &Cache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
		nowFunc:    time.Now,
	}
}

type bypassKey struct{}

// WithBypass marks the context so GetOrCompute skips the cached entry
// and recomputes. Cache hits intentionally suppress re-generation for
// stochastic providers; callers that need fresh output opt out here.
// A successful bypass overwrites the cached entry.
func WithBypass(ctx context.Context) context.Context {
	return context.WithValue(ctx, bypassKey{}, true)
}

func bypassed(ctx context.Context) bool {
	v, _ := ctx.Value(bypassKey{}).(bool)
	return v
}

// GetOrCompute returns the cached result for the fingerprint or runs
// compute. Concurrent callers for the same fingerprint observe exactly
// one execution of compute and all receive its outcome, success or
// failure. Cached results are marked with CacheHit.
func (c *Cache) GetOrCompute(ctx context.Context, fingerprint string, compute ComputeFunc) (*model.CapabilityResult, error) {
	if !bypassed(ctx) {
		if res, ok := c.lookup(fingerprint); ok {
			c.hits.Add(1)
			return res, nil
		}
	}

	// Bypass flights fly under their own key so they never join an
	// in-flight normal computation and inherit its (possibly cached)
	// result.
	key := fingerprint
	if bypassed(ctx) {
		key = fingerprint + ":bypass"
	}
	v, err, _ := c.flight.Do(key, func() (any, error) {
		// Another caller in the same flight window may have already
		// stored a fresh entry; honor it unless bypassing.
		if !bypassed(ctx) {
			if res, ok := c.lookup(fingerprint); ok {
				c.hits.Add(1)
				return res, nil
			}
		}
		c.misses.Add(1)

		res, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.store(fingerprint, res)
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.CapabilityResult), nil
}

// Invalidate drops the cached entry for a fingerprint.
func (c *Cache) Invalidate(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, fingerprint)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	n := len(c.entries)
	c.mu.Unlock()
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Entries:   n,
	}
}

// lookup returns a hit-flagged copy of a fresh entry. Expired entries
// are removed on access.
func (c *Cache) lookup(fingerprint string) (*model.CapabilityResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[fingerprint]
	if !ok {
		return nil, false
	}
	if c.nowFunc().After(e.expiresAt) {
		delete(c.entries, fingerprint)
		return nil, false
	}

	// Copy so callers never mutate the cached result. The payload map
	// is shared and treated as immutable once cached.
	res := *e.result
	res.CacheHit = true
	return &res, true
}

func (c *Cache) store(fingerprint string, res *model.CapabilityResult) {
	now := c.nowFunc()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[fingerprint] = &entry{
		result:    res,
		createdAt: now,
		expiresAt: now.Add(c.ttl),
	}

	// Hardening cap: evict oldest entries past maxEntries. The map
	// scan is fine at the cap sizes used here.
	if c.maxEntries > 0 {
		for len(c.entries) > c.maxEntries {
			oldestKey := ""
			var oldest time.Time
			for k, e := range c.entries {
				if oldestKey == "" || e.createdAt.Before(oldest) {
					oldestKey = k
					oldest = e.createdAt
				}
			}
			delete(c.entries, oldestKey)
			c.evictions.Add(1)
		}
	}
}
