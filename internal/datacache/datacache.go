// Package datacache holds capability datasets between runs so repeated
// identical requests within the freshness window cost one provider call.
//
// Core invariant: entries are immutable. A stale entry is never refreshed in
// place — the replacement is written wholesale, and readers that already
// hold the old dataset keep a consistent value.
package datacache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/benputley1/cex-reporter-sub000/internal/capability"
)

const (
	defaultTTL         = 5 * time.Minute
	defaultLoadTimeout = 10 * time.Second
)

// Config configures the cache.
type Config struct {
	// TTL is the freshness window. Zero = 5 minute default; negative
	// disables reuse entirely (every read loads).
	TTL time.Duration

	// LoadTimeout bounds a single provider load. Zero = 10 second default.
	LoadTimeout time.Duration
}

// Cache is a keyed dataset cache with miss coalescing.
// Safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry

	ttl         time.Duration
	loadTimeout time.Duration
	group       singleflight.Group
	logger      *slog.Logger
	metrics     *Metrics

	hits   atomic.Uint64
	misses atomic.Uint64
}

type entry struct {
	ds       *capability.Dataset
	loadedAt time.Time
}

// New creates a Cache.
func New(cfg Config, logger *slog.Logger) *Cache {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = defaultTTL
	}
	loadTimeout := cfg.LoadTimeout
	if loadTimeout == 0 {
		loadTimeout = defaultLoadTimeout
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Cache{
		entries:     make(map[string]entry),
		ttl:         ttl,
		loadTimeout: loadTimeout,
		logger:      logger,
	}
}

// WithMetrics enables Prometheus metrics on the cache. Nil is a no-op.
func (c *Cache) WithMetrics(m *Metrics) *Cache {
	c.metrics = m
	return c
}

// GetOrLoad returns the dataset for key, loading it through fn on a miss.
// Concurrent misses for the same key coalesce into a single provider call;
// every caller shares that call's result. Failed loads are never stored.
//
// Loads run on a context detached from the requesting run: with coalescing,
// one run's cancellation must not fail the load for the runs sharing it. The
// load is bounded by the cache's own LoadTimeout instead.
func (c *Cache) GetOrLoad(ctx context.Context, key string, fn func(context.Context) (*capability.Dataset, error)) (*capability.Dataset, error) {
	if ds, ok := c.lookup(key); ok {
		c.hits.Add(1)
		if c.metrics != nil {
			c.metrics.Hits.Inc()
		}
		return ds, nil
	}
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.Misses.Inc()
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		// A coalesced waiter may arrive after the winner already stored the
		// entry; re-check before loading.
		if ds, ok := c.lookup(key); ok {
			return ds, nil
		}
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()

		start := time.Now()
		ds, err := fn(loadCtx)
		if err != nil {
			return nil, err
		}
		c.store(key, ds)
		c.logger.Debug("cache entry loaded",
			slog.String("key", key),
			slog.Int("rows", len(ds.Rows)),
			slog.Duration("took", time.Since(start)),
		)
		return ds, nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", key, err)
	}
	if shared {
		if c.metrics != nil {
			c.metrics.Coalesced.Inc()
		}
		c.logger.Debug("cache load coalesced", slog.String("key", key))
	}
	return v.(*capability.Dataset), nil
}

// lookup returns the entry for key if present and fresh.
func (c *Cache) lookup(key string) (*capability.Dataset, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || time.Since(e.loadedAt) > c.ttl {
		return nil, false
	}
	return e.ds, true
}

func (c *Cache) store(key string, ds *capability.Dataset) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{ds: ds, loadedAt: time.Now()}
	if c.metrics != nil {
		c.metrics.Entries.Set(float64(len(c.entries)))
	}
}

// Clear drops every entry. The next read for any key loads fresh data.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
	if c.metrics != nil {
		c.metrics.Entries.Set(0)
	}
	c.logger.Info("cache cleared")
}

// Sweep removes entries past the freshness window and returns how many were
// dropped. Correctness does not depend on sweeping — lookup re-checks age —
// it only bounds memory held by dead entries.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, e := range c.entries {
		if time.Since(e.loadedAt) > c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	if c.metrics != nil {
		c.metrics.Sweeps.Add(float64(removed))
		c.metrics.Entries.Set(float64(len(c.entries)))
	}
	return removed
}

// Stats is a point-in-time cache snapshot.
type Stats struct {
	Entries   int
	Hits      uint64
	Misses    uint64
	OldestAge time.Duration
	TTL       time.Duration
}

// Stats reports the cache state.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Stats{
		Entries: len(c.entries),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		TTL:     c.ttl,
	}
	for _, e := range c.entries {
		if age := time.Since(e.loadedAt); age > s.OldestAge {
			s.OldestAge = age
		}
	}
	return s
}
