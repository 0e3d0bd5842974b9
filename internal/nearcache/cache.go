// Package nearcache caches recently read ringbuffer items next to the
// serving node. Entries are keyed by ringbuffer and sequence; because a
// sequence never changes its payload once assigned, cached entries only go
// stale when the head passes them, which invalidation sweeps handle.
package nearcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/loopgrid/ringd/internal/clock"
	"github.com/loopgrid/ringd/internal/metrics"
	"github.com/loopgrid/ringd/internal/serialization"
	"github.com/loopgrid/ringd/internal/util/workerpool"
)

// Config holds near cache configuration
type Config struct {
	Enabled    bool
	MaxEntries int
	TTL        time.Duration
	// Format selects how cached items are held: binary keeps the payload
	// bytes, object keeps the decoded value and re-encodes on read.
	Format serialization.InMemoryFormat
}

type cacheKey struct {
	ringbuffer string
	sequence   int64
}

type cacheEntry struct {
	value       interface{}
	deadline    int64 // epoch ms, 0 means no expiry
	accessCount int64
	lastAccess  int64
}

// Cache is a bounded read cache with TTL and score-based eviction.
// Invalidation sweeps run on the executor when one is configured, inline
// otherwise. A disabled cache never hits and never stores.
type Cache struct {
	cfg      Config
	codec    serialization.Service
	clock    clock.Clock
	executor *workerpool.WorkerPool
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu      sync.Mutex
	entries map[cacheKey]*cacheEntry
	seq     uint64
}

// New creates the near cache.
func New(cfg Config, codec serialization.Service, clk clock.Clock, executor *workerpool.WorkerPool, logger *zap.Logger, m *metrics.Metrics) *Cache {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10000
	}
	return &Cache{
		cfg:      cfg,
		codec:    codec,
		clock:    clk,
		executor: executor,
		logger:   logger,
		metrics:  m,
		entries:  make(map[cacheKey]*cacheEntry),
	}
}

// Get returns the cached payload for the sequence, if present and fresh.
func (c *Cache) Get(name string, seq int64) (serialization.Data, bool) {
	if !c.cfg.Enabled {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	k := cacheKey{ringbuffer: name, sequence: seq}
	e, found := c.entries[k]
	if !found {
		c.metrics.RecordNearCacheMiss()
		return nil, false
	}

	now := c.clock.NowMs()
	if e.deadline != 0 && e.deadline <= now {
		delete(c.entries, k)
		c.metrics.RecordNearCacheMiss()
		c.metrics.UpdateNearCacheEntries(len(c.entries))
		return nil, false
	}

	e.accessCount++
	e.lastAccess = now

	data, err := c.toDataForm(e.value)
	if err != nil {
		// An undecodable entry is useless; drop it and report a miss.
		c.logger.Warn("Dropping unreadable near cache entry",
			zap.String("ringbuffer", name),
			zap.Int64("sequence", seq),
			zap.Error(err))
		delete(c.entries, k)
		c.metrics.RecordNearCacheMiss()
		return nil, false
	}

	c.metrics.RecordNearCacheHit()
	return data, true
}

// Put stores the payload for a sequence, evicting low-score entries when
// the cache is full.
func (c *Cache) Put(name string, seq int64, data serialization.Data) {
	if !c.cfg.Enabled {
		return
	}

	value, err := c.toStoredForm(data)
	if err != nil {
		c.logger.Warn("Skipping near cache store",
			zap.String("ringbuffer", name),
			zap.Int64("sequence", seq),
			zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.NowMs()
	k := cacheKey{ringbuffer: name, sequence: seq}
	if _, found := c.entries[k]; !found {
		for len(c.entries) >= c.cfg.MaxEntries {
			c.evictLowestScore(now)
		}
	}

	var deadline int64
	if c.cfg.TTL > 0 {
		deadline = now + c.cfg.TTL.Milliseconds()
	}
	c.entries[k] = &cacheEntry{
		value:       value,
		deadline:    deadline,
		accessCount: 1,
		lastAccess:  now,
	}
	c.metrics.UpdateNearCacheEntries(len(c.entries))
}

// InvalidateBelow drops cached entries of the ringbuffer whose sequence
// fell below the head.
func (c *Cache) InvalidateBelow(name string, head int64) {
	c.sweep(fmt.Sprintf("below-%s-%d", name, head), func(k cacheKey) bool {
		return k.ringbuffer == name && k.sequence < head
	})
}

// InvalidateRingbuffer drops every cached entry of the ringbuffer. Used
// when a full sync replaces the container's state wholesale.
func (c *Cache) InvalidateRingbuffer(name string) {
	c.sweep("ringbuffer-"+name, func(k cacheKey) bool {
		return k.ringbuffer == name
	})
}

func (c *Cache) sweep(id string, match func(cacheKey) bool) {
	if !c.cfg.Enabled {
		return
	}

	run := func() {
		c.mu.Lock()
		removed := 0
		for k := range c.entries {
			if match(k) {
				delete(c.entries, k)
				removed++
			}
		}
		remaining := len(c.entries)
		c.mu.Unlock()

		if removed > 0 {
			c.metrics.RecordNearCacheInvalidation(removed)
			c.metrics.UpdateNearCacheEntries(remaining)
		}
	}

	if c.executor != nil {
		task := workerpool.Task{
			ID: fmt.Sprintf("nearcache-sweep-%s-%d", id, c.nextSweepID()),
			Fn: func(ctx context.Context) error {
				run()
				return nil
			},
		}
		if c.executor.TrySubmit(task) {
			return
		}
	}
	run()
}

func (c *Cache) nextSweepID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Len returns how many entries are currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats summarizes the cache for health reporting.
type Stats struct {
	Enabled    bool
	Entries    int
	MaxEntries int
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Enabled: c.cfg.Enabled, Entries: len(c.entries), MaxEntries: c.cfg.MaxEntries}
}

func (c *Cache) evictLowestScore(nowMs int64) {
	var lowestKey cacheKey
	lowestScore := 1e18
	found := false

	for k, e := range c.entries {
		score := c.score(e, nowMs)
		if !found || score < lowestScore {
			lowestScore = score
			lowestKey = k
			found = true
		}
	}
	if !found {
		return
	}

	delete(c.entries, lowestKey)
	c.metrics.RecordNearCacheEviction()
	c.logger.Debug("Evicted near cache entry",
		zap.String("ringbuffer", lowestKey.ringbuffer),
		zap.Int64("sequence", lowestKey.sequence),
		zap.Float64("score", lowestScore))
}

// score balances access frequency against age; higher scores survive.
func (c *Cache) score(e *cacheEntry, nowMs int64) float64 {
	frequency := float64(e.accessCount)
	ageSeconds := float64(nowMs-e.lastAccess) / 1000
	return 0.5*frequency - 0.5*ageSeconds
}

func (c *Cache) toStoredForm(data serialization.Data) (interface{}, error) {
	if c.cfg.Format == serialization.FormatObject {
		return c.codec.ToObject(data)
	}
	return data, nil
}

func (c *Cache) toDataForm(value interface{}) (serialization.Data, error) {
	if c.cfg.Format == serialization.FormatObject {
		return c.codec.ToData(value)
	}
	data, _ := value.(serialization.Data)
	return data, nil
}
