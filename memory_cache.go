// memory_cache.go: Reference-counting memory cache with predicate-based eviction
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package pixmem

import (
	"container/list"
	"fmt"
	"hash/maphash"
	"sync"
	"sync/atomic"

	"github.com/docker/go-units"
)

const (
	defaultMaxCacheSize = 64 * units.MiB
	defaultShardCount   = 8
)

// MemoryCache stores references under keys. The cache owns its own clone of
// every stored reference and hands out fresh clones, so callers always close
// what they receive and never lose a reference to cache-side eviction.
type MemoryCache[K CacheKey, V any] interface {
	// Cache stores a clone of ref under key and returns another clone for the
	// caller. It returns (nil, false) when the value is rejected; ref is
	// untouched either way.
	Cache(key K, ref *CloseableReference[V]) (*CloseableReference[V], bool)
	// Get returns a new clone of the value stored under key.
	Get(key K) (*CloseableReference[V], bool)
	// RemoveAll removes every entry whose key matches predicate and returns
	// how many entries were removed.
	RemoveAll(predicate func(K) bool) int
	// Contains reports whether any key matches predicate.
	Contains(predicate func(K) bool) bool
	// Clear removes every entry.
	Clear() int
	// Count returns the number of entries.
	Count() int
	// SizeInBytes returns the accounted size of all entries.
	SizeInBytes() int64
	// Stats returns cache statistics.
	Stats() CacheStats
	// Close empties the cache; later Cache calls are rejected.
	Close()
}

// CacheStats contains statistics about the cache performance
type CacheStats struct {
	Keys       int   `json:"keys"`
	Size       int64 `json:"size"`
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Evictions  int64 `json:"evictions"`
	Rejections int64 `json:"rejections"`
}

// String returns a human-readable representation of cache stats
func (s CacheStats) String() string {
	total := s.Hits + s.Misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(s.Hits) / float64(total) * 100.0
	}
	return fmt.Sprintf("Cache Stats: %d items, %s, %d hits, %d misses, %.1f%% hit rate, %d evictions, %d rejections",
		s.Keys, units.BytesSize(float64(s.Size)), s.Hits, s.Misses, hitRate, s.Evictions, s.Rejections)
}

// NewMemoryCache creates the cache selected by config.EvictionPolicy. sizer
// reports the byte size of a value for capacity accounting.
func NewMemoryCache[K CacheKey, V any](config CacheConfig, sizer func(V) int, logger Logger) (MemoryCache[K, V], error) {
	switch config.EvictionPolicy {
	case "", "lru":
		return NewCountingMemoryCache[K, V](config, sizer, logger), nil
	case "s3fifo":
		c, err := NewOtterMemoryCache[K, V](config, sizer, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown eviction policy %q: %w", config.EvictionPolicy, ErrInvalidConfig)
	}
}

func applyCacheDefaults(config CacheConfig) CacheConfig {
	if config.MaxCacheSize <= 0 {
		config.MaxCacheSize = defaultMaxCacheSize
	}
	if config.ShardCount <= 0 {
		config.ShardCount = defaultShardCount
	}
	if config.MaxEntries < 0 {
		config.MaxEntries = 0
	}
	return config
}

// cacheEntry is one stored value; ref is the cache's own clone
type cacheEntry[K CacheKey, V any] struct {
	key    K
	ref    *CloseableReference[V]
	size   int64
	llElem *list.Element
}

// memoryShard is a single LRU partition with its own budget and mutex
type memoryShard[K CacheKey, V any] struct {
	mu         sync.Mutex
	data       map[K]*cacheEntry[K, V]
	ll         *list.List // front = most recently used
	sizeBytes  int64
	maxBytes   int64
	maxEntries int
	hits       int64
	misses     int64
	evictions  int64
}

func (s *memoryShard[K, V]) overBudget() bool {
	if s.sizeBytes > s.maxBytes {
		return true
	}
	return s.maxEntries > 0 && len(s.data) > s.maxEntries
}

// removeLocked unlinks e; the caller closes e.ref after unlocking
func (s *memoryShard[K, V]) removeLocked(e *cacheEntry[K, V]) {
	s.ll.Remove(e.llElem)
	delete(s.data, e.key)
	s.sizeBytes -= e.size
	if s.sizeBytes < 0 {
		corruptState("CountingMemoryCache", "negative shard size %d", s.sizeBytes)
	}
}

func (s *memoryShard[K, V]) snapshot() []*cacheEntry[K, V] {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*cacheEntry[K, V], 0, len(s.data))
	for _, e := range s.data {
		out = append(out, e)
	}
	return out
}

// CountingMemoryCache is a sharded LRU cache accounted in bytes and,
// optionally, entries. Predicates are evaluated on key snapshots without
// holding shard locks, and cache-owned clones are closed after the lock is
// released.
//
// CountingMemoryCache is safe for concurrent use.
type CountingMemoryCache[K CacheKey, V any] struct {
	config       CacheConfig
	shards       []*memoryShard[K, V]
	seed         maphash.Seed
	sizer        func(V) int
	maxEntrySize int64
	logger       Logger
	rejections   atomic.Int64
	closed       atomic.Bool
}

// NewCountingMemoryCache creates a sharded LRU memory cache.
func NewCountingMemoryCache[K CacheKey, V any](config CacheConfig, sizer func(V) int, logger Logger) *CountingMemoryCache[K, V] {
	config = applyCacheDefaults(config)
	if sizer == nil {
		sizer = func(V) int { return 1 }
	}

	shardBytes := config.MaxCacheSize / int64(config.ShardCount)
	if shardBytes <= 0 {
		shardBytes = 1
	}
	shardEntries := 0
	if config.MaxEntries > 0 {
		shardEntries = (config.MaxEntries + config.ShardCount - 1) / config.ShardCount
	}
	maxEntrySize := shardBytes
	if config.MaxEntrySize > 0 && config.MaxEntrySize < shardBytes {
		maxEntrySize = config.MaxEntrySize
	}

	c := &CountingMemoryCache[K, V]{
		config:       config,
		shards:       make([]*memoryShard[K, V], config.ShardCount),
		seed:         maphash.MakeSeed(),
		sizer:        sizer,
		maxEntrySize: maxEntrySize,
		logger:       loggerOrNop(logger),
	}
	for i := range c.shards {
		c.shards[i] = &memoryShard[K, V]{
			data:       make(map[K]*cacheEntry[K, V]),
			ll:         list.New(),
			maxBytes:   shardBytes,
			maxEntries: shardEntries,
		}
	}
	return c
}

func (c *CountingMemoryCache[K, V]) shardFor(key K) *memoryShard[K, V] {
	return c.shards[maphash.Comparable(c.seed, key)%uint64(len(c.shards))]
}

// Cache stores an independent clone of ref under key, replacing any previous
// entry, and evicts least recently used entries of the shard to make room.
func (c *CountingMemoryCache[K, V]) Cache(key K, ref *CloseableReference[V]) (*CloseableReference[V], bool) {
	if c.closed.Load() {
		return nil, false
	}
	cacheRef, err := ref.Clone()
	if err != nil {
		c.logger.Debug("cache rejected closed reference", "key", key.String())
		return nil, false
	}
	value, err := cacheRef.Get()
	if err != nil {
		_ = cacheRef.Close()
		return nil, false
	}
	size := int64(c.sizer(value))
	if size < 0 || size > c.maxEntrySize {
		_ = cacheRef.Close()
		c.rejections.Add(1)
		c.logger.Debug("cache rejected oversized entry", "key", key.String(), "size", size, "max_entry_size", c.maxEntrySize)
		return nil, false
	}
	clientRef, err := cacheRef.Clone()
	if err != nil {
		corruptState("CountingMemoryCache.Cache", "fresh clone of %s failed: %v", key.String(), err)
	}

	shard := c.shardFor(key)
	var closing []*CloseableReference[V]

	shard.mu.Lock()
	if old, ok := shard.data[key]; ok {
		shard.removeLocked(old)
		closing = append(closing, old.ref)
	}
	entry := &cacheEntry[K, V]{key: key, ref: cacheRef, size: size}
	entry.llElem = shard.ll.PushFront(entry)
	shard.data[key] = entry
	shard.sizeBytes += size
	for shard.overBudget() && shard.ll.Len() > 1 {
		victim := shard.ll.Back().Value.(*cacheEntry[K, V])
		shard.removeLocked(victim)
		shard.evictions++
		closing = append(closing, victim.ref)
	}
	// Close may have emptied this shard while the value was being sized
	closed := c.closed.Load()
	if closed {
		shard.removeLocked(entry)
		closing = append(closing, cacheRef, clientRef)
	}
	shard.mu.Unlock()

	CloseSafely(closing...)
	if closed {
		return nil, false
	}
	return clientRef, true
}

// Get returns a new clone of the value stored under key.
func (c *CountingMemoryCache[K, V]) Get(key K) (*CloseableReference[V], bool) {
	if c.closed.Load() {
		return nil, false
	}
	shard := c.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, ok := shard.data[key]
	if !ok {
		shard.misses++
		return nil, false
	}
	clone, err := entry.ref.Clone()
	if err != nil {
		corruptState("CountingMemoryCache.Get", "cached reference for %s is closed", key.String())
	}
	shard.ll.MoveToFront(entry.llElem)
	shard.hits++
	return clone, true
}

// RemoveAll removes the entries whose key matches predicate. Entries replaced
// or removed concurrently are neither counted nor closed twice.
func (c *CountingMemoryCache[K, V]) RemoveAll(predicate func(K) bool) int {
	removed := 0
	for _, shard := range c.shards {
		var matched []*cacheEntry[K, V]
		for _, e := range shard.snapshot() {
			if predicate(e.key) {
				matched = append(matched, e)
			}
		}
		if len(matched) == 0 {
			continue
		}

		closing := make([]*CloseableReference[V], 0, len(matched))
		shard.mu.Lock()
		for _, e := range matched {
			if cur, ok := shard.data[e.key]; ok && cur == e {
				shard.removeLocked(e)
				closing = append(closing, e.ref)
			}
		}
		shard.mu.Unlock()

		CloseSafely(closing...)
		removed += len(closing)
	}
	if removed > 0 {
		c.logger.Info("cache entries removed", "count", removed)
	}
	return removed
}

// Contains reports whether any key matches predicate. Reference counts are not touched.
func (c *CountingMemoryCache[K, V]) Contains(predicate func(K) bool) bool {
	for _, shard := range c.shards {
		for _, e := range shard.snapshot() {
			if predicate(e.key) {
				return true
			}
		}
	}
	return false
}

// Clear removes every entry and returns how many were removed.
func (c *CountingMemoryCache[K, V]) Clear() int {
	return c.RemoveAll(func(K) bool { return true })
}

// Count returns the number of entries.
func (c *CountingMemoryCache[K, V]) Count() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.Lock()
		total += len(shard.data)
		shard.mu.Unlock()
	}
	return total
}

// SizeInBytes returns the accounted size of all entries.
func (c *CountingMemoryCache[K, V]) SizeInBytes() int64 {
	var total int64
	for _, shard := range c.shards {
		shard.mu.Lock()
		total += shard.sizeBytes
		shard.mu.Unlock()
	}
	return total
}

// Stats returns cache statistics.
func (c *CountingMemoryCache[K, V]) Stats() CacheStats {
	stats := CacheStats{Rejections: c.rejections.Load()}
	for _, shard := range c.shards {
		shard.mu.Lock()
		stats.Keys += len(shard.data)
		stats.Size += shard.sizeBytes
		stats.Hits += shard.hits
		stats.Misses += shard.misses
		stats.Evictions += shard.evictions
		shard.mu.Unlock()
	}
	return stats
}

// Close empties the cache. Later Cache calls are rejected and Get misses.
func (c *CountingMemoryCache[K, V]) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.Clear()
}
