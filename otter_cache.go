// otter_cache.go: Memory cache backed by the otter S3-FIFO cache
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package pixmem

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/maypok86/otter"
)

// maxOtterCapacity is the largest total cost otter accepts
const maxOtterCapacity = math.MaxInt32

// otterMaxEntrySize is the largest cost otter's S3-FIFO admits for a given
// capacity: an entry must fit in the small queue, a tenth of the capacity.
func otterMaxEntrySize(capacity int64) int64 {
	if capacity > maxOtterCapacity {
		capacity = maxOtterCapacity
	}
	return max(capacity/10, 1)
}

// otterEntry wraps the cache-owned clone so that the deletion listener,
// RemoveAll and Close agree on who closes it
type otterEntry[V any] struct {
	ref      *CloseableReference[V]
	size     uint32
	released atomic.Bool
}

// OtterMemoryCache implements MemoryCache on top of otter, weighting every
// entry by its byte size. Evicted entries are closed from otter's deletion
// listener, which may run on a background goroutine. MaxEntries and
// ShardCount do not apply.
//
// OtterMemoryCache is safe for concurrent use.
type OtterMemoryCache[K CacheKey, V any] struct {
	store        otter.Cache[K, *otterEntry[V]]
	sizer        func(V) int
	maxEntrySize int64
	logger       Logger

	// live holds every unreleased entry, including replaced ones whose
	// deletion notification has not been delivered yet
	live sync.Map // *otterEntry[V] -> struct{}

	sizeBytes  atomic.Int64
	hits       atomic.Int64
	misses     atomic.Int64
	evictions  atomic.Int64
	rejections atomic.Int64
	closed     atomic.Bool
}

// NewOtterMemoryCache creates an otter-backed memory cache with a capacity of
// config.MaxCacheSize bytes.
func NewOtterMemoryCache[K CacheKey, V any](config CacheConfig, sizer func(V) int, logger Logger) (*OtterMemoryCache[K, V], error) {
	config = applyCacheDefaults(config)
	if sizer == nil {
		sizer = func(V) int { return 1 }
	}
	capacity := config.MaxCacheSize
	if capacity > maxOtterCapacity {
		capacity = maxOtterCapacity
	}
	maxEntrySize := otterMaxEntrySize(capacity)
	if config.MaxEntrySize > 0 && config.MaxEntrySize < maxEntrySize {
		maxEntrySize = config.MaxEntrySize
	}

	c := &OtterMemoryCache[K, V]{
		sizer:        sizer,
		maxEntrySize: maxEntrySize,
		logger:       loggerOrNop(logger),
	}
	store, err := otter.MustBuilder[K, *otterEntry[V]](int(capacity)).
		Cost(func(_ K, e *otterEntry[V]) uint32 { return e.size }).
		DeletionListener(func(_ K, e *otterEntry[V], cause otter.DeletionCause) {
			if c.release(e) && (cause == otter.Size || cause == otter.Expired) {
				c.evictions.Add(1)
			}
		}).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build otter cache: %w", err)
	}
	c.store = store
	return c, nil
}

// Cache stores an independent clone of ref under key.
func (c *OtterMemoryCache[K, V]) Cache(key K, ref *CloseableReference[V]) (*CloseableReference[V], bool) {
	if c.closed.Load() {
		return nil, false
	}
	cacheRef, err := ref.Clone()
	if err != nil {
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
		corruptState("OtterMemoryCache.Cache", "fresh clone of %s failed: %v", key.String(), err)
	}

	entry := &otterEntry[V]{ref: cacheRef, size: uint32(size)}
	c.live.Store(entry, struct{}{})
	c.sizeBytes.Add(size)
	if c.closed.Load() {
		c.release(entry)
		_ = clientRef.Close()
		return nil, false
	}
	old, replacing := c.store.Get(key)
	if !c.store.Set(key, entry) {
		c.release(entry)
		_ = clientRef.Close()
		c.rejections.Add(1)
		return nil, false
	}
	if replacing && old != entry {
		// old is unmapped now; do not wait for the listener
		c.release(old)
	}
	if c.closed.Load() {
		// Close may have swept live while the value was being sized
		c.release(entry)
		_ = clientRef.Close()
		return nil, false
	}
	return clientRef, true
}

// release closes the cache-owned clone of e once and drops its accounting
func (c *OtterMemoryCache[K, V]) release(e *otterEntry[V]) bool {
	if !e.released.CompareAndSwap(false, true) {
		return false
	}
	c.live.Delete(e)
	c.sizeBytes.Add(-int64(e.size))
	_ = e.ref.Close()
	return true
}

// Get returns a new clone of the value stored under key.
func (c *OtterMemoryCache[K, V]) Get(key K) (*CloseableReference[V], bool) {
	if c.closed.Load() {
		return nil, false
	}
	entry, ok := c.store.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	clone, err := entry.ref.Clone()
	if err != nil {
		// evicted between lookup and clone
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return clone, true
}

type otterPair[K CacheKey, V any] struct {
	key   K
	entry *otterEntry[V]
}

func (c *OtterMemoryCache[K, V]) snapshot() []otterPair[K, V] {
	var pairs []otterPair[K, V]
	c.store.Range(func(k K, e *otterEntry[V]) bool {
		pairs = append(pairs, otterPair[K, V]{key: k, entry: e})
		return true
	})
	return pairs
}

// RemoveAll removes the entries whose key matches predicate.
func (c *OtterMemoryCache[K, V]) RemoveAll(predicate func(K) bool) int {
	doomed := make(map[*otterEntry[V]]struct{})
	for _, p := range c.snapshot() {
		if !predicate(p.key) {
			continue
		}
		if c.release(p.entry) {
			doomed[p.entry] = struct{}{}
		}
	}
	if len(doomed) == 0 {
		return 0
	}
	c.store.DeleteByFunc(func(_ K, e *otterEntry[V]) bool {
		_, ok := doomed[e]
		return ok
	})
	c.logger.Info("cache entries removed", "count", len(doomed))
	return len(doomed)
}

// Contains reports whether any live key matches predicate.
func (c *OtterMemoryCache[K, V]) Contains(predicate func(K) bool) bool {
	for _, p := range c.snapshot() {
		if !p.entry.released.Load() && predicate(p.key) {
			return true
		}
	}
	return false
}

// Clear removes every entry.
func (c *OtterMemoryCache[K, V]) Clear() int {
	return c.RemoveAll(func(K) bool { return true })
}

// Count returns the number of entries. A closed cache has none.
func (c *OtterMemoryCache[K, V]) Count() int {
	if c.closed.Load() {
		return 0
	}
	return c.store.Size()
}

// SizeInBytes returns the accounted size of all entries.
func (c *OtterMemoryCache[K, V]) SizeInBytes() int64 {
	return c.sizeBytes.Load()
}

// Stats returns cache statistics.
func (c *OtterMemoryCache[K, V]) Stats() CacheStats {
	return CacheStats{
		Keys:       c.Count(),
		Size:       c.sizeBytes.Load(),
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Evictions:  c.evictions.Load(),
		Rejections: c.rejections.Load(),
	}
}

// Close empties the cache and stops otter's background work. Entries whose
// deletion notification is still pending are released here.
func (c *OtterMemoryCache[K, V]) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.Clear()
	c.store.Close()
	c.live.Range(func(k, _ any) bool {
		c.release(k.(*otterEntry[V]))
		return true
	})
}
