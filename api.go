// api.go: Simplified API layer for the pixmem image memory library
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package pixmem

import (
	"fmt"
	"sync/atomic"

	"github.com/docker/go-units"
)

// ImageCache is the memory cache specialisation used for decoded images
type ImageCache = MemoryCache[BitmapMemoryCacheKey, CloseableImage]

// Manager wires a bitmap pool, a bitmap factory and an image memory cache
// together. It is the simple entry point of the library.
//
// Manager is safe for concurrent use.
type Manager struct {
	config  Config
	logger  Logger
	pool    *BitmapPool
	factory *BitmapFactory
	cache   ImageCache
	closed  atomic.Bool
}

// Stats combines pool and cache statistics
type Stats struct {
	Pool  PoolStats  `json:"pool"`
	Cache CacheStats `json:"cache"`
}

// String returns a human-readable representation of the stats
func (s Stats) String() string {
	return s.Pool.String() + "\n" + s.Cache.String()
}

// New creates a manager with automatic configuration loading.
// Priority: Go config > file config > defaults
func New() (*Manager, error) {
	return NewWithConfig(loadConfig())
}

// NewWithConfig creates a manager with a custom configuration
func NewWithConfig(config Config) (*Manager, error) {
	logger := loggerOrNop(config.Logger)

	pool, err := NewBitmapPool(config.Pool, logger)
	if err != nil {
		return nil, err
	}
	cache, err := NewMemoryCache[BitmapMemoryCacheKey, CloseableImage](config.Cache, imageSize, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	logger.Debug("pixmem manager created",
		"allocator", config.Pool.Allocator,
		"eviction_policy", config.Cache.EvictionPolicy,
		"max_cache_size", units.BytesSize(float64(config.Cache.MaxCacheSize)))

	return &Manager{
		config:  config,
		logger:  logger,
		pool:    pool,
		factory: NewBitmapFactory(pool),
		cache:   cache,
	}, nil
}

// NewForUseCase creates a manager configured by GetConfigRecommendation
func NewForUseCase(useCase string) (*Manager, error) {
	return NewWithConfig(GetConfigRecommendation(useCase))
}

func imageSize(img CloseableImage) int { return img.SizeInBytes() }

// Config returns the configuration the manager was built with
func (m *Manager) Config() Config { return m.config }

// Pool returns the bitmap pool
func (m *Manager) Pool() *BitmapPool { return m.pool }

// Factory returns the pooled bitmap factory
func (m *Manager) Factory() *BitmapFactory { return m.factory }

// Cache returns the image memory cache
func (m *Manager) Cache() ImageCache { return m.cache }

// NewStaticImage creates a pooled bitmap and wraps it in a static image. The
// caller closes the image, which returns the bitmap to the pool.
func (m *Manager) NewStaticImage(width, height int, format PixelFormat, rotation int) (*CloseableStaticBitmap, error) {
	ref, err := m.factory.CreateBitmap(width, height, format)
	if err != nil {
		return nil, err
	}
	defer ref.Close()
	return NewCloseableStaticBitmapFromReference(ref, FullQuality, rotation)
}

// CacheImage takes ownership of image and caches it under key. It returns a
// handle for the caller, or (nil, false) when the cache rejects the image, in
// which case the image has been closed.
func (m *Manager) CacheImage(key BitmapMemoryCacheKey, image CloseableImage) (*CloseableReference[CloseableImage], bool) {
	ref := OfCloser[CloseableImage](image)
	defer ref.Close()
	return m.cache.Cache(key, ref)
}

// GetImage returns a handle to the image cached under key
func (m *Manager) GetImage(key BitmapMemoryCacheKey) (*CloseableReference[CloseableImage], bool) {
	return m.cache.Get(key)
}

// EvictURI removes every cached image decoded from uri
func (m *Manager) EvictURI(uri string) int {
	return m.cache.RemoveAll(MatchURI[BitmapMemoryCacheKey](uri))
}

// HasURI reports whether any cached image was decoded from uri
func (m *Manager) HasURI(uri string) bool {
	return m.cache.Contains(MatchURI[BitmapMemoryCacheKey](uri))
}

// Stats returns combined pool and cache statistics
func (m *Manager) Stats() Stats {
	return Stats{Pool: m.pool.Stats(), Cache: m.cache.Stats()}
}

// Close empties the cache and then closes the pool. Images still held by
// callers release their bitmaps later; those are disposed on return.
func (m *Manager) Close() {
	if m.closed.Swap(true) {
		return
	}
	m.cache.Close()
	m.pool.Close()
}

// GetConfigInfo returns information about the current configuration
func GetConfigInfo() string {
	config := LoadConfig()
	source := GetConfigSource()

	return fmt.Sprintf("Configuration Source: %s\nAllocator: %s\nMax Free Per Bucket: %d\nEviction Policy: %s\nMax Cache Size: %s\nShard Count: %d",
		source, config.Pool.Allocator, config.Pool.MaxFreePerBucket, config.Cache.EvictionPolicy,
		units.BytesSize(float64(config.Cache.MaxCacheSize)), config.Cache.ShardCount)
}
