// config_validator.go: Configuration validation and recommendations
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package pixmem

import (
	"fmt"
	"runtime"

	"github.com/docker/go-units"
)

// ConfigValidationResult contains validation results and suggestions
type ConfigValidationResult struct {
	IsValid         bool     `json:"is_valid"`
	Warnings        []string `json:"warnings"`
	Suggestions     []string `json:"suggestions"`
	OptimizedConfig *Config  `json:"optimized_config,omitempty"`
}

// ValidateConfig validates a configuration and provides optimization suggestions
func ValidateConfig(config Config) ConfigValidationResult {
	result := ConfigValidationResult{
		IsValid:     true,
		Warnings:    []string{},
		Suggestions: []string{},
	}
	invalid := func(msg string) {
		result.IsValid = false
		result.Warnings = append(result.Warnings, msg)
	}

	// Pool
	switch config.Pool.Allocator {
	case "", "heap", "mmap":
	default:
		invalid(fmt.Sprintf("Unknown allocator %q (expected heap or mmap)", config.Pool.Allocator))
	}
	if config.Pool.MinSizeClass < 0 || config.Pool.MaxFreePerBucket < 0 || config.Pool.MaxUsedBytes < 0 {
		invalid("Pool sizes must not be negative")
	}
	if config.Pool.MaxUsedBytes > 0 && config.Pool.MinSizeClass > 0 && config.Pool.MaxUsedBytes < int64(config.Pool.MinSizeClass) {
		invalid(fmt.Sprintf("Pool hard cap %s is below the smallest size class %s",
			units.BytesSize(float64(config.Pool.MaxUsedBytes)), units.BytesSize(float64(config.Pool.MinSizeClass))))
	}
	if config.Pool.MaxFreePerBucket > 64 {
		result.Suggestions = append(result.Suggestions, fmt.Sprintf(
			"max_free_per_bucket=%d keeps a lot of idle memory per size class, consider 8-16", config.Pool.MaxFreePerBucket))
	}

	// Cache
	cacheSize := config.Cache.MaxCacheSize
	if cacheSize == 0 {
		cacheSize = defaultMaxCacheSize
	}
	shards := config.Cache.ShardCount
	if shards == 0 {
		shards = defaultShardCount
	}
	if shards < 0 {
		shards = 1
	}
	shardBudget := cacheSize / int64(shards)
	frame := int64(SizeInBytes(1920, 1080, ARGB8888))

	switch config.Cache.EvictionPolicy {
	case "", "lru":
	case "s3fifo":
		if config.Cache.MaxEntries > 0 {
			result.Warnings = append(result.Warnings, "max_entries is ignored by the s3fifo policy")
		}
		if config.Cache.MaxCacheSize > maxOtterCapacity {
			result.Warnings = append(result.Warnings, fmt.Sprintf("s3fifo capacity is capped at %s",
				units.BytesSize(float64(maxOtterCapacity))))
		}
		entryLimit := otterMaxEntrySize(cacheSize)
		if config.Cache.MaxEntrySize > entryLimit {
			result.Warnings = append(result.Warnings, fmt.Sprintf(
				"max_entry_size %s exceeds the s3fifo admission limit %s (a tenth of the cache), larger entries are rejected",
				units.BytesSize(float64(config.Cache.MaxEntrySize)), units.BytesSize(float64(entryLimit))))
		}
		if entryLimit < frame {
			result.Suggestions = append(result.Suggestions, fmt.Sprintf(
				"s3fifo admits entries up to %s, which cannot hold a 1920x1080 ARGB8888 bitmap; use max_cache_size of at least %s",
				units.BytesSize(float64(entryLimit)), units.BytesSize(float64(frame*10))))
		}
	default:
		invalid(fmt.Sprintf("Unknown eviction policy %q (expected lru or s3fifo)", config.Cache.EvictionPolicy))
	}
	if config.Cache.MaxCacheSize < 0 || config.Cache.MaxEntrySize < 0 || config.Cache.MaxEntries < 0 || config.Cache.ShardCount < 0 {
		invalid("Cache sizes must not be negative")
	}

	if config.Cache.MaxEntrySize > shardBudget && config.Cache.EvictionPolicy != "s3fifo" {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"max_entry_size %s exceeds the per-shard budget %s, entries larger than the budget are rejected",
			units.BytesSize(float64(config.Cache.MaxEntrySize)), units.BytesSize(float64(shardBudget))))
	}

	if config.Cache.MaxEntries > 0 && config.Cache.MaxEntries < shards && config.Cache.EvictionPolicy != "s3fifo" {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"max_entries %d is split across %d shards and rounded up, so up to %d entries are kept",
			config.Cache.MaxEntries, shards, shards))
	}

	numCPU := runtime.NumCPU()
	if shards > numCPU*4 {
		result.Suggestions = append(result.Suggestions, fmt.Sprintf("Consider reducing shard count to %d (4x CPU cores) for optimal performance", numCPU*4))
	} else if shards < numCPU && cacheSize >= 64*units.MiB {
		result.Suggestions = append(result.Suggestions, fmt.Sprintf("Consider increasing shard count to %d for better concurrency", numCPU))
	}

	// A full-HD ARGB8888 frame is ~8MiB; smaller shards cannot hold it
	if shardBudget < frame && config.Cache.EvictionPolicy != "s3fifo" {
		result.Suggestions = append(result.Suggestions, fmt.Sprintf(
			"Per-shard budget %s cannot hold a 1920x1080 ARGB8888 bitmap, use fewer shards or a larger cache",
			units.BytesSize(float64(shardBudget))))
	}

	if len(result.Suggestions) > 0 && result.IsValid {
		result.OptimizedConfig = generateOptimizedConfig(config)
	}

	return result
}

// generateOptimizedConfig creates an optimized version of the config
func generateOptimizedConfig(config Config) *Config {
	optimized := config
	numCPU := runtime.NumCPU()

	if optimized.Cache.ShardCount > numCPU*4 {
		optimized.Cache.ShardCount = numCPU * 2
	} else if optimized.Cache.ShardCount > 0 && optimized.Cache.ShardCount < numCPU && optimized.Cache.MaxCacheSize >= 64*units.MiB {
		optimized.Cache.ShardCount = numCPU
	}

	if optimized.Pool.MaxFreePerBucket > 64 {
		optimized.Pool.MaxFreePerBucket = 16
	}

	// Keep at least one full-HD frame per shard
	if optimized.Cache.EvictionPolicy != "s3fifo" && optimized.Cache.MaxCacheSize > 0 && optimized.Cache.ShardCount > 0 {
		frame := int64(SizeInBytes(1920, 1080, ARGB8888))
		for optimized.Cache.ShardCount > 1 && optimized.Cache.MaxCacheSize/int64(optimized.Cache.ShardCount) < frame {
			optimized.Cache.ShardCount /= 2
		}
	}

	optimized.Logger = nil
	return &optimized
}

// GetConfigRecommendation provides configuration recommendations based on use case
func GetConfigRecommendation(useCase string) Config {
	switch useCase {
	case "development":
		return Config{
			Pool: PoolConfig{
				MinSizeClass:     defaultMinSizeClass,
				MaxFreePerBucket: 2,
				Allocator:        "heap",
			},
			Cache: CacheConfig{
				MaxCacheSize:   16 * units.MiB,
				ShardCount:     1, // deterministic LRU order for debugging
				EvictionPolicy: "lru",
			},
		}
	case "gallery":
		return Config{
			Pool: PoolConfig{
				MinSizeClass:     64 * units.KiB,
				MaxFreePerBucket: 16,
				Allocator:        "heap",
			},
			Cache: CacheConfig{
				MaxCacheSize:   256 * units.MiB,
				MaxEntrySize:   24 * units.MiB, // under the s3fifo limit of a tenth
				ShardCount:     runtime.NumCPU(),
				EvictionPolicy: "s3fifo",
			},
		}
	case "low-memory":
		return Config{
			Pool: PoolConfig{
				MinSizeClass:     defaultMinSizeClass,
				MaxFreePerBucket: 2,
				MaxUsedBytes:     64 * units.MiB,
				Allocator:        "heap",
			},
			Cache: CacheConfig{
				MaxCacheSize:   16 * units.MiB,
				MaxEntrySize:   4 * units.MiB,
				MaxEntries:     256,
				ShardCount:     2,
				EvictionPolicy: "lru",
			},
		}
	case "off-heap":
		return Config{
			Pool: PoolConfig{
				MinSizeClass:     64 * units.KiB,
				MaxFreePerBucket: 8,
				Allocator:        "mmap",
			},
			Cache: CacheConfig{
				MaxCacheSize:   128 * units.MiB,
				ShardCount:     runtime.NumCPU(),
				EvictionPolicy: "lru",
			},
		}
	default:
		return getDefaultConfig()
	}
}
