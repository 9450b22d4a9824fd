// types.go: Core types for the pixmem image memory library
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package pixmem

// Logger interface for optional debug and monitoring logging
type Logger interface {
	// Debug logs debug-level messages (pool reuse, cache hits, etc.)
	Debug(msg string, fields ...interface{})
	// Info logs informational messages (bulk removals, config changes)
	Info(msg string, fields ...interface{})
	// Warn logs warning messages (leaked references, rejected entries)
	Warn(msg string, fields ...interface{})
	// Error logs error messages (allocation failures, reload errors)
	Error(msg string, fields ...interface{})
}

// PoolConfig defines the bitmap pool behaviour
type PoolConfig struct {
	MinSizeClass     int    `json:"min_size_class" yaml:"min_size_class"`           // smallest bucket in bytes
	MaxFreePerBucket int    `json:"max_free_per_bucket" yaml:"max_free_per_bucket"` // soft capacity of each free list
	MaxUsedBytes     int64  `json:"max_used_bytes" yaml:"max_used_bytes"`           // hard cap on bytes handed out, 0 = unlimited
	Allocator        string `json:"allocator" yaml:"allocator"`                     // "heap" or "mmap"
}

// CacheConfig defines the memory cache behaviour.
//
// MaxCacheSize and MaxEntries are split evenly across shards, with
// MaxEntries rounded up, so the lru cache may hold up to ShardCount-1 entries
// more than MaxEntries. The s3fifo cache admits entries of at most a tenth of
// MaxCacheSize.
type CacheConfig struct {
	MaxCacheSize   int64  `json:"max_cache_size" yaml:"max_cache_size"`   // total bytes of cached values
	MaxEntrySize   int64  `json:"max_entry_size" yaml:"max_entry_size"`   // largest admissible value, 0 = shard budget
	MaxEntries     int    `json:"max_entries" yaml:"max_entries"`         // entry count bound, 0 = unbounded
	ShardCount     int    `json:"shard_count" yaml:"shard_count"`         // striped locking
	EvictionPolicy string `json:"eviction_policy" yaml:"eviction_policy"` // "lru" (default) or "s3fifo"
}

// Config is the complete library configuration
type Config struct {
	Pool  PoolConfig  `json:"pool" yaml:"pool"`
	Cache CacheConfig `json:"cache" yaml:"cache"`
	// Logger for debug and monitoring (optional, can be nil)
	Logger Logger `json:"-" yaml:"-"`
}
