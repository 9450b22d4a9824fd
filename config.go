// config.go: Configuration system for the pixmem image memory library
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package pixmem

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

// configFileNames are searched in this order in every directory
var configFileNames = []string{"pixmem.json", "pixmem.yaml", "pixmem.yml"}

// byteSize accepts either a plain number of bytes or a human readable size
// such as "64MiB" or "512k" (binary multiples).
type byteSize int64

func parseByteSize(s string) (byteSize, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid size %q: negative", s)
	}
	return byteSize(n), nil
}

// UnmarshalJSON implements json.Unmarshaler
func (b *byteSize) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*b = byteSize(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("size must be a number or a string: %w", err)
	}
	v, err := parseByteSize(s)
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (b *byteSize) UnmarshalYAML(node *yaml.Node) error {
	if n, err := strconv.ParseInt(node.Value, 10, 64); err == nil {
		*b = byteSize(n)
		return nil
	}
	v, err := parseByteSize(node.Value)
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// fileConfig is the on-disk shape of pixmem.json / pixmem.yaml
type fileConfig struct {
	Pool struct {
		MinSizeClass     byteSize `json:"min_size_class" yaml:"min_size_class"`
		MaxFreePerBucket int      `json:"max_free_per_bucket" yaml:"max_free_per_bucket"`
		MaxUsedBytes     byteSize `json:"max_used_bytes" yaml:"max_used_bytes"`
		Allocator        string   `json:"allocator" yaml:"allocator"`
	} `json:"pool" yaml:"pool"`
	Cache struct {
		MaxCacheSize   byteSize `json:"max_cache_size" yaml:"max_cache_size"`
		MaxEntrySize   byteSize `json:"max_entry_size" yaml:"max_entry_size"`
		MaxEntries     int      `json:"max_entries" yaml:"max_entries"`
		ShardCount     int      `json:"shard_count" yaml:"shard_count"`
		EvictionPolicy string   `json:"eviction_policy" yaml:"eviction_policy"`
	} `json:"cache" yaml:"cache"`
}

// Global configuration state
var (
	globalConfig *Config
	configMutex  sync.RWMutex
)

// SetGlobalConfig sets the global configuration for power users.
// This should be called in the init() function of a pixmem_config.go file.
func SetGlobalConfig(config Config) {
	configMutex.Lock()
	defer configMutex.Unlock()
	globalConfig = &config
}

// GetGlobalConfig returns the current global configuration
func GetGlobalConfig() *Config {
	configMutex.RLock()
	defer configMutex.RUnlock()
	return globalConfig
}

// resetGlobalConfig is used by tests
func resetGlobalConfig() {
	configMutex.Lock()
	defer configMutex.Unlock()
	globalConfig = nil
}

// loadConfig loads configuration with priority: Go config > file config > defaults
func loadConfig() Config {
	if config := GetGlobalConfig(); config != nil {
		return *config
	}

	if path := findConfigFile(); path != "" {
		if config, err := LoadConfigFile(path); err == nil {
			return config
		}
	}

	return getDefaultConfig()
}

// LoadConfigFile reads a JSON or YAML configuration file and applies it on top
// of the defaults. The format is chosen by extension.
func LoadConfigFile(path string) (Config, error) {
	if path == "" || strings.Contains(path, "..") {
		return Config{}, fmt.Errorf("invalid config file path %q: %w", path, ErrInvalidConfig)
	}
	// #nosec G304 -- path is validated above to prevent traversal
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var fc fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(data, &fc)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		return Config{}, fmt.Errorf("unsupported config format %q: %w", ext, ErrInvalidConfig)
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %v: %w", path, err, ErrInvalidConfig)
	}

	config, err := fc.apply(getDefaultConfig())
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

// apply overlays the non-zero file values on base
func (fc fileConfig) apply(base Config) (Config, error) {
	config := base

	if fc.Pool.MinSizeClass > 0 {
		config.Pool.MinSizeClass = int(fc.Pool.MinSizeClass)
	}
	if fc.Pool.MaxFreePerBucket < 0 {
		return Config{}, fmt.Errorf("max_free_per_bucket must not be negative: %w", ErrInvalidConfig)
	}
	if fc.Pool.MaxFreePerBucket > 0 {
		config.Pool.MaxFreePerBucket = fc.Pool.MaxFreePerBucket
	}
	if fc.Pool.MaxUsedBytes > 0 {
		config.Pool.MaxUsedBytes = int64(fc.Pool.MaxUsedBytes)
	}
	switch fc.Pool.Allocator {
	case "":
	case "heap", "mmap":
		config.Pool.Allocator = fc.Pool.Allocator
	default:
		return Config{}, fmt.Errorf("unknown allocator %q: %w", fc.Pool.Allocator, ErrInvalidConfig)
	}

	if fc.Cache.MaxCacheSize > 0 {
		config.Cache.MaxCacheSize = int64(fc.Cache.MaxCacheSize)
	}
	if fc.Cache.MaxEntrySize > 0 {
		config.Cache.MaxEntrySize = int64(fc.Cache.MaxEntrySize)
	}
	if fc.Cache.MaxEntries < 0 || fc.Cache.ShardCount < 0 {
		return Config{}, fmt.Errorf("max_entries and shard_count must not be negative: %w", ErrInvalidConfig)
	}
	if fc.Cache.MaxEntries > 0 {
		config.Cache.MaxEntries = fc.Cache.MaxEntries
	}
	if fc.Cache.ShardCount > 0 {
		config.Cache.ShardCount = fc.Cache.ShardCount
	}
	switch fc.Cache.EvictionPolicy {
	case "":
	case "lru", "s3fifo":
		config.Cache.EvictionPolicy = fc.Cache.EvictionPolicy
	default:
		return Config{}, fmt.Errorf("unknown eviction policy %q: %w", fc.Cache.EvictionPolicy, ErrInvalidConfig)
	}

	return config, nil
}

// findConfigFile searches for a pixmem config file in current and parent directories
func findConfigFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	// Search up to 5 parent directories
	for i := 0; i < 5; i++ {
		for _, name := range configFileNames {
			configPath := filepath.Join(dir, name)
			if _, err := os.Stat(configPath); err == nil {
				return configPath
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break // Reached root
		}
		dir = parent
	}

	return ""
}

// getDefaultConfig returns the configuration used when nothing else is set
func getDefaultConfig() Config {
	return Config{
		Pool: PoolConfig{
			MinSizeClass:     defaultMinSizeClass,
			MaxFreePerBucket: defaultMaxFreePerBucket,
			MaxUsedBytes:     0, // unlimited
			Allocator:        "heap",
		},
		Cache: CacheConfig{
			MaxCacheSize:   defaultMaxCacheSize,
			MaxEntrySize:   0, // bounded by the shard budget
			MaxEntries:     0, // bytes only
			ShardCount:     defaultShardCount,
			EvictionPolicy: "lru",
		},
	}
}

// LoadConfig loads the current configuration (for debugging/inspection)
func LoadConfig() Config {
	return loadConfig()
}

// GetConfigSource returns information about the configuration source
func GetConfigSource() string {
	if GetGlobalConfig() != nil {
		return "Go configuration (pixmem_config.go)"
	}

	if path := findConfigFile(); path != "" {
		return fmt.Sprintf("File configuration (%s)", filepath.Base(path))
	}

	return "Default configuration"
}
