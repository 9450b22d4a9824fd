// config_test.go: Tests for configuration loading
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package pixmem

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/docker/go-units"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLoadConfigFile_YAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "pixmem.yaml", `
pool:
  min_size_class: 16KiB
  max_free_per_bucket: 4
  max_used_bytes: 256MiB
  allocator: mmap
cache:
  max_cache_size: 128MiB
  max_entry_size: 8388608
  max_entries: 1000
  shard_count: 4
  eviction_policy: s3fifo
`)
	config, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile() error: %v", err)
	}
	if config.Pool.MinSizeClass != 16*units.KiB || config.Pool.MaxFreePerBucket != 4 ||
		config.Pool.MaxUsedBytes != 256*units.MiB || config.Pool.Allocator != "mmap" {
		t.Errorf("pool config = %+v", config.Pool)
	}
	if config.Cache.MaxCacheSize != 128*units.MiB || config.Cache.MaxEntrySize != 8*units.MiB ||
		config.Cache.MaxEntries != 1000 || config.Cache.ShardCount != 4 || config.Cache.EvictionPolicy != "s3fifo" {
		t.Errorf("cache config = %+v", config.Cache)
	}
}

func TestLoadConfigFile_JSONKeepsDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "pixmem.json", `{"cache": {"max_cache_size": "32MiB"}, "pool": {"max_used_bytes": 1048576}}`)
	config, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile() error: %v", err)
	}
	defaults := getDefaultConfig()
	if config.Cache.MaxCacheSize != 32*units.MiB || config.Pool.MaxUsedBytes != units.MiB {
		t.Errorf("sizes not applied: %+v", config)
	}
	if config.Cache.ShardCount != defaults.Cache.ShardCount || config.Pool.MaxFreePerBucket != defaults.Pool.MaxFreePerBucket {
		t.Errorf("unset fields should keep defaults: %+v", config)
	}
}

func TestLoadConfigFile_Errors(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"bad-size.yaml":   "cache:\n  max_cache_size: lots\n",
		"bad-policy.json": `{"cache": {"eviction_policy": "random"}}`,
		"bad-alloc.yaml":  "pool:\n  allocator: gpu\n",
		"negative.json":   `{"cache": {"shard_count": -1}}`,
		"broken.json":     `{"cache": `,
		"config.toml":     "x = 1",
	}
	for name, content := range cases {
		path := writeFile(t, dir, name, content)
		if _, err := LoadConfigFile(path); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
	if _, err := LoadConfigFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}
	if _, err := LoadConfigFile("../pixmem.yaml"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("traversal path: err = %v", err)
	}
}

func TestLoadConfig_Priority(t *testing.T) {
	resetGlobalConfig()
	defer resetGlobalConfig()

	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b")
	if err := os.MkdirAll(nested, 0o750); err != nil {
		t.Fatal(err)
	}
	t.Chdir(nested)

	if got := LoadConfig(); got.Cache.MaxCacheSize != getDefaultConfig().Cache.MaxCacheSize {
		t.Errorf("without files LoadConfig should return defaults, got %+v", got)
	}
	if GetConfigSource() != "Default configuration" {
		t.Errorf("GetConfigSource() = %q", GetConfigSource())
	}

	writeFile(t, dir, "pixmem.yaml", "cache:\n  max_cache_size: 10MiB\n")
	if got := LoadConfig(); got.Cache.MaxCacheSize != 10*units.MiB {
		t.Errorf("parent directory file not found: %+v", got.Cache)
	}
	if !strings.Contains(GetConfigSource(), "pixmem.yaml") {
		t.Errorf("GetConfigSource() = %q", GetConfigSource())
	}

	SetGlobalConfig(Config{Cache: CacheConfig{MaxCacheSize: 1}})
	if got := LoadConfig(); got.Cache.MaxCacheSize != 1 {
		t.Errorf("global config should win, got %+v", got.Cache)
	}
	if !strings.HasPrefix(GetConfigSource(), "Go configuration") {
		t.Errorf("GetConfigSource() = %q", GetConfigSource())
	}
}

func TestLoadConfig_InvalidFileFallsBackToDefaults(t *testing.T) {
	resetGlobalConfig()
	dir := t.TempDir()
	writeFile(t, dir, "pixmem.json", `{"cache": {"eviction_policy": "nope"}}`)
	t.Chdir(dir)

	if got := LoadConfig(); got.Cache.EvictionPolicy != "lru" {
		t.Errorf("invalid file should fall back to defaults, got %+v", got.Cache)
	}
}

func TestGetConfigInfo(t *testing.T) {
	resetGlobalConfig()
	t.Chdir(t.TempDir())
	info := GetConfigInfo()
	for _, want := range []string{"Default configuration", "Eviction Policy: lru", "64MiB"} {
		if !strings.Contains(info, want) {
			t.Errorf("GetConfigInfo() missing %q:\n%s", want, info)
		}
	}
}
