// main_test.go: Test suite for the pixmem-debug CLI
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agilira/pixmem"
)

// run executes the CLI with args and returns its standard output
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "pixmem-debug version "+VERSION)
}

func TestConfigCommand_Text(t *testing.T) {
	t.Chdir(t.TempDir())
	out, err := run(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "Source: Default configuration")
	assert.Contains(t, out, "Eviction Policy: lru")
	assert.Contains(t, out, "Validation: VALID")
}

func TestConfigCommand_JSONFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  eviction_policy: s3fifo\n  max_cache_size: 32MiB\n"), 0o600))

	out, err := run(t, "config", "--json", "--file", path)
	require.NoError(t, err)

	var report configReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "s3fifo", report.Config.Cache.EvictionPolicy)
	assert.EqualValues(t, 32<<20, report.Config.Cache.MaxCacheSize)
	assert.True(t, report.Validation.IsValid)
	assert.Contains(t, report.Source, "custom.yaml")
}

func TestConfigCommand_BadFile(t *testing.T) {
	_, err := run(t, "config", "--file", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

// syncBuffer is written by the config watcher goroutine while the test reads it
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestConfigCommand_Watch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pixmem.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  eviction_policy: lru\n"), 0o600))

	var out syncBuffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"config", "--watch", "--file", path})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Eviction Policy: lru")
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("cache:\n  eviction_policy: s3fifo\n"), 0o600))
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Eviction Policy: s3fifo")
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("config --watch did not stop after cancellation")
	}
}

func TestConfigCommand_WatchNeedsFile(t *testing.T) {
	_, err := run(t, "config", "--watch")
	assert.Error(t, err)
	_, err = run(t, "config", "--watch", "--file", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestInitCommand_WritesLoadableFile(t *testing.T) {
	for _, format := range []string{"yaml", "json"} {
		t.Run(format, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "pixmem."+format)
			out, err := run(t, "init", "--use-case", "low-memory", "--format", format, "--output", path)
			require.NoError(t, err)
			assert.Contains(t, out, "Wrote low-memory configuration")

			loaded, err := pixmem.LoadConfigFile(path)
			require.NoError(t, err)
			want := pixmem.GetConfigRecommendation("low-memory")
			assert.Equal(t, want.Pool.MaxUsedBytes, loaded.Pool.MaxUsedBytes)
			assert.Equal(t, want.Cache.MaxEntries, loaded.Cache.MaxEntries)
			assert.Equal(t, want.Cache.ShardCount, loaded.Cache.ShardCount)

			_, err = run(t, "init", "--use-case", "low-memory", "--format", format, "--output", path)
			assert.Error(t, err, "existing file must not be overwritten without --force")
			_, err = run(t, "init", "--format", format, "--output", path, "--force")
			assert.NoError(t, err)
		})
	}

	_, err := run(t, "init", "--format", "toml", "--output", filepath.Join(t.TempDir(), "x"))
	assert.Error(t, err)
}

func TestSimulateCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, policy := range []string{"lru", "s3fifo"} {
		t.Run(policy, func(t *testing.T) {
			out, err := run(t, "simulate", "--json", "--images", "100", "--uris", "5", "--width", "64", "--height", "64", "--policy", policy)
			require.NoError(t, err)

			var report simulateReport
			require.NoError(t, json.Unmarshal([]byte(out), &report))
			assert.Equal(t, 100, report.Images)
			inUse, inUseBytes := 0, int64(0)
			for _, b := range report.Stats.Pool.Buckets {
				inUse += b.InUse
				inUseBytes += int64(b.InUse) * int64(b.SizeClass)
			}
			assert.Equal(t, inUseBytes, report.Stats.Pool.UsedBytes)
			assert.Equal(t, report.Stats.Cache.Keys, inUse, "every in-use bitmap should be held by the cache")
			assert.NotEmpty(t, report.Stats.Pool.Buckets)
		})
	}
}

func TestSimulateCommand_Text(t *testing.T) {
	t.Chdir(t.TempDir())
	out, err := run(t, "simulate", "-n", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "Simulated 10 images")
	assert.Contains(t, out, "Pool Stats")
	assert.Contains(t, out, "Cache Stats")

	_, err = run(t, "simulate", "--images", "0")
	assert.Error(t, err)
	_, err = run(t, "simulate", "--policy", "mru")
	assert.Error(t, err)
}

func TestInspectFileCommand(t *testing.T) {
	dir := t.TempDir()
	png := filepath.Join(dir, "a.png")
	require.NoError(t, os.WriteFile(png, append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 100)...), 0o600))

	out, err := run(t, "inspect-file", png)
	require.NoError(t, err)
	assert.Contains(t, out, "Format: PNG")
	assert.Contains(t, out, "108 bytes")

	_, err = run(t, "inspect-file", filepath.Join(dir, "missing"))
	assert.Error(t, err)
	_, err = run(t, "inspect-file")
	assert.Error(t, err)
}

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		data string
		want string
	}{
		{"\xff\xd8\xff\xe0", "JPEG"},
		{"GIF89a..", "GIF"},
		{"RIFF\x00\x00\x00\x00WEBPVP8 ", "WEBP"},
		{"BM....", "BMP"},
		{"hello", "unknown"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, detectFormat([]byte(tc.data)), "data %q", tc.data)
	}
}
