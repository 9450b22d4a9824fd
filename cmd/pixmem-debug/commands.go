// /cmd/pixmem-debug/commands.go: config, init, simulate and inspect-file commands
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/agilira/pixmem"
)

// configReport is the JSON shape of the config command
type configReport struct {
	Source     string                        `json:"source"`
	Config     pixmem.Config                 `json:"config"`
	Validation pixmem.ConfigValidationResult `json:"validation"`
}

func newConfigCmd() *cobra.Command {
	var (
		jsonOutput bool
		file       string
		watch      bool
	)
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the resolved configuration and validation results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			emit := func(report configReport) error {
				if jsonOutput {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(report)
				}
				printConfig(out, report)
				return nil
			}
			if watch {
				if file == "" {
					return fmt.Errorf("--watch requires --file")
				}
				return watchConfig(cmd.Context(), out, file, emit)
			}

			report := configReport{Source: pixmem.GetConfigSource(), Config: pixmem.LoadConfig()}
			if file != "" {
				config, err := pixmem.LoadConfigFile(file)
				if err != nil {
					return err
				}
				report.Source = "File configuration (" + filepath.Base(file) + ")"
				report.Config = config
			}
			report.Validation = pixmem.ValidateConfig(report.Config)
			return emit(report)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	cmd.Flags().StringVarP(&file, "file", "f", "", "read this config file instead of searching for one")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "print the configuration again whenever --file changes")
	return cmd
}

// watchConfig reports path on every change until ctx is done
func watchConfig(ctx context.Context, out io.Writer, path string, emit func(configReport) error) error {
	source := "File configuration (" + filepath.Base(path) + ")"
	w, err := pixmem.WatchConfigFile(path, func(config pixmem.Config, err error) {
		if err != nil {
			fmt.Fprintf(out, "reload failed: %v\n", err)
			return
		}
		_ = emit(configReport{Source: source, Config: config, Validation: pixmem.ValidateConfig(config)})
	})
	if err != nil {
		return err
	}
	defer w.Close()
	<-ctx.Done()
	return nil
}

func printConfig(out io.Writer, r configReport) {
	c := r.Config
	fmt.Fprintf(out, "=== pixmem configuration ===\n")
	fmt.Fprintf(out, "Source: %s\n\n", r.Source)
	fmt.Fprintf(out, "Pool:\n")
	fmt.Fprintf(out, "- Allocator: %s\n", c.Pool.Allocator)
	fmt.Fprintf(out, "- Min Size Class: %s\n", units.BytesSize(float64(c.Pool.MinSizeClass)))
	fmt.Fprintf(out, "- Max Free Per Bucket: %d\n", c.Pool.MaxFreePerBucket)
	fmt.Fprintf(out, "- Max Used Bytes: %s\n", sizeOrUnlimited(c.Pool.MaxUsedBytes))
	fmt.Fprintf(out, "Cache:\n")
	fmt.Fprintf(out, "- Eviction Policy: %s\n", c.Cache.EvictionPolicy)
	fmt.Fprintf(out, "- Max Cache Size: %s\n", units.BytesSize(float64(c.Cache.MaxCacheSize)))
	fmt.Fprintf(out, "- Max Entry Size: %s\n", sizeOrUnlimited(c.Cache.MaxEntrySize))
	fmt.Fprintf(out, "- Max Entries: %d\n", c.Cache.MaxEntries)
	fmt.Fprintf(out, "- Shard Count: %d\n\n", c.Cache.ShardCount)

	status := "VALID"
	if !r.Validation.IsValid {
		status = "INVALID"
	}
	fmt.Fprintf(out, "Validation: %s\n", status)
	for _, w := range r.Validation.Warnings {
		fmt.Fprintf(out, "  warning: %s\n", w)
	}
	for _, s := range r.Validation.Suggestions {
		fmt.Fprintf(out, "  suggestion: %s\n", s)
	}
}

func sizeOrUnlimited(n int64) string {
	if n <= 0 {
		return "unlimited"
	}
	return units.BytesSize(float64(n))
}

func newInitCmd() *cobra.Command {
	var (
		useCase string
		format  string
		output  string
		force   bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a pixmem config file for a use case (development, gallery, low-memory, off-heap)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config := pixmem.GetConfigRecommendation(useCase)

			var data []byte
			var err error
			switch format {
			case "yaml":
				data, err = yaml.Marshal(config)
			case "json":
				data, err = json.MarshalIndent(config, "", "  ")
			default:
				return fmt.Errorf("unknown format %q (expected yaml or json)", format)
			}
			if err != nil {
				return err
			}

			if output == "" {
				output = "pixmem." + format
			}
			if _, err := os.Stat(output); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", output)
			}
			if err := os.WriteFile(output, data, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s configuration to %s\n", useCase, output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&useCase, "use-case", "u", "default", "configuration preset")
	cmd.Flags().StringVar(&format, "format", "yaml", "file format: yaml or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default pixmem.<format>)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

// simulateReport is the JSON shape of the simulate command
type simulateReport struct {
	Images  int          `json:"images"`
	Evicted int          `json:"evicted"`
	Stats   pixmem.Stats `json:"stats"`
}

func newSimulateCmd(loggerFor func() pixmem.Logger) *cobra.Command {
	var (
		images     int
		uris       int
		width      int
		height     int
		policy     string
		seed       int64
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a decode/cache/evict workload and print pool and cache statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if images <= 0 || uris <= 0 {
				return fmt.Errorf("--images and --uris must be positive")
			}
			if width < 4 || height < 4 {
				return fmt.Errorf("--width and --height must be at least 4")
			}
			config := pixmem.LoadConfig()
			if policy != "" {
				config.Cache.EvictionPolicy = policy
			}
			config.Logger = loggerFor()

			m, err := pixmem.NewWithConfig(config)
			if err != nil {
				return err
			}
			defer m.Close()

			report, err := runSimulation(m, images, uris, width, height, seed)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			fmt.Fprintf(out, "Simulated %d images over %d uris, %d entries evicted by uri\n\n", report.Images, uris, report.Evicted)
			fmt.Fprintln(out, report.Stats.String())
			return nil
		},
	}
	cmd.Flags().IntVarP(&images, "images", "n", 200, "number of images to decode")
	cmd.Flags().IntVar(&uris, "uris", 20, "number of distinct source uris")
	cmd.Flags().IntVar(&width, "width", 256, "base image width")
	cmd.Flags().IntVar(&height, "height", 256, "base image height")
	cmd.Flags().StringVar(&policy, "policy", "", "override the eviction policy (lru or s3fifo)")
	cmd.Flags().Int64Var(&seed, "seed", 1, "random seed")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	return cmd
}

// runSimulation decodes images at random sizes, caches them, reads some back
// and invalidates every tenth uri
func runSimulation(m *pixmem.Manager, images, uris, width, height int, seed int64) (simulateReport, error) {
	rng := rand.New(rand.NewSource(seed))
	report := simulateReport{Images: images}

	for i := 0; i < images; i++ {
		uri := fmt.Sprintf("https://example.invalid/img/%d.png", rng.Intn(uris))
		scale := 1 + rng.Intn(4)
		key := pixmem.BitmapMemoryCacheKey{SourceURI: uri, ResizeWidth: width / scale, ResizeHeight: height / scale}

		if ref, ok := m.GetImage(key); ok {
			_ = ref.Close()
			continue
		}
		img, err := m.NewStaticImage(key.ResizeWidth, key.ResizeHeight, pixmem.ARGB8888, 0)
		if err != nil {
			return report, err
		}
		if ref, ok := m.CacheImage(key, img); ok {
			_ = ref.Close()
		}
		if i%10 == 9 {
			report.Evicted += m.EvictURI(uri)
		}
	}
	report.Stats = m.Stats()
	return report, nil
}

// imageMagic maps leading bytes to a container name
var imageMagic = []struct {
	prefix []byte
	name   string
}{
	{[]byte("\x89PNG\r\n\x1a\n"), "PNG"},
	{[]byte("\xff\xd8\xff"), "JPEG"},
	{[]byte("GIF87a"), "GIF"},
	{[]byte("GIF89a"), "GIF"},
	{[]byte("BM"), "BMP"},
}

func detectFormat(data []byte) string {
	if len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")) {
		return "WEBP"
	}
	for _, m := range imageMagic {
		if bytes.HasPrefix(data, m.prefix) {
			return m.name
		}
	}
	return "unknown"
}

func newInspectFileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect-file PATH",
		Short: "Read an encoded image through a BinaryResource and report its size and format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res := pixmem.FileBinaryResourceOrNil(args[0])
			if res == nil {
				return fmt.Errorf("empty path")
			}
			data, err := res.Read()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "File: %s\n", res.Path())
			fmt.Fprintf(out, "Size: %s (%d bytes)\n", units.HumanSize(float64(len(data))), len(data))
			fmt.Fprintf(out, "Format: %s\n", detectFormat(data))
			return nil
		},
	}
}
