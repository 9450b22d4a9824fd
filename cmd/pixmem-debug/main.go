// /cmd/pixmem-debug/main.go: CLI tool for inspecting pixmem configuration and behaviour
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agilira/pixmem"
)

// VERSION is the current version of the pixmem-debug CLI tool
const VERSION = "1.0.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree; tests execute it directly
func newRootCmd() *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:           "pixmem-debug",
		Short:         "Inspect pixmem configuration, pools and caches",
		Version:       VERSION,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log library events to stderr")

	loggerFor := func() pixmem.Logger {
		if !verbose {
			return nil
		}
		l, err := zap.NewDevelopment()
		if err != nil {
			return nil
		}
		return pixmem.NewZapLogger(l)
	}

	root.AddCommand(
		newVersionCmd(),
		newConfigCmd(),
		newInitCmd(),
		newSimulateCmd(loggerFor),
		newInspectFileCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pixmem-debug version %s, Go version: %s (%s/%s)\n",
				VERSION, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
