// Command gigue drives the testbed build pipeline: it compiles and links the
// test image, produces disassembly views of the image and of the pre-built
// binary blobs, runs the image through the cycle-accurate simulator, and
// cleans the build-output namespace by tier.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pcotret/gigue/internal/app"
	"github.com/pcotret/gigue/internal/config"
	"github.com/pcotret/gigue/internal/executor"
)

func main() {
	// Minimal logger until the configured one takes over.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var cfgErr *config.ConfigurationError
		switch {
		case errors.Is(err, context.Canceled):
			os.Exit(130)
		case errors.As(err, &cfgErr):
			os.Exit(2)
		default:
			os.Exit(1)
		}
	}
}

func newRootCommand() *cobra.Command {
	opts := app.Options{
		ConfigPath: "pipeline.hcl",
		LogLevel:   "info",
		LogFormat:  "text",
		Workers:    executor.DefaultWorkers,
	}

	root := &cobra.Command{
		Use:           "gigue",
		Short:         "Incremental build pipeline for gigue testbed binaries",
		SilenceErrors: true,
		SilenceUsage:  true,
		// With no subcommand, build the disassembly views.
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, (*app.App).Dump)
		},
	}

	root.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", opts.ConfigPath, "Path to the pipeline HCL file")
	root.PersistentFlags().StringVar(&opts.LogLevel, "log-level", opts.LogLevel, "Log verbosity (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.LogFormat, "log-format", opts.LogFormat, "Log output format (text or json)")
	root.PersistentFlags().IntVar(&opts.Workers, "workers", opts.Workers, "Number of concurrent build workers")

	root.AddCommand(
		&cobra.Command{
			Use:   "dump",
			Short: "Build disassembly views of the image and of each binary blob",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, opts, (*app.App).Dump)
			},
		},
		&cobra.Command{
			Use:   "exec",
			Short: "Build the image and run it through the simulator, producing a trace log",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, opts, (*app.App).Exec)
			},
		},
		&cobra.Command{
			Use:   "clean",
			Short: "Remove transient build outputs (objects, dumps, logs, waveforms)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, opts, (*app.App).Clean)
			},
		},
		&cobra.Command{
			Use:   "cleanall",
			Short: "Remove all build outputs, including blobs and per-unit artifacts",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, opts, (*app.App).CleanAll)
			},
		},
	)
	return root
}

// withApp constructs the wired pipeline and runs one command against it.
func withApp(cmd *cobra.Command, opts app.Options, run func(*app.App, context.Context) error) error {
	ctx := cmd.Context()
	a, err := app.New(ctx, os.Stderr, opts)
	if err != nil {
		return err
	}
	return run(a, ctx)
}
