package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"contextgraph/internal/logging"
)

type globalFlags struct {
	logLevel  string
	logFormat string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "contextgraph",
		Short: "Infer hub and spoke relationships across uploaded tables",
		Long: `contextgraph classifies columns into semantic types, picks one hub
column per type, measures how well every other column of that type covers
the hub's values, and reports configured-vs-used gaps.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", envOr("LOG_LEVEL", "warn"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", envOr("LOG_FORMAT", "text"), "Log format (text, json)")

	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newAnalyzeCmd(flags))
	cmd.AddCommand(newIngestCmd(flags))
	cmd.AddCommand(newTaxonomyCmd())
	return cmd
}

// Execute runs the CLI with signal handling.
func Execute(ctx context.Context, args []string) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := newRootCmd()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

// logger writes to stderr so stdout stays machine-readable.
func (f *globalFlags) logger() *slog.Logger {
	return logging.New(os.Stderr, f.logLevel, f.logFormat)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
