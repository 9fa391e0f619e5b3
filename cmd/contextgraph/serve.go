package main

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"contextgraph/internal/config"
	"contextgraph/internal/logging"
	"contextgraph/internal/server"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long:  "Run the context graph HTTP API using settings from the environment (.env is read when present).",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}

			level, format := cfg.Logging.Level, cfg.Logging.Format
			if cmd.Flags().Changed("log-level") {
				level = flags.logLevel
			}
			if cmd.Flags().Changed("log-format") {
				format = flags.logFormat
			}
			logger := logging.Setup(level, format)
			if logging.ParseLevel(level) != slog.LevelDebug {
				gin.SetMode(gin.ReleaseMode)
			}

			return server.Run(cmd.Context(), cfg, logger)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "Listen port (overrides PORT)")
	return cmd
}
