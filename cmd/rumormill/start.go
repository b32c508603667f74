package main

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/sandevgo/rumormill/internal/config"
	"github.com/sandevgo/rumormill/pkg/log"
	"github.com/sandevgo/rumormill/pkg/srv"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the simulation services",
	Long:  `Builds the world graph and starts all configured transports (Telegram, dashboard, console, MCP) plus the turn archive.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		// Load .env before the logger is wired so the transport toggles
		// can route log output away from an owned stdout.
		_ = initEnv(ctx, config.GetRuntimePath())

		// logger setup
		var flushLog func()
		ctx, flushLog = setupLogger(ctx)
		defer flushLog()

		logger := log.FromCtx(ctx)
		logger.Info().Msg("starting rumormill")

		// Define services using the setup.go logic
		services := NewServices(ctx)

		// Start services
		srv.StartServices(ctx, services)

		// Wait for shutdown signal
		srv.ShutdownServices(ctx, services)
		logger.Info().Msg("rumormill has been shut down gracefully")

		return nil
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
