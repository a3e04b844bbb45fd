package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	clientcmd "github.com/rzbill/flare/internal/cmd/client"
	serverrun "github.com/rzbill/flare/internal/cmd/server"
	logpkg "github.com/rzbill/flare/pkg/log"
	"github.com/spf13/cobra"
)

func main() {
	// initialize logger for CLI
	// Respect FLARE_LOG_LEVEL for both CLI and server start output
	level := os.Getenv("FLARE_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)

	// Redirect standard library logs (used by net/http) to our logger
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "flare",
		Short: "Flare runtime CLI",
		Long:  "Flare is a single-binary event delivery service. This CLI manages the server and basic operations.",
	}

	// server start
	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start flare server (HTTP API, WebSocket and SSE delivery)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			httpAddr, _ := cmd.Flags().GetString("http")
			configPath, _ := cmd.Flags().GetString("config")
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := serverrun.Run(ctx, serverrun.Options{
				HTTPAddr:   httpAddr,
				ConfigPath: configPath,
				LogLevel:   logLevel,
				LogFormat:  logFormat,
			}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	serverStartCmd.Flags().String("http", "", "HTTP listen address (default :8080)")
	serverStartCmd.Flags().String("config", os.Getenv("FLARE_CONFIG"), "Config file path (YAML or JSON)")
	serverStartCmd.Flags().String("log-level", os.Getenv("FLARE_LOG_LEVEL"), "Log level: debug|info|warn|error")
	serverStartCmd.Flags().String("log-format", os.Getenv("FLARE_LOG_FORMAT"), "Log format: text|json (default text)")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	// client commands (events, stats, clients, upstream, health)
	rootCmd.AddCommand(clientcmd.NewEventsCommand(clientcmd.BaseURLFromEnv))
	rootCmd.AddCommand(clientcmd.NewStatsCommand(clientcmd.BaseURLFromEnv))
	rootCmd.AddCommand(clientcmd.NewClientsCommand(clientcmd.BaseURLFromEnv))
	rootCmd.AddCommand(clientcmd.NewUpstreamCommand(clientcmd.BaseURLFromEnv))
	rootCmd.AddCommand(clientcmd.NewHealthCommand(clientcmd.BaseURLFromEnv))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
