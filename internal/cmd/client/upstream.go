package client

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewUpstreamCommand constructs the `upstream` command group and subcommands.
func NewUpstreamCommand(baseURL BaseURLFunc) *cobra.Command {
	upstreamCmd := &cobra.Command{Use: "upstream", Short: "Upstream strategy operations"}

	upstreamCmd.AddCommand(
		newUpstreamStatusCommand(baseURL),
		newUpstreamSwitchCommand(baseURL),
		newUpstreamGenerateCommand(baseURL),
	)

	return upstreamCmd
}

// newUpstreamStatusCommand constructs the `upstream status` subcommand.
func newUpstreamStatusCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show breaker state and per-strategy health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := getTransport(baseURL).UpstreamStatus(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, raw)
		},
	}
}

// newUpstreamSwitchCommand constructs the `upstream switch` subcommand.
func newUpstreamSwitchCommand(baseURL BaseURLFunc) *cobra.Command {
	switchCmd := &cobra.Command{
		Use:   "switch",
		Short: "Force the active strategy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			strategy, _ := cmd.Flags().GetString("strategy")
			if strategy == "" {
				return fmt.Errorf("--strategy is required")
			}
			active, err := getTransport(baseURL).UpstreamSwitch(cmd.Context(), strategy)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "active:", active)
			return nil
		},
	}
	switchCmd.Flags().String("strategy", "", "Strategy name to activate")
	return switchCmd
}

// newUpstreamGenerateCommand constructs the `upstream generate` subcommand.
func newUpstreamGenerateCommand(baseURL BaseURLFunc) *cobra.Command {
	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Run one generation through the active strategy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			prompt, _ := cmd.Flags().GetString("prompt")
			if prompt == "" {
				return fmt.Errorf("--prompt is required")
			}
			res, err := getTransport(baseURL).Generate(cmd.Context(), prompt)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", res.Strategy, res.Output)
			return nil
		},
	}
	generateCmd.Flags().String("prompt", "", "Prompt text")
	return generateCmd
}
