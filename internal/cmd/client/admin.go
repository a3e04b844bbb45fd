package client

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewStatsCommand constructs the `stats` command.
func NewStatsCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate delivery statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := getTransport(baseURL).Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, raw)
		},
	}
}

// NewClientsCommand constructs the `clients` command.
func NewClientsCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "clients",
		Short: "List client sessions (active and disconnected)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := getTransport(baseURL).Clients(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, raw)
		},
	}
}

// NewHealthCommand constructs the `health` command.
func NewHealthCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := getTransport(baseURL).Health(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", status)
			return nil
		},
	}
}
