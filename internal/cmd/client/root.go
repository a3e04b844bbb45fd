package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs a root Cobra command for the Flare client.
// It registers the events, stats, clients, upstream, and health commands.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "flare",
		Short: "Flare client commands",
	}
	root.AddCommand(NewEventsCommand(baseURL))
	root.AddCommand(NewStatsCommand(baseURL))
	root.AddCommand(NewClientsCommand(baseURL))
	root.AddCommand(NewUpstreamCommand(baseURL))
	root.AddCommand(NewHealthCommand(baseURL))
	return root
}
