// Package client contains Cobra CLI commands for Flare.
package client

import (
	"encoding/json"
	"fmt"
	"strings"

	transports "github.com/rzbill/flare/internal/cmd/client/transports"
	"github.com/spf13/cobra"
)

// NewEventsCommand constructs the `events` command group and subcommands.
func NewEventsCommand(baseURL BaseURLFunc) *cobra.Command {
	eventsCmd := &cobra.Command{Use: "events", Short: "Event operations"}

	eventsCmd.AddCommand(
		newEventsEmitCommand(baseURL),
		newEventsRecentCommand(baseURL),
		newEventsTailCommand(baseURL),
	)

	return eventsCmd
}

// newEventsEmitCommand constructs the `events emit` subcommand.
func newEventsEmitCommand(baseURL BaseURLFunc) *cobra.Command {
	emitCmd := &cobra.Command{
		Use:   "emit",
		Short: "Emit one typed event into the delivery engine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind, _ := cmd.Flags().GetString("kind")
			source, _ := cmd.Flags().GetString("source")
			path, _ := cmd.Flags().GetString("path")
			change, _ := cmd.Flags().GetString("change")
			failed, _ := cmd.Flags().GetBool("failed")
			summary, _ := cmd.Flags().GetString("summary")
			confidence, _ := cmd.Flags().GetFloat64("confidence")
			durationMs, _ := cmd.Flags().GetInt64("duration-ms")
			rule, _ := cmd.Flags().GetString("rule")
			severity, _ := cmd.Flags().GetString("severity")
			line, _ := cmd.Flags().GetInt("line")
			message, _ := cmd.Flags().GetString("message")
			agentType, _ := cmd.Flags().GetString("agent-type")
			agentID, _ := cmd.Flags().GetString("agent-id")
			text, _ := cmd.Flags().GetString("text")
			strategy, _ := cmd.Flags().GetString("strategy")
			op, _ := cmd.Flags().GetString("op")

			if kind == "" {
				return fmt.Errorf("--kind is required (file|analysis|violation|agent|error)")
			}
			req := transports.EmitRequest{
				Kind:       kind,
				Source:     source,
				Path:       path,
				Change:     change,
				Summary:    summary,
				Confidence: confidence,
				DurationMs: durationMs,
				Rule:       rule,
				Severity:   severity,
				Line:       line,
				Message:    message,
				AgentType:  agentType,
				AgentID:    agentID,
				Text:       text,
				Strategy:   strategy,
				Op:         op,
			}
			if kind == "analysis" {
				success := !failed
				req.Success = &success
			}

			res, err := getTransport(baseURL).Emit(cmd.Context(), req)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	emitCmd.Flags().String("kind", "", "Event kind: file|analysis|violation|agent|error")
	emitCmd.Flags().String("source", "cli", "Producer name recorded on the event")
	emitCmd.Flags().String("path", "", "File path (file, analysis, violation)")
	emitCmd.Flags().String("change", "modified", "Change type for file events: created|modified|deleted")
	emitCmd.Flags().Bool("failed", false, "Mark an analysis event as failed")
	emitCmd.Flags().String("summary", "", "Analysis summary")
	emitCmd.Flags().Float64("confidence", 0, "Confidence score 0..1 (analysis, violation, agent)")
	emitCmd.Flags().Int64("duration-ms", 0, "Analysis duration in ms")
	emitCmd.Flags().String("rule", "", "Violated rule name (violation)")
	emitCmd.Flags().String("severity", "warning", "Violation severity: info|warning|error")
	emitCmd.Flags().Int("line", 0, "Violation line number")
	emitCmd.Flags().String("message", "", "Violation or error message")
	emitCmd.Flags().String("agent-type", "agent_response", "Agent event type: agent_started|agent_response|agent_completed")
	emitCmd.Flags().String("agent-id", "", "Agent identifier")
	emitCmd.Flags().String("text", "", "Agent response text")
	emitCmd.Flags().String("strategy", "", "Strategy that produced the agent event")
	emitCmd.Flags().String("op", "", "Operation that raised the error")
	return emitCmd
}

// newEventsRecentCommand constructs the `events recent` subcommand.
func newEventsRecentCommand(baseURL BaseURLFunc) *cobra.Command {
	recentCmd := &cobra.Command{
		Use:   "recent",
		Short: "List recent events from the in-memory ring",
		RunE: func(cmd *cobra.Command, _ []string) error {
			since, _ := cmd.Flags().GetString("since")
			limit, _ := cmd.Flags().GetInt("limit")

			raw, err := getTransport(baseURL).Recent(cmd.Context(), since, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, raw)
		},
	}
	recentCmd.Flags().String("since", "", "Only events after this timestamp: RFC3339 or ms")
	recentCmd.Flags().Int("limit", 100, "Max events to return")
	return recentCmd
}

// newEventsTailCommand constructs the `events tail` subcommand.
//
// Tail attaches to the SSE delivery transport as a regular client, so the
// stream it prints is exactly what a companion app would receive: filtered,
// rate-limited, batched per the subscription preferences.
func newEventsTailCommand(baseURL BaseURLFunc) *cobra.Command {
	tailCmd := &cobra.Command{
		Use:   "tail",
		Short: "Subscribe and print delivered event envelopes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			clientID, _ := cmd.Flags().GetString("client-id")
			channels, _ := cmd.Flags().GetString("channels")
			minPriority, _ := cmd.Flags().GetString("min-priority")
			rate, _ := cmd.Flags().GetInt("rate")
			batch, _ := cmd.Flags().GetBool("batch")
			batchMs, _ := cmd.Flags().GetInt("batch-ms")
			exclude, _ := cmd.Flags().GetString("exclude")
			minConfidence, _ := cmd.Flags().GetFloat64("min-confidence")
			expression, _ := cmd.Flags().GetString("expression")
			reconnect, _ := cmd.Flags().GetBool("reconnect")

			req := transports.TailRequest{
				ClientID:      clientID,
				MinPriority:   minPriority,
				Rate:          rate,
				Batch:         batch,
				BatchMs:       batchMs,
				MinConfidence: minConfidence,
				Expression:    expression,
				Reconnect:     reconnect,
			}
			if channels != "" {
				req.Channels = splitList(channels)
			}
			if exclude != "" {
				req.Exclude = splitList(exclude)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			return getTransport(baseURL).Tail(cmd.Context(), req, func(payload []byte) error {
				return enc.Encode(json.RawMessage(payload))
			})
		},
	}
	tailCmd.Flags().String("client-id", "flare-cli", "Client identifier for the subscription")
	tailCmd.Flags().String("channels", "", "Subscribed channels, comma separated (default all)")
	tailCmd.Flags().String("min-priority", "", "Minimum priority: debug|low|medium|high|critical")
	tailCmd.Flags().Int("rate", 0, "Max events per second (0 = unlimited)")
	tailCmd.Flags().Bool("batch", false, "Buffer events into batched envelopes")
	tailCmd.Flags().Int("batch-ms", 0, "Batch flush window in ms")
	tailCmd.Flags().String("exclude", "", "Drop events whose file path contains any of these substrings, comma separated")
	tailCmd.Flags().Float64("min-confidence", 0, "Drop events below this confidence score")
	tailCmd.Flags().String("expression", "", "CEL filter over type/priority/channel/source/data")
	tailCmd.Flags().Bool("reconnect", false, "Resume the previous session for this client-id")
	return tailCmd
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
