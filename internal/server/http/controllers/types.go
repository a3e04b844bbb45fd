package controllers

import (
	"github.com/rzbill/flare/internal/event"
	streamingsvc "github.com/rzbill/flare/internal/services/streaming"
)

// Common request/response types for HTTP controllers

// emitReq represents a request to emit one typed event.
//
// Kind selects the event constructor; only the fields that kind uses are
// read, the rest are ignored.
type emitReq struct {
	Kind   string `json:"kind"`
	Source string `json:"source,omitempty"`

	// file
	Path   string `json:"path,omitempty"`
	Change string `json:"change,omitempty"`

	// analysis
	Success    *bool   `json:"success,omitempty"`
	Summary    string  `json:"summary,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	DurationMs int64   `json:"duration_ms,omitempty"`

	// violation
	Rule     string `json:"rule,omitempty"`
	Severity string `json:"severity,omitempty"`
	Line     int    `json:"line,omitempty"`
	Message  string `json:"message,omitempty"`

	// agent
	AgentType string `json:"agent_type,omitempty"`
	AgentID   string `json:"agent_id,omitempty"`
	Text      string `json:"text,omitempty"`
	Strategy  string `json:"strategy,omitempty"`

	// error
	Op string `json:"op,omitempty"`
}

// emitResp echoes the identity the engine assigned to an emitted event.
type emitResp struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Channel  string `json:"channel"`
	Priority string `json:"priority"`
}

// recentEventJSON represents one ring entry in a recent-events response.
type recentEventJSON struct {
	Seq   uint64      `json:"seq"`
	AtMs  int64       `json:"at_ms"`
	Event event.Event `json:"event"`
}

// clientPrefsReq represents a preferences update for a connected client.
//
// Pointer fields distinguish absent from zero; absent fields keep the
// client's current value.
type clientPrefsReq struct {
	ClientID           string         `json:"client_id"`
	Channels           []string       `json:"channels,omitempty"`
	MinPriority        *string        `json:"min_priority,omitempty"`
	MaxEventsPerSecond *int           `json:"max_events_per_second,omitempty"`
	EnableBatching     *bool          `json:"enable_batching,omitempty"`
	BatchIntervalMs    *int64         `json:"batch_interval_ms,omitempty"`
	EnableCompression  *bool          `json:"enable_compression,omitempty"`
	CustomFilters      map[string]any `json:"custom_filters,omitempty"`
}

// clientUnregisterReq identifies the client to drop.
type clientUnregisterReq struct {
	ClientID string `json:"client_id"`
}

// clientPrefsJSON represents delivery preferences in a clients response.
type clientPrefsJSON struct {
	Channels           []string       `json:"channels"`
	MinPriority        string         `json:"min_priority"`
	MaxEventsPerSecond int            `json:"max_events_per_second"`
	EnableBatching     bool           `json:"enable_batching"`
	BatchIntervalMs    int64          `json:"batch_interval_ms"`
	EnableCompression  bool           `json:"enable_compression"`
	CustomFilters      map[string]any `json:"custom_filters,omitempty"`
}

// clientStateJSON represents one client session in a clients response.
type clientStateJSON struct {
	ClientID       string          `json:"client_id"`
	SessionID      string          `json:"session_id"`
	ConnectedAtMs  int64           `json:"connected_at_ms"`
	LastSeenMs     int64           `json:"last_seen_ms"`
	SequenceNumber uint64          `json:"sequence_number"`
	Active         bool            `json:"active"`
	Preferences    clientPrefsJSON `json:"preferences"`
}

// statsResp wraps the delivery stats snapshot with the live queue depth.
type statsResp struct {
	streamingsvc.Stats
	QueueDepth int `json:"queue_depth"`
}

// generateReq represents an upstream generation request.
type generateReq struct {
	Prompt string `json:"prompt"`
}

// generateResp carries the upstream output and the strategy that served it.
type generateResp struct {
	Output   string `json:"output"`
	Strategy string `json:"strategy"`
}

// switchReq represents a manual strategy switch request.
type switchReq struct {
	Strategy string `json:"strategy"`
}

// prefsToJSON converts service preferences to their wire shape.
func prefsToJSON(p streamingsvc.ClientPreferences) clientPrefsJSON {
	channels := make([]string, 0, len(p.EnabledChannels))
	for _, ch := range p.EnabledChannels {
		channels = append(channels, string(ch))
	}
	return clientPrefsJSON{
		Channels:           channels,
		MinPriority:        p.MinPriority.String(),
		MaxEventsPerSecond: p.MaxEventsPerSecond,
		BatchIntervalMs:    p.BatchInterval.Milliseconds(),
		EnableBatching:     p.EnableBatching,
		EnableCompression:  p.EnableCompression,
		CustomFilters:      p.CustomFilters,
	}
}

// stateToJSON converts a client session snapshot to its wire shape.
func stateToJSON(st streamingsvc.ConnectionState) clientStateJSON {
	return clientStateJSON{
		ClientID:       st.ClientID,
		SessionID:      st.SessionID,
		ConnectedAtMs:  st.ConnectedAt.UnixMilli(),
		LastSeenMs:     st.LastSeen.UnixMilli(),
		SequenceNumber: st.SequenceNumber,
		Active:         st.Active,
		Preferences:    prefsToJSON(st.Preferences),
	}
}
