package streamingsvc

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rzbill/flare/internal/event"
)

// ErrTransportClosed reports a send against a transport whose underlying
// connection is gone. Transports return it (or wrap it) so the delivery
// loop can deactivate the client with a plain errors.Is branch.
var ErrTransportClosed = errors.New("transport closed")

// ErrQueueClosed reports an emit against a stopped service.
var ErrQueueClosed = errors.New("event queue closed")

// ErrReconnectionExhausted is the terminal failure after bounded reconnect
// attempts.
var ErrReconnectionExhausted = errors.New("reconnection attempts exhausted")

// Transport is implemented by delivery transports (WebSocket, SSE).
// SendText carries an uncompressed JSON envelope; SendBytes carries a
// compressed one and is only used for clients that opted into compression.
type Transport interface {
	SendText(data []byte) error
	SendBytes(data []byte) error
}

// ClientPreferences controls what a client receives and how it is
// delivered. The whole struct is replaced on update; fields are never
// patched individually.
type ClientPreferences struct {
	ClientID           string
	EnabledChannels    []event.Channel
	MinPriority        event.Priority
	MaxEventsPerSecond int
	EnableBatching     bool
	BatchInterval      time.Duration
	EnableCompression  bool
	// CustomFilters holds named filter parameters: "exclude_file_patterns"
	// ([]string substrings), "min_confidence" (float64), "expression"
	// (CEL over type/priority/channel/source/data). Unknown names are
	// ignored.
	CustomFilters map[string]any
}

// DefaultPreferences returns the preference set applied when a client
// registers without specifying one.
func DefaultPreferences(clientID string) ClientPreferences {
	return ClientPreferences{
		ClientID:           clientID,
		EnabledChannels:    []event.Channel{event.ChannelAll},
		MinPriority:        event.PriorityLow,
		MaxEventsPerSecond: 10,
		EnableBatching:     true,
		BatchInterval:      500 * time.Millisecond,
		EnableCompression:  true,
	}
}

func clonePreferences(p ClientPreferences) ClientPreferences {
	out := p
	out.EnabledChannels = append([]event.Channel(nil), p.EnabledChannels...)
	if p.CustomFilters != nil {
		out.CustomFilters = make(map[string]any, len(p.CustomFilters))
		for k, v := range p.CustomFilters {
			out.CustomFilters[k] = v
		}
	}
	return out
}

// ConnectionState is the per-client delivery state. It is created on
// register, mutated by the delivery loop, retained (inactive) across
// disconnects within the grace period, and destroyed on unregister.
type ConnectionState struct {
	ClientID       string
	SessionID      string
	ConnectedAt    time.Time
	LastSeen       time.Time
	SequenceNumber uint64
	Active         bool
	Preferences    ClientPreferences
}

// StreamingMessage is the wire envelope for delivered events. A single
// event keeps its own type in EventType; a multi-event batch uses type
// "batch" with the member events nested under Data.
type StreamingMessage struct {
	MessageType    string          `json:"message_type"`
	EventType      string          `json:"event_type"`
	Data           json.RawMessage `json:"data"`
	SequenceNumber uint64          `json:"sequence_number"`
}

// BatchData is the Data shape of a "batch" StreamingMessage.
type BatchData struct {
	Events []event.Event `json:"events"`
	Count  int           `json:"count"`
}

// Stats is a read-only snapshot of aggregate delivery counters.
// TotalEventsSent counts emissions, not deliveries.
type Stats struct {
	ConnectedClients int               `json:"connected_clients"`
	TotalEventsSent  uint64            `json:"total_events_sent"`
	EventsByType     map[string]uint64 `json:"events_by_type"`
	EventsByPriority map[string]uint64 `json:"events_by_priority"`
	FailedDeliveries uint64            `json:"failed_deliveries"`
}

// ReconnectResult reports a successful session restoration.
type ReconnectResult struct {
	SessionRestored   bool      `json:"session_restored"`
	SessionID         string    `json:"session_id"`
	MissedEventsCount int       `json:"missed_events_count"`
	ReconnectedAt     time.Time `json:"reconnected_at"`
}
