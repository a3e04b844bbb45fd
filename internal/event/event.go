package event

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Type identifies the kind of an event.
type Type string

// Event types emitted by producers.
const (
	TypeFileChanged       Type = "file_changed"
	TypeAnalysisCompleted Type = "analysis_completed"
	TypeAnalysisFailed    Type = "analysis_failed"
	TypeViolationDetected Type = "violation_detected"
	TypeAgentStarted      Type = "agent_started"
	TypeAgentResponse     Type = "agent_response"
	TypeAgentCompleted    Type = "agent_completed"
	TypeSystemError       Type = "system_error"
)

// IsAgent reports whether the type is one of the agent_* activity types.
func (t Type) IsAgent() bool {
	return t == TypeAgentStarted || t == TypeAgentResponse || t == TypeAgentCompleted
}

// Priority orders events by urgency. Higher values are more urgent.
type Priority int

// Priorities, lowest to highest.
const (
	PriorityDebug Priority = iota
	PriorityLow
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// String returns the lowercase name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityDebug:
		return "debug"
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParsePriority converts a priority name to a Priority.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return PriorityDebug, nil
	case "low":
		return PriorityLow, nil
	case "medium":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	case "critical":
		return PriorityCritical, nil
	default:
		return PriorityMedium, fmt.Errorf("event: unknown priority %q", s)
	}
}

// MarshalJSON renders the priority by name.
func (p Priority) MarshalJSON() ([]byte, error) { return json.Marshal(p.String()) }

// UnmarshalJSON parses a priority name.
func (p *Priority) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParsePriority(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Channel is the coarse topic category clients subscribe to.
type Channel string

// Channels. ChannelAll is a subscription wildcard and never appears on an
// event itself.
const (
	ChannelFileSystem Channel = "file_system"
	ChannelAnalysis   Channel = "analysis"
	ChannelViolations Channel = "violations"
	ChannelAgent      Channel = "agent"
	ChannelSystem     Channel = "system"
	ChannelAll        Channel = "all"
)

// ParseChannel converts a channel name to a Channel.
func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "file_system":
		return ChannelFileSystem, nil
	case "analysis":
		return ChannelAnalysis, nil
	case "violations":
		return ChannelViolations, nil
	case "agent":
		return ChannelAgent, nil
	case "system":
		return ChannelSystem, nil
	case "all", "*":
		return ChannelAll, nil
	default:
		return "", fmt.Errorf("event: unknown channel %q", s)
	}
}

// Payload carries the kind-specific fields of an event. Exactly one concrete
// payload type exists per event kind.
type Payload interface{ eventPayload() }

// FileChange describes a watched file being created, modified, or deleted.
type FileChange struct {
	Path   string `json:"path"`
	Change string `json:"change"`
}

func (FileChange) eventPayload() {}

// Analysis describes the outcome of one analysis run.
type Analysis struct {
	Path       string  `json:"path,omitempty"`
	Success    bool    `json:"success"`
	Summary    string  `json:"summary,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	DurationMs int64   `json:"duration_ms,omitempty"`
}

func (Analysis) eventPayload() {}

// Violation describes a rule violation found in a file.
type Violation struct {
	Rule       string  `json:"rule"`
	Severity   string  `json:"severity"`
	Path       string  `json:"path,omitempty"`
	Line       int     `json:"line,omitempty"`
	Message    string  `json:"message,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

func (Violation) eventPayload() {}

// Agent describes agent runtime activity.
type Agent struct {
	AgentID    string  `json:"agent_id,omitempty"`
	Text       string  `json:"text,omitempty"`
	Strategy   string  `json:"strategy,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

func (Agent) eventPayload() {}

// SystemError describes an internal fault surfaced to observers.
type SystemError struct {
	Op      string `json:"op,omitempty"`
	Message string `json:"message"`
}

func (SystemError) eventPayload() {}

// Event is an immutable record distributed to subscribed clients. Priority
// and Channel are fixed by the typed constructors; producers never set them
// directly.
type Event struct {
	ID        string
	Type      Type
	Priority  Priority
	Channel   Channel
	Timestamp time.Time
	Source    string
	Data      Payload
}

// FilePath returns the file path the event refers to, when it has one.
func (e Event) FilePath() (string, bool) {
	switch d := e.Data.(type) {
	case FileChange:
		return d.Path, d.Path != ""
	case Analysis:
		return d.Path, d.Path != ""
	case Violation:
		return d.Path, d.Path != ""
	case Agent, SystemError:
		return "", false
	default:
		return "", false
	}
}

// Confidence returns the confidence score the event carries, when it has one.
func (e Event) Confidence() (float64, bool) {
	switch d := e.Data.(type) {
	case Analysis:
		return d.Confidence, d.Confidence > 0
	case Violation:
		return d.Confidence, d.Confidence > 0
	case Agent:
		return d.Confidence, d.Confidence > 0
	case FileChange, SystemError:
		return 0, false
	default:
		return 0, false
	}
}

// wireEvent is the JSON shape of an Event. Timestamps travel as Unix
// milliseconds.
type wireEvent struct {
	ID       string          `json:"id,omitempty"`
	Type     Type            `json:"type"`
	Priority Priority        `json:"priority"`
	Channel  Channel         `json:"channel"`
	TsMs     int64           `json:"ts_ms"`
	Source   string          `json:"source,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e Event) MarshalJSON() ([]byte, error) {
	var data json.RawMessage
	if e.Data != nil {
		b, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		data = b
	}
	return json.Marshal(wireEvent{
		ID:       e.ID,
		Type:     e.Type,
		Priority: e.Priority,
		Channel:  e.Channel,
		TsMs:     e.Timestamp.UnixMilli(),
		Source:   e.Source,
		Data:     data,
	})
}

// UnmarshalJSON implements json.Unmarshaler, decoding the payload into the
// concrete type selected by the event type.
func (e *Event) UnmarshalJSON(b []byte) error {
	var w wireEvent
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	e.ID = w.ID
	e.Type = w.Type
	e.Priority = w.Priority
	e.Channel = w.Channel
	e.Timestamp = time.UnixMilli(w.TsMs)
	e.Source = w.Source
	e.Data = nil
	if len(w.Data) == 0 {
		return nil
	}
	switch w.Type {
	case TypeFileChanged:
		var d FileChange
		if err := json.Unmarshal(w.Data, &d); err != nil {
			return err
		}
		e.Data = d
	case TypeAnalysisCompleted, TypeAnalysisFailed:
		var d Analysis
		if err := json.Unmarshal(w.Data, &d); err != nil {
			return err
		}
		e.Data = d
	case TypeViolationDetected:
		var d Violation
		if err := json.Unmarshal(w.Data, &d); err != nil {
			return err
		}
		e.Data = d
	case TypeAgentStarted, TypeAgentResponse, TypeAgentCompleted:
		var d Agent
		if err := json.Unmarshal(w.Data, &d); err != nil {
			return err
		}
		e.Data = d
	case TypeSystemError:
		var d SystemError
		if err := json.Unmarshal(w.Data, &d); err != nil {
			return err
		}
		e.Data = d
	default:
		return fmt.Errorf("event: unknown type %q", w.Type)
	}
	return nil
}
