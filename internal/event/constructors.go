package event

import "time"

// Typed constructors fix priority and channel deterministically so producers
// cannot emit miscategorized events. IDs are left empty; the streaming
// service assigns one at emission.

// NewFileChangeEvent builds a file_changed event on the file_system channel.
// change is the watcher's verb (created, modified, deleted).
func NewFileChangeEvent(source, path, change string) Event {
	return Event{
		Type:      TypeFileChanged,
		Priority:  PriorityMedium,
		Channel:   ChannelFileSystem,
		Timestamp: time.Now(),
		Source:    source,
		Data:      FileChange{Path: path, Change: change},
	}
}

// NewAnalysisEvent builds an analysis outcome event. A failed run is always
// HIGH priority; a successful one is MEDIUM.
func NewAnalysisEvent(source string, success bool, data Analysis) Event {
	t := TypeAnalysisCompleted
	p := PriorityMedium
	if !success {
		t = TypeAnalysisFailed
		p = PriorityHigh
	}
	data.Success = success
	return Event{
		Type:      t,
		Priority:  p,
		Channel:   ChannelAnalysis,
		Timestamp: time.Now(),
		Source:    source,
		Data:      data,
	}
}

// NewViolationEvent builds a violation_detected event. Severity fixes the
// priority: error is HIGH, warning is MEDIUM, anything else is LOW.
func NewViolationEvent(source string, data Violation) Event {
	p := PriorityLow
	switch data.Severity {
	case "error":
		p = PriorityHigh
	case "warning":
		p = PriorityMedium
	}
	return Event{
		Type:      TypeViolationDetected,
		Priority:  p,
		Channel:   ChannelViolations,
		Timestamp: time.Now(),
		Source:    source,
		Data:      data,
	}
}

// NewAgentEvent builds an agent activity event at MEDIUM priority. t must be
// one of the agent_* types; anything else is treated as agent_response.
func NewAgentEvent(source string, t Type, data Agent) Event {
	if !t.IsAgent() {
		t = TypeAgentResponse
	}
	return Event{
		Type:      t,
		Priority:  PriorityMedium,
		Channel:   ChannelAgent,
		Timestamp: time.Now(),
		Source:    source,
		Data:      data,
	}
}

// NewSystemErrorEvent builds a system_error event at CRITICAL priority.
func NewSystemErrorEvent(source, op, message string) Event {
	return Event{
		Type:      TypeSystemError,
		Priority:  PriorityCritical,
		Channel:   ChannelSystem,
		Timestamp: time.Now(),
		Source:    source,
		Data:      SystemError{Op: op, Message: message},
	}
}
