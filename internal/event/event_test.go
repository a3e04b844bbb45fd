package event

import (
	"encoding/json"
	"testing"
)

func TestConstructorsFixPriorityAndChannel(t *testing.T) {
	cases := []struct {
		name     string
		ev       Event
		wantType Type
		wantPri  Priority
		wantChan Channel
	}{
		{"file change", NewFileChangeEvent("watcher", "/src/a.go", "modified"), TypeFileChanged, PriorityMedium, ChannelFileSystem},
		{"analysis ok", NewAnalysisEvent("analyzer", true, Analysis{Path: "/src/a.go"}), TypeAnalysisCompleted, PriorityMedium, ChannelAnalysis},
		{"analysis failed", NewAnalysisEvent("analyzer", false, Analysis{Path: "/src/a.go"}), TypeAnalysisFailed, PriorityHigh, ChannelAnalysis},
		{"violation error", NewViolationEvent("rules", Violation{Rule: "no-sleep", Severity: "error"}), TypeViolationDetected, PriorityHigh, ChannelViolations},
		{"violation warning", NewViolationEvent("rules", Violation{Rule: "todo", Severity: "warning"}), TypeViolationDetected, PriorityMedium, ChannelViolations},
		{"violation info", NewViolationEvent("rules", Violation{Rule: "style", Severity: "info"}), TypeViolationDetected, PriorityLow, ChannelViolations},
		{"agent", NewAgentEvent("agent", TypeAgentStarted, Agent{AgentID: "a1"}), TypeAgentStarted, PriorityMedium, ChannelAgent},
		{"agent coerced", NewAgentEvent("agent", TypeFileChanged, Agent{}), TypeAgentResponse, PriorityMedium, ChannelAgent},
		{"system error", NewSystemErrorEvent("engine", "dequeue", "boom"), TypeSystemError, PriorityCritical, ChannelSystem},
	}
	for _, tc := range cases {
		if tc.ev.Type != tc.wantType {
			t.Fatalf("%s: type=%s want %s", tc.name, tc.ev.Type, tc.wantType)
		}
		if tc.ev.Priority != tc.wantPri {
			t.Fatalf("%s: priority=%s want %s", tc.name, tc.ev.Priority, tc.wantPri)
		}
		if tc.ev.Channel != tc.wantChan {
			t.Fatalf("%s: channel=%s want %s", tc.name, tc.ev.Channel, tc.wantChan)
		}
		if tc.ev.Timestamp.IsZero() {
			t.Fatalf("%s: zero timestamp", tc.name)
		}
	}
}

func TestPriorityOrdering(t *testing.T) {
	order := []Priority{PriorityDebug, PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}
	for i := 1; i < len(order); i++ {
		if !(order[i-1] < order[i]) {
			t.Fatalf("expected %s < %s", order[i-1], order[i])
		}
	}
}

func TestParsePriority(t *testing.T) {
	p, err := ParsePriority("HIGH")
	if err != nil {
		t.Fatalf("parse high: %v", err)
	}
	if p != PriorityHigh {
		t.Fatalf("want high, got %s", p)
	}
	if _, err := ParsePriority("urgent"); err == nil {
		t.Fatalf("expected error for unknown priority")
	}
}

func TestParseChannel(t *testing.T) {
	c, err := ParseChannel("file_system")
	if err != nil {
		t.Fatalf("parse channel: %v", err)
	}
	if c != ChannelFileSystem {
		t.Fatalf("want file_system, got %s", c)
	}
	if c, _ := ParseChannel("*"); c != ChannelAll {
		t.Fatalf("want * to alias all, got %s", c)
	}
	if _, err := ParseChannel("misc"); err == nil {
		t.Fatalf("expected error for unknown channel")
	}
}

func TestJSONRoundTripSelectsPayloadType(t *testing.T) {
	ev := NewViolationEvent("rules", Violation{Rule: "no-sleep", Severity: "error", Path: "/src/a.go", Line: 42, Message: "sleeping in loop"})
	ev.ID = "abc123"

	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back Event
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.ID != "abc123" || back.Type != TypeViolationDetected || back.Priority != PriorityHigh {
		t.Fatalf("header mismatch: %+v", back)
	}
	v, ok := back.Data.(Violation)
	if !ok {
		t.Fatalf("want Violation payload, got %T", back.Data)
	}
	if v.Rule != "no-sleep" || v.Line != 42 {
		t.Fatalf("payload mismatch: %+v", v)
	}
	if back.Timestamp.UnixMilli() != ev.Timestamp.UnixMilli() {
		t.Fatalf("timestamp drift: %v vs %v", back.Timestamp, ev.Timestamp)
	}
}

func TestUnmarshalRejectsUnknownType(t *testing.T) {
	raw := []byte(`{"type":"mystery","priority":"low","channel":"system","ts_ms":1,"data":{}}`)
	var ev Event
	if err := json.Unmarshal(raw, &ev); err == nil {
		t.Fatalf("expected error for unknown event type")
	}
}

func TestFilterAccessors(t *testing.T) {
	fc := NewFileChangeEvent("watcher", "/src/main.go", "created")
	if p, ok := fc.FilePath(); !ok || p != "/src/main.go" {
		t.Fatalf("file path accessor: %q %v", p, ok)
	}
	if _, ok := fc.Confidence(); ok {
		t.Fatalf("file change should not report confidence")
	}

	an := NewAnalysisEvent("analyzer", true, Analysis{Path: "/src/a.go", Confidence: 0.93})
	if c, ok := an.Confidence(); !ok || c != 0.93 {
		t.Fatalf("confidence accessor: %v %v", c, ok)
	}

	se := NewSystemErrorEvent("engine", "loop", "x")
	if _, ok := se.FilePath(); ok {
		t.Fatalf("system error should not report a path")
	}
}
