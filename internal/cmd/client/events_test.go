package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestEventsEmit_PrintsAssignedIdentity(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/events/emit" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"id": "ev-1", "type": "file_changed", "channel": "file_system", "priority": "medium",
		})
	}))
	defer srv.Close()

	cmd := newEventsEmitCommand(func() string { return srv.URL })
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--kind", "file", "--path", "src/main.go", "--change", "created"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if gotBody["kind"] != "file" || gotBody["path"] != "src/main.go" || gotBody["change"] != "created" {
		t.Fatalf("unexpected request body: %v", gotBody)
	}
	if !strings.Contains(buf.String(), "file_changed") {
		t.Fatalf("expected type in output, got: %s", buf.String())
	}
}

func TestEventsEmit_RequiresKind(t *testing.T) {
	cmd := newEventsEmitCommand(func() string { return "http://127.0.0.1:0" })
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--path", "src/main.go"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error without --kind")
	}
}

func TestEventsEmit_AnalysisFailedSetsSuccess(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"id": "ev-2", "type": "analysis_failed", "channel": "analysis", "priority": "high",
		})
	}))
	defer srv.Close()

	cmd := newEventsEmitCommand(func() string { return srv.URL })
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--kind", "analysis", "--failed", "--path", "src/main.go"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	success, ok := gotBody["success"].(bool)
	if !ok || success {
		t.Fatalf("expected success=false in body, got: %v", gotBody)
	}
}

func TestEventsTail_PrintsEnvelopes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/stream/sse" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("client_id") != "test-cli" {
			t.Errorf("unexpected client_id %q", q.Get("client_id"))
		}
		if q.Get("channels") != "violations,analysis" {
			t.Errorf("unexpected channels %q", q.Get("channels"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		for i := 1; i <= 2; i++ {
			fmt.Fprintf(w, "data: {\"message_type\":\"notification\",\"event_type\":\"violation_detected\",\"data\":{},\"sequence_number\":%d}\n\n", i)
		}
	}))
	defer srv.Close()

	cmd := newEventsTailCommand(func() string { return srv.URL })
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--client-id", "test-cli", "--channels", "violations,analysis"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 envelopes, got %d: %s", len(lines), buf.String())
	}
	var env struct {
		MessageType    string `json:"message_type"`
		SequenceNumber uint64 `json:"sequence_number"`
	}
	if err := json.Unmarshal([]byte(lines[1]), &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.MessageType != "notification" || env.SequenceNumber != 2 {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestEventsTail_StreamErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "event: error\ndata: reconnection attempts exhausted\n\n")
	}))
	defer srv.Close()

	cmd := newEventsTailCommand(func() string { return srv.URL })
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--client-id", "test-cli", "--reconnect"})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "reconnection attempts exhausted") {
		t.Fatalf("expected stream error, got: %v", err)
	}
}

func TestStats_PrintsSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/stats" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"connected_clients":1,"total_events_sent":7,"failed_deliveries":0,"queue_depth":0}`)
	}))
	defer srv.Close()

	cmd := NewStatsCommand(func() string { return srv.URL })
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(buf.String(), "\"total_events_sent\": 7") {
		t.Fatalf("expected stats in output, got: %s", buf.String())
	}
}

func TestUpstreamSwitch_PrintsActive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/upstream/switch" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["strategy"] != "secondary" {
			t.Errorf("unexpected strategy %q", body["strategy"])
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"active": "secondary"})
	}))
	defer srv.Close()

	cmd := newUpstreamSwitchCommand(func() string { return srv.URL })
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--strategy", "secondary"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(buf.String(), "active: secondary") {
		t.Fatalf("expected active strategy in output, got: %s", buf.String())
	}
}

func TestEmit_ServerErrorIsLifted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "event queue full"})
	}))
	defer srv.Close()

	cmd := newEventsEmitCommand(func() string { return srv.URL })
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--kind", "error", "--message", "disk full"})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "event queue full") {
		t.Fatalf("expected lifted server error, got: %v", err)
	}
}
