package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rzbill/flare/internal/event"
	"github.com/rzbill/flare/internal/runtime"
	streamingsvc "github.com/rzbill/flare/internal/services/streaming"
)

// maxRecentWaitMs caps how long a recent-events long poll may block.
const maxRecentWaitMs = 30000

// EventsController handles producer ingestion and the recent-event index.
type EventsController struct {
	rt *runtime.Runtime
	st *streamingsvc.Service
}

// NewEventsController creates a new events controller.
func NewEventsController(rt *runtime.Runtime, svc *streamingsvc.Service) *EventsController {
	return &EventsController{
		rt: rt,
		st: svc,
	}
}

// RegisterRoutes registers event routes with the given mux.
//
// This method sets up HTTP endpoints for:
// - Producer ingestion (/v1/events/emit)
// - Recent-event index with optional long poll (/v1/events/recent)
func (c *EventsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/events/emit", c.handleEmit)
	mux.HandleFunc("/v1/events/recent", c.handleRecent)
}

// handleEmit accepts one typed event and hands it to the delivery engine.
//
// The event ID is assigned here so the response can echo it. Returns
// 202 Accepted once the event is queued; a full queue blocks until space
// frees up or the request context ends.
func (c *EventsController) handleEmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req emitReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	ev, err := eventFromEmitReq(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ev.ID = c.rt.NextID().String()
	if err := c.st.EmitEvent(r.Context(), ev); err != nil {
		if errors.Is(err, streamingsvc.ErrQueueClosed) {
			writeError(w, http.StatusServiceUnavailable, "event queue closed")
			return
		}
		writeError(w, http.StatusServiceUnavailable, "event queue full")
		return
	}
	writeAccepted(w, emitResp{
		ID:       ev.ID,
		Type:     string(ev.Type),
		Channel:  string(ev.Channel),
		Priority: ev.Priority.String(),
	})
}

// handleRecent reads the recent-event ring, optionally blocking for new
// entries.
//
// Query parameters: since (ms or RFC3339), limit, wait_ms. When the read
// comes up empty and wait_ms is positive, the handler waits up to that long
// (capped at 30s) for an append before re-reading once.
func (c *EventsController) handleRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	q := r.URL.Query()
	since := parseTimestamp(q.Get("since"))
	limit := parseLimit(q.Get("limit"))
	waitMs := parseLimit(q.Get("wait_ms"))
	if waitMs > maxRecentWaitMs {
		waitMs = maxRecentWaitMs
	}

	ring := c.rt.Ring()
	entries := ring.ReadSince(since, limit)
	if len(entries) == 0 && waitMs > 0 {
		ring.WaitForAppend(time.Duration(waitMs) * time.Millisecond)
		entries = ring.ReadSince(since, limit)
	}

	out := make([]recentEventJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, recentEventJSON{Seq: e.Seq, AtMs: e.AtMs, Event: e.Event})
	}
	writeJSON(w, map[string]any{"events": out, "last_seq": ring.LastSeq()})
}

// eventFromEmitReq builds a typed event from the request fields.
//
// Priority and channel always come from the constructors, never from the
// request.
func eventFromEmitReq(req emitReq) (event.Event, error) {
	source := req.Source
	if source == "" {
		source = "api"
	}
	switch req.Kind {
	case "file":
		if req.Path == "" {
			return event.Event{}, fmt.Errorf("path is required")
		}
		change := req.Change
		if change == "" {
			change = "modified"
		}
		return event.NewFileChangeEvent(source, req.Path, change), nil
	case "analysis":
		success := true
		if req.Success != nil {
			success = *req.Success
		}
		return event.NewAnalysisEvent(source, success, event.Analysis{
			Path:       req.Path,
			Summary:    req.Summary,
			Confidence: req.Confidence,
			DurationMs: req.DurationMs,
		}), nil
	case "violation":
		if req.Rule == "" {
			return event.Event{}, fmt.Errorf("rule is required")
		}
		severity := req.Severity
		if severity == "" {
			severity = "warning"
		}
		return event.NewViolationEvent(source, event.Violation{
			Rule:       req.Rule,
			Severity:   severity,
			Path:       req.Path,
			Line:       req.Line,
			Message:    req.Message,
			Confidence: req.Confidence,
		}), nil
	case "agent":
		return event.NewAgentEvent(source, event.Type(req.AgentType), event.Agent{
			AgentID:    req.AgentID,
			Text:       req.Text,
			Strategy:   req.Strategy,
			Confidence: req.Confidence,
		}), nil
	case "error":
		if req.Message == "" {
			return event.Event{}, fmt.Errorf("message is required")
		}
		return event.NewSystemErrorEvent(source, req.Op, req.Message), nil
	default:
		return event.Event{}, fmt.Errorf("unknown event kind %q", req.Kind)
	}
}
