package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rzbill/flare/internal/runtime"
	inferencesvc "github.com/rzbill/flare/internal/services/inference"
)

// UpstreamController handles the upstream strategy surface.
type UpstreamController struct {
	rt *runtime.Runtime
	up *inferencesvc.Service
}

// NewUpstreamController creates a new upstream controller.
func NewUpstreamController(rt *runtime.Runtime, svc *inferencesvc.Service) *UpstreamController {
	return &UpstreamController{
		rt: rt,
		up: svc,
	}
}

// RegisterRoutes registers upstream routes with the given mux.
//
// This method sets up HTTP endpoints for:
// - Breaker and strategy snapshot (/v1/upstream/health)
// - Manual strategy switches (/v1/upstream/switch)
// - Generation through the active strategy (/v1/upstream/generate)
func (c *UpstreamController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/upstream/health", c.handleHealth)
	mux.HandleFunc("/v1/upstream/switch", c.handleSwitch)
	mux.HandleFunc("/v1/upstream/generate", c.handleGenerate)
}

// handleHealth returns the breaker state and per-strategy health snapshot.
func (c *UpstreamController) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, c.up.Status())
}

// handleSwitch forces the active strategy, bypassing the ranked selector.
func (c *UpstreamController) handleSwitch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req switchReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := c.up.SwitchStrategy(r.Context(), req.Strategy); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, map[string]string{"active": c.up.ActiveStrategy()})
}

// handleGenerate runs one generation through the active strategy.
//
// An open circuit maps to 503 with a retry hint; any other upstream failure
// maps to 502.
func (c *UpstreamController) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req generateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	out, err := c.up.Generate(r.Context(), req.Prompt)
	if err != nil {
		var openErr *inferencesvc.CircuitOpenError
		if errors.As(err, &openErr) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error":          "upstream circuit open",
				"retry_after_ms": time.Until(openErr.RetryAfter).Milliseconds(),
			})
			return
		}
		writeError(w, http.StatusBadGateway, "generation failed")
		return
	}
	writeJSON(w, generateResp{Output: out, Strategy: c.up.ActiveStrategy()})
}
