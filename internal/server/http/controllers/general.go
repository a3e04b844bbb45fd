package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rzbill/flare/internal/event"
	"github.com/rzbill/flare/internal/runtime"
	streamingsvc "github.com/rzbill/flare/internal/services/streaming"
)

// GeneralController handles general HTTP endpoints like health and stats.
//
// It provides endpoints for service health monitoring, delivery statistics,
// and client session management operations that are not tied to a live
// delivery transport.
type GeneralController struct {
	rt *runtime.Runtime
	st *streamingsvc.Service
}

// NewGeneralController creates a new general controller.
//
// The controller requires both a runtime instance for configuration and
// a streaming service for business logic operations.
func NewGeneralController(rt *runtime.Runtime, svc *streamingsvc.Service) *GeneralController {
	return &GeneralController{
		rt: rt,
		st: svc,
	}
}

// RegisterRoutes registers general routes with the given mux.
//
// This method sets up HTTP endpoints for:
// - Health checks (/v1/healthz)
// - Delivery statistics (/v1/stats)
// - Client sessions (/v1/clients, /v1/clients/prefs, /v1/clients/unregister)
func (c *GeneralController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/healthz", c.handleHealth)
	mux.HandleFunc("/v1/stats", c.handleStats)
	mux.HandleFunc("/v1/clients", c.handleListClients)
	mux.HandleFunc("/v1/clients/prefs", c.handleUpdatePrefs)
	mux.HandleFunc("/v1/clients/unregister", c.handleUnregister)
}

// handleHealth returns the health status of the service.
//
// Returns 200 OK with {"status": "ok"} if healthy, 503 Service Unavailable otherwise.
func (c *GeneralController) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := c.rt.CheckHealth(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_serving")
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleStats returns the delivery statistics snapshot.
//
// The snapshot counts events at emission time, so it includes events still
// queued or filtered out before any send.
func (c *GeneralController) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, statsResp{
		Stats:      c.st.Stats(),
		QueueDepth: c.st.QueueDepth(),
	})
}

// handleListClients lists all known client sessions, active and disconnected.
func (c *GeneralController) handleListClients(w http.ResponseWriter, r *http.Request) {
	info := c.st.ClientInfo()
	out := make(map[string]clientStateJSON, len(info))
	for id, st := range info {
		out[id] = stateToJSON(st)
	}
	writeJSON(w, map[string]any{"clients": out})
}

// handleUpdatePrefs updates a connected client's delivery preferences.
//
// Fields absent from the request body keep the client's current value.
// Returns 204 No Content on success.
func (c *GeneralController) handleUpdatePrefs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req clientPrefsReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ClientID == "" {
		writeError(w, http.StatusBadRequest, "client_id is required")
		return
	}
	cur, ok := c.st.ClientInfo()[req.ClientID]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown client")
		return
	}
	prefs, err := applyPrefsPatch(cur.Preferences, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := c.st.UpdateClientPreferences(req.ClientID, prefs); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeNoContent(w)
}

// handleUnregister drops a client session and its pending batch.
func (c *GeneralController) handleUnregister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req clientUnregisterReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ClientID == "" {
		writeError(w, http.StatusBadRequest, "client_id is required")
		return
	}
	c.st.UnregisterClient(req.ClientID)
	writeNoContent(w)
}

// applyPrefsPatch overlays the non-nil request fields on the current
// preferences.
func applyPrefsPatch(cur streamingsvc.ClientPreferences, req clientPrefsReq) (streamingsvc.ClientPreferences, error) {
	if req.Channels != nil {
		channels := make([]event.Channel, 0, len(req.Channels))
		for _, name := range req.Channels {
			ch, err := event.ParseChannel(name)
			if err != nil {
				return cur, err
			}
			channels = append(channels, ch)
		}
		cur.EnabledChannels = channels
	}
	if req.MinPriority != nil {
		p, err := event.ParsePriority(*req.MinPriority)
		if err != nil {
			return cur, err
		}
		cur.MinPriority = p
	}
	if req.MaxEventsPerSecond != nil {
		cur.MaxEventsPerSecond = *req.MaxEventsPerSecond
	}
	if req.EnableBatching != nil {
		cur.EnableBatching = *req.EnableBatching
	}
	if req.BatchIntervalMs != nil {
		cur.BatchInterval = time.Duration(*req.BatchIntervalMs) * time.Millisecond
	}
	if req.EnableCompression != nil {
		cur.EnableCompression = *req.EnableCompression
	}
	if req.CustomFilters != nil {
		cur.CustomFilters = req.CustomFilters
	}
	return cur, nil
}
