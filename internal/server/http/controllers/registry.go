package controllers

import (
	"net/http"

	"github.com/rzbill/flare/internal/runtime"
	inferencesvc "github.com/rzbill/flare/internal/services/inference"
	streamingsvc "github.com/rzbill/flare/internal/services/streaming"
)

// ControllerRegistry manages all HTTP controllers.
//
// It provides a centralized way to register all controller routes
// and manages the lifecycle of individual controllers.
type ControllerRegistry struct {
	general  *GeneralController
	events   *EventsController
	stream   *StreamController
	upstream *UpstreamController
}

// NewControllerRegistry creates a new controller registry.
//
// It initializes all controllers with the provided runtime and services.
func NewControllerRegistry(rt *runtime.Runtime, streamingSvc *streamingsvc.Service, upstreamSvc *inferencesvc.Service) *ControllerRegistry {
	return &ControllerRegistry{
		general:  NewGeneralController(rt, streamingSvc),
		events:   NewEventsController(rt, streamingSvc),
		stream:   NewStreamController(rt, streamingSvc),
		upstream: NewUpstreamController(rt, upstreamSvc),
	}
}

// RegisterAllRoutes registers all controller routes with the given mux.
//
// This method sets up all HTTP endpoints for the Flare service: general
// endpoints (health, stats, clients), event ingestion and the recent-event
// index, the WebSocket and SSE delivery transports, and the upstream
// strategy surface.
func (r *ControllerRegistry) RegisterAllRoutes(mux *http.ServeMux) {
	r.general.RegisterRoutes(mux)
	r.events.RegisterRoutes(mux)
	r.stream.RegisterRoutes(mux)
	r.upstream.RegisterRoutes(mux)
}
