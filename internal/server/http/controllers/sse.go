package controllers

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"sync"

	streamingsvc "github.com/rzbill/flare/internal/services/streaming"
)

// sseTransport adapts a Server-Sent Events response to the streaming
// Transport contract.
//
// The delivery loop writes from its own goroutine, so the mutex serializes
// writes against the handler marking the transport closed. The handler only
// returns after close, which keeps every write inside the ResponseWriter's
// lifetime.
type sseTransport struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
}

// SendText sends a JSON envelope as an SSE data event.
//
// The message is sent with the "data: " prefix followed by two newlines as
// required by the SSE specification, then flushed so it reaches the client
// immediately.
func (t *sseTransport) SendText(p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return streamingsvc.ErrTransportClosed
	}
	if _, err := fmt.Fprintf(t.w, "data: %s\n\n", p); err != nil {
		t.closed = true
		return fmt.Errorf("%w: %v", streamingsvc.ErrTransportClosed, err)
	}
	t.flusher.Flush()
	return nil
}

// SendBytes sends a compressed envelope base64-encoded under an explicit
// event name, since SSE is a text protocol.
//
// Subscribe preferences force compression off, so this only fires for a
// client that re-enables compression through the prefs endpoint afterward.
func (t *sseTransport) SendBytes(p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return streamingsvc.ErrTransportClosed
	}
	if _, err := fmt.Fprintf(t.w, "event: compressed\ndata: %s\n\n", base64.StdEncoding.EncodeToString(p)); err != nil {
		t.closed = true
		return fmt.Errorf("%w: %v", streamingsvc.ErrTransportClosed, err)
	}
	t.flusher.Flush()
	return nil
}

func (t *sseTransport) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

// handleStreamSSE attaches an SSE response to the delivery engine.
//
// Same query parameters as the WebSocket endpoint; compression is forced
// off because SSE cannot carry binary frames. Since the stream headers go
// out before the session attaches, attach failures travel in-protocol as
// an "error" event rather than an HTTP status.
func (c *StreamController) handleStreamSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	q := r.URL.Query()
	clientID := q.Get("client_id")
	if clientID == "" {
		writeError(w, http.StatusBadRequest, "client_id is required")
		return
	}
	prefs, err := prefsFromQuery(clientID, q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	prefs.EnableCompression = false
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	t := &sseTransport{w: w, flusher: flusher}
	if parseBool(q.Get("reconnect")) {
		if _, err := c.st.Reconnect(r.Context(), clientID, t); err != nil {
			sseError(w, flusher, err)
			return
		}
	} else {
		if err := c.st.RegisterClient(clientID, t, prefs); err != nil {
			sseError(w, flusher, err)
			return
		}
	}

	<-r.Context().Done()
	t.close()
	c.st.MarkDisconnected(clientID)
}

func sseError(w http.ResponseWriter, flusher http.Flusher, err error) {
	_, _ = fmt.Fprintf(w, "event: error\ndata: %s\n\n", err.Error())
	flusher.Flush()
}
