package controllers

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rzbill/flare/internal/event"
	"github.com/rzbill/flare/internal/runtime"
	streamingsvc "github.com/rzbill/flare/internal/services/streaming"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamController handles the live delivery transports.
type StreamController struct {
	rt *runtime.Runtime
	st *streamingsvc.Service
}

// NewStreamController creates a new stream controller.
func NewStreamController(rt *runtime.Runtime, svc *streamingsvc.Service) *StreamController {
	return &StreamController{
		rt: rt,
		st: svc,
	}
}

// RegisterRoutes registers delivery transport routes with the given mux.
//
// This method sets up HTTP endpoints for:
// - WebSocket delivery (/v1/stream/ws)
// - Server-Sent Events delivery (/v1/stream/sse)
func (c *StreamController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/stream/ws", c.handleStreamWS)
	mux.HandleFunc("/v1/stream/sse", c.handleStreamSSE)
}

// wsTransport adapts a WebSocket connection to the streaming Transport
// contract. Uncompressed envelopes travel as text frames, compressed ones
// as binary frames. The mutex serializes writes from the delivery loop and
// the ping loop.
type wsTransport struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	done   chan struct{}
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{conn: conn, done: make(chan struct{})}
}

// SendText sends an uncompressed JSON envelope as a text frame.
func (t *wsTransport) SendText(p []byte) error {
	return t.send(websocket.TextMessage, p)
}

// SendBytes sends a compressed envelope as a binary frame.
func (t *wsTransport) SendBytes(p []byte) error {
	return t.send(websocket.BinaryMessage, p)
}

func (t *wsTransport) send(messageType int, p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return streamingsvc.ErrTransportClosed
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := t.conn.WriteMessage(messageType, p); err != nil {
		t.closeLocked()
		return fmt.Errorf("%w: %v", streamingsvc.ErrTransportClosed, err)
	}
	return nil
}

func (t *wsTransport) ping() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return streamingsvc.ErrTransportClosed
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		t.closeLocked()
		return err
	}
	return nil
}

func (t *wsTransport) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeLocked()
}

func (t *wsTransport) closeLocked() {
	if t.closed {
		return
	}
	t.closed = true
	close(t.done)
	_ = t.conn.Close()
}

// handleStreamWS upgrades the request and attaches the connection to the
// delivery engine.
//
// Query parameters: client_id (required), reconnect, and the preference
// parameters read by prefsFromQuery. With reconnect=true the connection
// resumes the client's previous session instead of starting a fresh one;
// the first frame on the socket is then the reconnect acknowledgment.
//
// When the connection drops, the session is only marked disconnected, not
// removed. It stays eligible for resumption until the grace period expires.
func (c *StreamController) handleStreamWS(w http.ResponseWriter, r *http.Request) {
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
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an error.
		return
	}
	t := newWSTransport(conn)

	if parseBool(q.Get("reconnect")) {
		if _, err := c.st.Reconnect(r.Context(), clientID, t); err != nil {
			closeWithReason(conn, err.Error())
			t.close()
			return
		}
	} else {
		if err := c.st.RegisterClient(clientID, t, prefs); err != nil {
			closeWithReason(conn, err.Error())
			t.close()
			return
		}
	}

	go c.pingLoop(t)
	c.readPump(conn, clientID, t)
}

// readPump drains inbound frames to keep pong handling alive. Delivered
// events only flow server to client; anything the peer sends is discarded.
// The pump returning means the connection is gone.
func (c *StreamController) readPump(conn *websocket.Conn, clientID string, t *wsTransport) {
	defer func() {
		t.close()
		c.st.MarkDisconnected(clientID)
	}()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// pingLoop keeps the connection alive until the transport closes.
func (c *StreamController) pingLoop(t *wsTransport) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := t.ping(); err != nil {
				return
			}
		case <-t.done:
			return
		}
	}
}

// closeWithReason sends a close frame carrying the rejection reason before
// dropping the connection.
func closeWithReason(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = conn.Close()
}

// prefsFromQuery builds client preferences from subscribe query parameters.
// Absent parameters keep the defaults.
//
// Recognized parameters: channels (comma separated), min_priority, rate
// (events per second, 0 for unlimited), batch, batch_ms, compress, exclude
// (comma separated path substrings), min_confidence, and expression (a CEL
// filter over the event fields).
func prefsFromQuery(clientID string, q url.Values) (streamingsvc.ClientPreferences, error) {
	prefs := streamingsvc.DefaultPreferences(clientID)
	if raw := q.Get("channels"); raw != "" {
		channels := make([]event.Channel, 0, 4)
		for _, name := range strings.Split(raw, ",") {
			ch, err := event.ParseChannel(strings.TrimSpace(name))
			if err != nil {
				return prefs, err
			}
			channels = append(channels, ch)
		}
		prefs.EnabledChannels = channels
	}
	if raw := q.Get("min_priority"); raw != "" {
		p, err := event.ParsePriority(raw)
		if err != nil {
			return prefs, err
		}
		prefs.MinPriority = p
	}
	if raw := q.Get("rate"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return prefs, fmt.Errorf("invalid rate %q", raw)
		}
		prefs.MaxEventsPerSecond = n
	}
	if raw := q.Get("batch"); raw != "" {
		prefs.EnableBatching = parseBool(raw)
	}
	if ms := parseLimit(q.Get("batch_ms")); ms > 0 {
		prefs.BatchInterval = time.Duration(ms) * time.Millisecond
	}
	if raw := q.Get("compress"); raw != "" {
		prefs.EnableCompression = parseBool(raw)
	}

	filters := map[string]any{}
	if raw := q.Get("exclude"); raw != "" {
		patterns := make([]string, 0, 4)
		for _, p := range strings.Split(raw, ",") {
			if s := strings.TrimSpace(p); s != "" {
				patterns = append(patterns, s)
			}
		}
		filters["exclude_file_patterns"] = patterns
	}
	if raw := q.Get("min_confidence"); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return prefs, fmt.Errorf("invalid min_confidence %q", raw)
		}
		filters["min_confidence"] = f
	}
	if raw := q.Get("expression"); raw != "" {
		filters["expression"] = raw
	}
	if len(filters) > 0 {
		prefs.CustomFilters = filters
	}
	return prefs, nil
}
