package streamingsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	cfgpkg "github.com/rzbill/flare/internal/config"
	"github.com/rzbill/flare/internal/event"
	"github.com/rzbill/flare/internal/metrics"
	"github.com/rzbill/flare/internal/runtime"
	"github.com/rzbill/flare/pkg/log"
)

// flushChanCap bounds in-flight batch flush signals. At most one timer is
// outstanding per client, so the channel only fills under extreme churn;
// timer goroutines block rather than drop when it does.
const flushChanCap = 256

// clientState bundles everything the service tracks for one client.
type clientState struct {
	state     ConnectionState
	transport Transport
	filters   compiledFilters
}

// statsCounters are the raw aggregates behind Stats snapshots.
type statsCounters struct {
	totalEventsSent  uint64
	eventsByType     map[event.Type]uint64
	eventsByPriority map[event.Priority]uint64
	failedDeliveries uint64
}

// Service distributes typed events to connected clients according to
// per-client preferences. One delivery goroutine owns the processing loop
// and is the only writer of per-client delivery state; registration,
// preference updates, and emission are safe from any goroutine.
type Service struct {
	rt     *runtime.Runtime
	logger log.Logger
	cfg    cfgpkg.StreamingConfig

	filter   *eventFilter
	batcher  *eventBatcher
	compress *CompressionManager

	queue   chan event.Event
	flushCh chan string
	done    chan struct{}

	mu      sync.Mutex
	clients map[string]*clientState

	statsMu sync.Mutex
	stats   statsCounters

	reconnectPolicy RetryPolicy
	grace           time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New returns a Service using the runtime's logger.
func New(rt *runtime.Runtime) *Service {
	return NewWithLogger(rt, rt.Logger().With(log.Component("streaming")))
}

// NewWithLogger constructs the service with an injected logger.
func NewWithLogger(rt *runtime.Runtime, logger log.Logger) *Service {
	if logger == nil {
		logger = log.NewLogger().With(log.Component("streaming"))
	}
	cfg := rt.Config().Streaming
	queueCap := cfg.QueueCapacity
	if queueCap <= 0 {
		queueCap = 1024
	}
	s := &Service{
		rt:              rt,
		logger:          logger,
		cfg:             cfg,
		compress:        NewCompressionManager(cfg.CompressMinBytes, cfg.CompressMinSavings),
		queue:           make(chan event.Event, queueCap),
		flushCh:         make(chan string, flushChanCap),
		done:            make(chan struct{}),
		clients:         map[string]*clientState{},
		reconnectPolicy: defaultReconnectPolicy(time.Duration(cfg.ReconnectBackoffMs)*time.Millisecond, cfg.ReconnectAttempts),
		grace:           time.Duration(cfg.ReconnectGraceMs) * time.Millisecond,
		stats: statsCounters{
			eventsByType:     map[event.Type]uint64{},
			eventsByPriority: map[event.Priority]uint64{},
		},
	}
	if s.grace <= 0 {
		s.grace = 5 * time.Minute
	}
	s.filter = newEventFilter(logger)
	s.batcher = newEventBatcher(s.flushCh, s.done, cfg.BatchMaxEvents)
	return s
}

// Start launches the delivery loop and the disconnect sweeper. Calling
// Start more than once, including after Stop, is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.startOnce.Do(func() {
		loopCtx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		s.wg.Add(2)
		go s.loop(loopCtx)
		go s.sweepLoop(loopCtx)
		s.logger.With(
			log.Int("queue_cap", cap(s.queue)),
			log.Int("batch_cap", s.batcher.maxEvents),
		).Info("streaming.started")
	})
	return nil
}

// Stop cancels the delivery loop, rejects further emissions, cancels all
// outstanding batch timers, and waits for the loop to exit. No delivery
// happens after Stop returns. Calling Stop more than once is a no-op.
func (s *Service) Stop() error {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		close(s.done)
		s.wg.Wait()
		s.batcher.cancelAll()
		s.logger.Info("streaming.stopped")
	})
	return nil
}

// RegisterClient attaches a transport for clientID with prefs. Registering
// an id that already exists replaces all prior state for it, including a
// retained disconnected session.
func (s *Service) RegisterClient(clientID string, transport Transport, prefs ClientPreferences) error {
	if clientID == "" {
		return errors.New("client id required")
	}
	if transport == nil {
		return errors.New("transport required")
	}
	prefs.ClientID = clientID
	cf, err := compileFilters(prefs.CustomFilters)
	if err != nil {
		return fmt.Errorf("custom filters: %w", err)
	}
	now := time.Now()
	st := &clientState{
		state: ConnectionState{
			ClientID:    clientID,
			SessionID:   uuid.NewString(),
			ConnectedAt: now,
			LastSeen:    now,
			Active:      true,
			Preferences: prefs,
		},
		transport: transport,
		filters:   cf,
	}
	s.mu.Lock()
	_, replaced := s.clients[clientID]
	s.clients[clientID] = st
	active := s.countActiveLocked()
	s.mu.Unlock()
	if replaced {
		s.batcher.cancel(clientID)
		s.filter.Forget(clientID)
	}
	metrics.ConnectedClients.Set(float64(active))
	s.logger.With(
		log.Str("client_id", clientID),
		log.Str("session_id", st.state.SessionID),
		log.Bool("replaced", replaced),
	).Info("streaming.client_registered")
	return nil
}

// UnregisterClient removes all state for clientID and cancels any pending
// batch timer. Unknown ids are ignored.
func (s *Service) UnregisterClient(clientID string) {
	s.mu.Lock()
	_, ok := s.clients[clientID]
	delete(s.clients, clientID)
	active := s.countActiveLocked()
	s.mu.Unlock()
	if !ok {
		return
	}
	s.batcher.cancel(clientID)
	s.filter.Forget(clientID)
	metrics.ConnectedClients.Set(float64(active))
	s.logger.With(log.Str("client_id", clientID)).Info("streaming.client_unregistered")
}

// UpdateClientPreferences atomically replaces the client's preferences.
// Sequence number and active status are untouched.
func (s *Service) UpdateClientPreferences(clientID string, prefs ClientPreferences) error {
	prefs.ClientID = clientID
	cf, err := compileFilters(prefs.CustomFilters)
	if err != nil {
		return fmt.Errorf("custom filters: %w", err)
	}
	s.mu.Lock()
	st, ok := s.clients[clientID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown client %q", clientID)
	}
	st.state.Preferences = prefs
	st.filters = cf
	s.mu.Unlock()
	s.logger.With(log.Str("client_id", clientID)).Debug("streaming.prefs_updated")
	return nil
}

// EmitEvent enqueues ev for distribution. Emission stats are counted
// synchronously at call time regardless of eventual delivery. When the
// ingestion queue is full, EmitEvent blocks until space frees, ctx is
// canceled, or the service stops (backpressure rather than unbounded
// buffering).
func (s *Service) EmitEvent(ctx context.Context, ev event.Event) error {
	select {
	case <-s.done:
		return ErrQueueClosed
	default:
	}
	if ev.ID == "" {
		ev.ID = s.rt.NextID().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	s.statsMu.Lock()
	s.stats.totalEventsSent++
	s.stats.eventsByType[ev.Type]++
	s.stats.eventsByPriority[ev.Priority]++
	s.statsMu.Unlock()
	metrics.EventsEmitted.WithLabelValues(string(ev.Channel)).Inc()

	s.rt.Ring().Append(ev)

	select {
	case s.queue <- ev:
		metrics.QueueDepth.Set(float64(len(s.queue)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrQueueClosed
	}
}

// Stats returns a read-only snapshot of the aggregate counters.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	connected := s.countActiveLocked()
	s.mu.Unlock()

	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	out := Stats{
		ConnectedClients: connected,
		TotalEventsSent:  s.stats.totalEventsSent,
		FailedDeliveries: s.stats.failedDeliveries,
		EventsByType:     make(map[string]uint64, len(s.stats.eventsByType)),
		EventsByPriority: make(map[string]uint64, len(s.stats.eventsByPriority)),
	}
	for k, v := range s.stats.eventsByType {
		out.EventsByType[string(k)] = v
	}
	for k, v := range s.stats.eventsByPriority {
		out.EventsByPriority[k.String()] = v
	}
	return out
}

// ClientInfo returns a per-client state snapshot keyed by client id.
func (s *Service) ClientInfo() map[string]ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]ConnectionState, len(s.clients))
	for id, st := range s.clients {
		cs := st.state
		cs.Preferences = clonePreferences(st.state.Preferences)
		out[id] = cs
	}
	return out
}

// QueueDepth reports the number of events waiting in the ingestion queue.
func (s *Service) QueueDepth() int { return len(s.queue) }

func (s *Service) countActiveLocked() int {
	n := 0
	for _, st := range s.clients {
		if st.state.Active {
			n++
		}
	}
	return n
}

// loop is the single delivery goroutine. It alternates between dequeued
// events and batch flush signals until the context is canceled.
func (s *Service) loop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.queue:
			metrics.QueueDepth.Set(float64(len(s.queue)))
			s.dispatch(ev)
		case clientID := <-s.flushCh:
			s.flushPending(clientID)
		}
	}
}

// dispatch fans one event out to every active client. Per-client failures
// never affect other clients or the loop itself.
func (s *Service) dispatch(ev event.Event) {
	now := time.Now()
	s.mu.Lock()
	targets := make([]*clientState, 0, len(s.clients))
	for _, st := range s.clients {
		if st.state.Active {
			targets = append(targets, st)
		}
	}
	s.mu.Unlock()
	if len(targets) == 0 {
		metrics.EventsDropped.WithLabelValues("no_clients").Inc()
		return
	}
	for _, st := range targets {
		s.deliverToClient(now, st, ev)
	}
}

func (s *Service) deliverToClient(now time.Time, st *clientState, ev event.Event) {
	s.mu.Lock()
	prefs := st.state.Preferences
	cf := st.filters
	active := st.state.Active
	s.mu.Unlock()
	if !active {
		return
	}
	switch s.filter.verdict(now, ev, prefs, cf) {
	case verdictDeliver:
	case verdictRateLimited:
		metrics.EventsDropped.WithLabelValues("rate_limit").Inc()
		return
	default:
		metrics.EventsDropped.WithLabelValues("filter").Inc()
		return
	}
	batch := s.batcher.add(prefs.ClientID, ev, prefs)
	if batch == nil {
		return
	}
	s.sendBatch(st, prefs, batch)
}

// flushPending delivers whatever a fired batch timer left pending. Stale
// signals for clients that cap-flushed, unregistered, or deactivated in
// the meantime find nothing to do.
func (s *Service) flushPending(clientID string) {
	batch := s.batcher.take(clientID)
	if len(batch) == 0 {
		return
	}
	s.mu.Lock()
	st, ok := s.clients[clientID]
	var prefs ClientPreferences
	active := false
	if ok {
		prefs = st.state.Preferences
		active = st.state.Active
	}
	s.mu.Unlock()
	if !ok || !active {
		return
	}
	s.sendBatch(st, prefs, batch)
}

// sendBatch serializes a ready batch, optionally compresses it, and
// attempts the transport send. A send failure deactivates the client and
// counts one failed delivery; it never propagates.
func (s *Service) sendBatch(st *clientState, prefs ClientPreferences, batch []event.Event) {
	s.mu.Lock()
	transport := st.transport
	next := st.state.SequenceNumber + 1
	clientID := st.state.ClientID
	s.mu.Unlock()
	if transport == nil {
		return
	}

	payload, err := buildMessage(batch, next)
	if err != nil {
		s.logger.With(log.Str("client_id", clientID), log.Err(err)).Warn("streaming.encode_failed")
		return
	}
	out := payload
	compressed := false
	if prefs.EnableCompression {
		out, compressed = s.compress.Compress(payload)
		if compressed {
			metrics.CompressionSavings.Observe(1 - float64(len(out))/float64(len(payload)))
		}
	}

	var sendErr error
	if compressed {
		sendErr = transport.SendBytes(out)
	} else {
		sendErr = transport.SendText(out)
	}
	if sendErr != nil {
		s.handleSendFailure(st, clientID, sendErr)
		return
	}

	s.mu.Lock()
	st.state.SequenceNumber = next
	st.state.LastSeen = time.Now()
	s.mu.Unlock()
	metrics.EventsDelivered.Add(float64(len(batch)))
	metrics.BatchSize.Observe(float64(len(batch)))
	s.logger.With(
		log.Str("client_id", clientID),
		log.Int("batch_n", len(batch)),
		log.Int("bytes", len(out)),
		log.Bool("compressed", compressed),
		log.Uint64("seq", next),
	).Debug("streaming.deliver")
}

func (s *Service) handleSendFailure(st *clientState, clientID string, err error) {
	now := time.Now()
	s.mu.Lock()
	st.state.Active = false
	st.state.LastSeen = now
	active := s.countActiveLocked()
	s.mu.Unlock()

	s.statsMu.Lock()
	s.stats.failedDeliveries++
	s.statsMu.Unlock()
	metrics.DeliveryFailures.Inc()
	metrics.ConnectedClients.Set(float64(active))

	if errors.Is(err, ErrTransportClosed) {
		s.logger.With(log.Str("client_id", clientID)).Info("streaming.client_disconnected")
	} else {
		s.logger.With(log.Str("client_id", clientID), log.Err(err)).Warn("streaming.send_failed")
	}
}

// buildMessage serializes a ready batch into the wire envelope carrying
// the client's next sequence number.
func buildMessage(batch []event.Event, seq uint64) ([]byte, error) {
	var msg StreamingMessage
	if len(batch) == 1 {
		data, err := json.Marshal(batch[0])
		if err != nil {
			return nil, err
		}
		msg = StreamingMessage{
			MessageType:    "notification",
			EventType:      string(batch[0].Type),
			Data:           data,
			SequenceNumber: seq,
		}
	} else {
		data, err := json.Marshal(BatchData{Events: batch, Count: len(batch)})
		if err != nil {
			return nil, err
		}
		msg = StreamingMessage{
			MessageType:    "notification",
			EventType:      "batch",
			Data:           data,
			SequenceNumber: seq,
		}
	}
	return json.Marshal(msg)
}
