package streamingsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rzbill/flare/internal/metrics"
	"github.com/rzbill/flare/pkg/log"
)

// reconnectAck is the control frame confirming a restored session. It
// carries the last committed sequence number so the client knows where
// delivery resumes.
type reconnectAck struct {
	MessageType    string `json:"message_type"`
	SessionID      string `json:"session_id"`
	MissedEvents   int    `json:"missed_events"`
	SequenceNumber uint64 `json:"sequence_number"`
}

// MarkDisconnected deactivates clientID without discarding its state.
// last_seen freezes at the disconnect time and anchors both the missed
// event count on reconnect and the retention grace period. Unknown ids
// are ignored.
func (s *Service) MarkDisconnected(clientID string) {
	now := time.Now()
	s.mu.Lock()
	st, ok := s.clients[clientID]
	if ok && st.state.Active {
		st.state.Active = false
		st.state.LastSeen = now
	}
	active := s.countActiveLocked()
	s.mu.Unlock()
	if !ok {
		return
	}
	s.batcher.cancel(clientID)
	metrics.ConnectedClients.Set(float64(active))
	s.logger.With(log.Str("client_id", clientID)).Info("streaming.client_disconnected")
}

// Reconnect re-attaches a transport to a retained disconnected session.
// Each attempt probes the new transport with an ack frame; probe failures
// are retried up to the configured attempt budget with exponential
// backoff between tries. Success reactivates the client under a fresh
// session id while preserving sequence continuity, and reports how many
// events were emitted while it was away. Once the budget is spent the
// returned error wraps ErrReconnectionExhausted.
func (s *Service) Reconnect(ctx context.Context, clientID string, transport Transport) (ReconnectResult, error) {
	if clientID == "" {
		return ReconnectResult{}, errors.New("client id required")
	}
	if transport == nil {
		return ReconnectResult{}, errors.New("transport required")
	}
	pol := s.reconnectPolicy
	var lastErr error
	for attempt := uint32(0); attempt < pol.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(computeBackoff(pol, attempt)):
			case <-ctx.Done():
				return ReconnectResult{}, ctx.Err()
			case <-s.done:
				return ReconnectResult{}, ErrQueueClosed
			}
		}
		res, retryable, err := s.tryReconnect(clientID, transport)
		if err == nil {
			metrics.Reconnections.WithLabelValues("restored").Inc()
			s.logger.With(
				log.Str("client_id", clientID),
				log.Str("session_id", res.SessionID),
				log.Int("missed", res.MissedEventsCount),
				log.Int("attempt", int(attempt+1)),
			).Info("streaming.client_reconnected")
			return res, nil
		}
		lastErr = err
		if !retryable {
			return ReconnectResult{}, err
		}
		s.logger.With(
			log.Str("client_id", clientID),
			log.Int("attempt", int(attempt+1)),
			log.Err(err),
		).Debug("streaming.reconnect_retry")
	}
	metrics.Reconnections.WithLabelValues("exhausted").Inc()
	return ReconnectResult{}, fmt.Errorf("%w for client %q after %d attempts: %v",
		ErrReconnectionExhausted, clientID, pol.MaxAttempts, lastErr)
}

// tryReconnect performs a single restore attempt. The bool reports whether
// a failure is worth retrying; only transport probe failures are.
func (s *Service) tryReconnect(clientID string, transport Transport) (ReconnectResult, bool, error) {
	now := time.Now()
	s.mu.Lock()
	st, ok := s.clients[clientID]
	if !ok {
		s.mu.Unlock()
		return ReconnectResult{}, false, fmt.Errorf("no session for client %q", clientID)
	}
	if st.state.Active {
		s.mu.Unlock()
		return ReconnectResult{}, false, fmt.Errorf("client %q already attached", clientID)
	}
	if now.Sub(st.state.LastSeen) > s.grace {
		delete(s.clients, clientID)
		s.mu.Unlock()
		s.batcher.cancel(clientID)
		s.filter.Forget(clientID)
		metrics.Reconnections.WithLabelValues("expired").Inc()
		return ReconnectResult{}, false, fmt.Errorf("session for client %q expired", clientID)
	}
	disconnectedAt := st.state.LastSeen
	seq := st.state.SequenceNumber
	s.mu.Unlock()

	missed := s.rt.Ring().CountSince(disconnectedAt)
	sessionID := uuid.NewString()
	ack, err := json.Marshal(reconnectAck{
		MessageType:    "reconnect_ack",
		SessionID:      sessionID,
		MissedEvents:   missed,
		SequenceNumber: seq,
	})
	if err != nil {
		return ReconnectResult{}, false, err
	}
	if err := transport.SendText(ack); err != nil {
		return ReconnectResult{}, true, fmt.Errorf("transport probe: %w", err)
	}

	now = time.Now()
	s.mu.Lock()
	cur, stillThere := s.clients[clientID]
	if !stillThere || cur != st || cur.state.Active {
		// A concurrent RegisterClient replaced the slot while the probe
		// was in flight; the new registration wins.
		s.mu.Unlock()
		return ReconnectResult{}, false, fmt.Errorf("client %q re-registered during reconnect", clientID)
	}
	cur.transport = transport
	cur.state.Active = true
	cur.state.SessionID = sessionID
	cur.state.LastSeen = now
	active := s.countActiveLocked()
	s.mu.Unlock()
	metrics.ConnectedClients.Set(float64(active))

	return ReconnectResult{
		SessionRestored:   true,
		SessionID:         sessionID,
		MissedEventsCount: missed,
		ReconnectedAt:     now,
	}, true, nil
}

// sweepLoop periodically evicts disconnected sessions that outlived the
// retention grace period.
func (s *Service) sweepLoop(ctx context.Context) {
	defer s.wg.Done()
	interval := s.grace / 4
	if interval < time.Second {
		interval = time.Second
	}
	if interval > 30*time.Second {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sweepExpired(time.Now()); n > 0 {
				s.logger.With(log.Int("evicted", n)).Debug("streaming.sweep_expired")
			}
		}
	}
}

func (s *Service) sweepExpired(now time.Time) int {
	s.mu.Lock()
	var evicted []string
	for id, st := range s.clients {
		if !st.state.Active && now.Sub(st.state.LastSeen) > s.grace {
			evicted = append(evicted, id)
			delete(s.clients, id)
		}
	}
	s.mu.Unlock()
	for _, id := range evicted {
		s.batcher.cancel(id)
		s.filter.Forget(id)
		metrics.Reconnections.WithLabelValues("expired").Inc()
	}
	return len(evicted)
}
