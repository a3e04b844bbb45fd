package inferencesvc

import (
	"fmt"
	"sync"
	"time"

	"github.com/rzbill/flare/internal/metrics"
)

// CircuitState is the breaker position.
type CircuitState int

const (
	// CircuitClosed allows requests and counts consecutive failures.
	CircuitClosed CircuitState = iota
	// CircuitOpen blocks requests until the recovery timeout elapses.
	CircuitOpen
	// CircuitHalfOpen admits a single trial request to probe recovery.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitOpenError is returned while the breaker blocks requests.
type CircuitOpenError struct {
	OpenedAt   time.Time
	RetryAfter time.Time
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("upstream circuit open (opened %s, retry after %s)",
		e.OpenedAt.Format(time.RFC3339), e.RetryAfter.Format(time.RFC3339))
}

// CircuitBreaker guards the inference dependency as a whole.
//
// Transitions:
//   - Closed -> Open after failureThreshold consecutive failures
//   - Open -> HalfOpen once recoveryTimeout has elapsed
//   - HalfOpen -> Closed on a successful trial, -> Open on a failed one
//
// Safe for concurrent use.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            CircuitState
	failureThreshold int
	recoveryTimeout  time.Duration
	failures         int
	openedAt         time.Time
	lastFailure      time.Time
	trialInFlight    bool
}

func NewCircuitBreaker(failureThreshold int, recoveryTimeout time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 3
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = 30 * time.Second
	}
	metrics.CircuitState.Set(float64(CircuitClosed))
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
	}
}

// Allow reports whether a request may proceed. While open it returns a
// CircuitOpenError carrying the earliest retry time. The transition to
// half-open happens here, on the first Allow after the recovery timeout.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		if time.Since(cb.openedAt) >= cb.recoveryTimeout {
			cb.setStateLocked(CircuitHalfOpen)
			cb.trialInFlight = true
			return nil
		}
		return &CircuitOpenError{OpenedAt: cb.openedAt, RetryAfter: cb.openedAt.Add(cb.recoveryTimeout)}
	case CircuitHalfOpen:
		if cb.trialInFlight {
			return &CircuitOpenError{OpenedAt: cb.openedAt, RetryAfter: cb.openedAt.Add(cb.recoveryTimeout)}
		}
		cb.trialInFlight = true
		return nil
	default:
		return nil
	}
}

// RecordSuccess resets the failure count and closes a half-open circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.trialInFlight = false
	if cb.state != CircuitClosed {
		cb.setStateLocked(CircuitClosed)
	}
}

// RecordFailure counts a failure, opening the circuit at the threshold.
// A failed half-open trial reopens immediately and restarts the recovery
// timer.
func (cb *CircuitBreaker) RecordFailure() {
	now := time.Now()
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.lastFailure = now

	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.failureThreshold {
			cb.openedAt = now
			cb.setStateLocked(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.openedAt = now
		cb.failures = cb.failureThreshold
		cb.trialInFlight = false
		cb.setStateLocked(CircuitOpen)
	case CircuitOpen:
		// counter already at threshold
	}
}

// State returns the effective position, reading an expired open circuit
// as half-open the way Allow would transition it.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen && time.Since(cb.openedAt) >= cb.recoveryTimeout {
		return CircuitHalfOpen
	}
	return cb.state
}

// BreakerSnapshot is the wire shape of the breaker for health endpoints.
type BreakerSnapshot struct {
	State       string    `json:"state"`
	Failures    int       `json:"failures"`
	OpenedAt    time.Time `json:"opened_at,omitempty"`
	LastFailure time.Time `json:"last_failure,omitempty"`
	RetryAfter  time.Time `json:"retry_after,omitempty"`
}

// Snapshot returns a point-in-time view for monitoring.
func (cb *CircuitBreaker) Snapshot() BreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	snap := BreakerSnapshot{
		State:       cb.state.String(),
		Failures:    cb.failures,
		OpenedAt:    cb.openedAt,
		LastFailure: cb.lastFailure,
	}
	if cb.state == CircuitOpen {
		if time.Since(cb.openedAt) >= cb.recoveryTimeout {
			snap.State = CircuitHalfOpen.String()
		} else {
			snap.RetryAfter = cb.openedAt.Add(cb.recoveryTimeout)
		}
	}
	return snap
}

// Reset forces the circuit closed. Useful when an operator has confirmed
// the upstream healthy out of band.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.trialInFlight = false
	cb.setStateLocked(CircuitClosed)
}

func (cb *CircuitBreaker) setStateLocked(s CircuitState) {
	cb.state = s
	metrics.CircuitState.Set(float64(s))
}
