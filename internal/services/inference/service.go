package inferencesvc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	cfgpkg "github.com/rzbill/flare/internal/config"
	"github.com/rzbill/flare/internal/event"
	"github.com/rzbill/flare/internal/metrics"
	"github.com/rzbill/flare/internal/runtime"
	"github.com/rzbill/flare/pkg/log"
)

// healthProbeTimeout bounds a single backend health probe so one stuck
// backend cannot stall the whole monitoring tick.
const healthProbeTimeout = 2 * time.Second

// Backend is one ranked upstream strategy.
type Backend interface {
	Name() string
	Available() bool
	Generate(ctx context.Context, prompt string) (string, error)
	// Health scores the backend in [0, 1].
	Health(ctx context.Context) float64
}

// EventEmitter is the slice of the streaming service the selector uses to
// announce strategy switches to connected clients.
type EventEmitter interface {
	EmitEvent(ctx context.Context, ev event.Event) error
}

// Service fronts the ranked inference backends with a circuit breaker and
// health-driven strategy selection. Rank order is the order backends were
// passed in; index 0 is the primary.
type Service struct {
	logger  log.Logger
	cfg     cfgpkg.UpstreamConfig
	breaker *CircuitBreaker
	emitter EventEmitter

	mu       sync.Mutex
	backends []Backend
	current  int
	health   map[string]float64

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// switchNote describes a strategy change decided under the lock, announced
// after it is released.
type switchNote struct {
	from   string
	to     string
	reason string
}

// New returns a Service using the runtime's logger. emitter may be nil
// when no delivery engine is wired.
func New(rt *runtime.Runtime, backends []Backend, emitter EventEmitter) (*Service, error) {
	return NewWithLogger(rt, backends, emitter, rt.Logger().With(log.Component("inference")))
}

// NewWithLogger constructs the service with an injected logger.
func NewWithLogger(rt *runtime.Runtime, backends []Backend, emitter EventEmitter, logger log.Logger) (*Service, error) {
	if len(backends) == 0 {
		return nil, errors.New("at least one backend required")
	}
	if logger == nil {
		logger = log.NewLogger().With(log.Component("inference"))
	}
	cfg := rt.Config().Upstream
	return &Service{
		logger:   logger,
		cfg:      cfg,
		breaker:  NewCircuitBreaker(cfg.FailureThreshold, time.Duration(cfg.RecoveryTimeoutMs)*time.Millisecond),
		emitter:  emitter,
		backends: backends,
		health:   map[string]float64{},
	}, nil
}

// Start launches the health monitor. Calling Start more than once,
// including after Stop, is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.startOnce.Do(func() {
		loopCtx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		s.wg.Add(1)
		go s.monitor(loopCtx)
		s.logger.With(
			log.Int("backends", len(s.backends)),
			log.Str("primary", s.backends[0].Name()),
		).Info("inference.started")
	})
	return nil
}

// Stop halts the health monitor and waits for it to exit.
func (s *Service) Stop() error {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
		s.logger.Info("inference.stopped")
	})
	return nil
}

// Generate runs prompt through the active backend, guarded by the
// breaker. An unavailable active backend fails over to the next available
// rank before the call. Breaker rejections surface as *CircuitOpenError.
func (s *Service) Generate(ctx context.Context, prompt string) (string, error) {
	if err := s.breaker.Allow(); err != nil {
		metrics.UpstreamRequests.WithLabelValues(s.ActiveStrategy(), "short_circuit").Inc()
		return "", err
	}
	b, note, err := s.pickBackend()
	if err != nil {
		// every rank is unavailable, so the dependency as a whole failed
		s.breaker.RecordFailure()
		return "", err
	}
	if note != nil {
		s.announceSwitch(ctx, *note)
	}
	out, err := b.Generate(ctx, prompt)
	if err != nil {
		s.breaker.RecordFailure()
		metrics.UpstreamRequests.WithLabelValues(b.Name(), "error").Inc()
		return "", fmt.Errorf("inference generate: %w", err)
	}
	s.breaker.RecordSuccess()
	metrics.UpstreamRequests.WithLabelValues(b.Name(), "ok").Inc()
	return out, nil
}

// SwitchStrategy forces the named strategy active. The switch is applied
// even if the target is currently unavailable; the monitor will fail over
// again if it stays that way.
func (s *Service) SwitchStrategy(ctx context.Context, name string) error {
	s.mu.Lock()
	idx := -1
	for i, b := range s.backends {
		if b.Name() == name {
			idx = i
			break
		}
	}
	if idx == -1 {
		s.mu.Unlock()
		return fmt.Errorf("unknown strategy %q", name)
	}
	if idx == s.current {
		s.mu.Unlock()
		return nil
	}
	from := s.backends[s.current].Name()
	s.current = idx
	available := s.backends[idx].Available()
	s.mu.Unlock()

	if !available {
		s.logger.With(log.Str("strategy", name)).Warn("inference.switch_to_unavailable")
	}
	s.announceSwitch(ctx, switchNote{from: from, to: name, reason: "manual"})
	return nil
}

// ActiveStrategy returns the name of the currently selected backend.
func (s *Service) ActiveStrategy() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backends[s.current].Name()
}

// StrategyStatus is the wire shape of one ranked backend.
type StrategyStatus struct {
	Name      string  `json:"name"`
	Rank      int     `json:"rank"`
	Active    bool    `json:"active"`
	Available bool    `json:"available"`
	Health    float64 `json:"health"`
}

// Status is the upstream health snapshot served to monitoring consumers.
type Status struct {
	Active     string           `json:"active"`
	Breaker    BreakerSnapshot  `json:"breaker"`
	Strategies []StrategyStatus `json:"strategies"`
}

// Status reports the active strategy, breaker position, and last observed
// health scores.
func (s *Service) Status() Status {
	s.mu.Lock()
	strategies := make([]StrategyStatus, 0, len(s.backends))
	for i, b := range s.backends {
		strategies = append(strategies, StrategyStatus{
			Name:      b.Name(),
			Rank:      i,
			Active:    i == s.current,
			Available: b.Available(),
			Health:    s.health[b.Name()],
		})
	}
	active := s.backends[s.current].Name()
	s.mu.Unlock()
	return Status{Active: active, Breaker: s.breaker.Snapshot(), Strategies: strategies}
}

// pickBackend returns the active backend, failing over past unavailable
// ranks. The caller announces any switch after the lock is released.
func (s *Service) pickBackend() (Backend, *switchNote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b := s.backends[s.current]; b.Available() {
		return b, nil, nil
	}
	from := s.backends[s.current].Name()
	for i := s.current + 1; i < len(s.backends); i++ {
		if s.backends[i].Available() {
			s.current = i
			return s.backends[i], &switchNote{from: from, to: s.backends[i].Name(), reason: "unavailable"}, nil
		}
	}
	return nil, nil, fmt.Errorf("no available inference backend (active %q)", from)
}

func (s *Service) monitor(ctx context.Context) {
	defer s.wg.Done()
	interval := time.Duration(s.cfg.HealthIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 10 * time.Second
	}
	// seed scores so status is meaningful before the first tick
	s.probe(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.probe(ctx)
		}
	}
}

// probe scores every backend, then applies the selection rules: switch
// back to a recovered primary first, otherwise fail over a degraded or
// unavailable active strategy to the next available rank.
func (s *Service) probe(ctx context.Context) {
	scores := make(map[string]float64, len(s.backends))
	for _, b := range s.backends {
		pctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
		score := b.Health(pctx)
		cancel()
		scores[b.Name()] = score
		metrics.UpstreamHealth.WithLabelValues(b.Name()).Set(score)
	}

	s.mu.Lock()
	s.health = scores
	var note *switchNote
	cur := s.backends[s.current]
	curName := cur.Name()
	if s.current > 0 {
		primary := s.backends[0]
		if primary.Available() && scores[primary.Name()] > s.cfg.RecoverAbove {
			s.current = 0
			note = &switchNote{from: curName, to: primary.Name(), reason: "primary_recovered"}
		}
	}
	if note == nil && (!cur.Available() || scores[curName] < s.cfg.FailoverBelow) {
		for i := s.current + 1; i < len(s.backends); i++ {
			if s.backends[i].Available() {
				s.current = i
				note = &switchNote{from: curName, to: s.backends[i].Name(), reason: "degraded"}
				break
			}
		}
	}
	s.mu.Unlock()

	if note != nil {
		s.announceSwitch(ctx, *note)
	}
}

// announceSwitch logs a strategy transition and mirrors it to connected
// clients as an agent event.
func (s *Service) announceSwitch(ctx context.Context, note switchNote) {
	s.logger.With(
		log.Str("from", note.from),
		log.Str("to", note.to),
		log.Str("reason", note.reason),
	).Info("inference.strategy_switch")
	if s.emitter == nil {
		return
	}
	ev := event.NewAgentEvent("inference", event.TypeAgentStarted, event.Agent{
		AgentID:  "strategy-selector",
		Text:     fmt.Sprintf("inference strategy switched from %s to %s (%s)", note.from, note.to, note.reason),
		Strategy: note.to,
	})
	if err := s.emitter.EmitEvent(ctx, ev); err != nil {
		s.logger.With(log.Err(err)).Debug("inference.switch_event_dropped")
	}
}
