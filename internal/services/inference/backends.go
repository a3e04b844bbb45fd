package inferencesvc

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// StaticBackend is an in-process backend with settable availability,
// health, and failure behavior. The server wires one per configured
// strategy name; operators flip them through the API, and tests script
// them to drive breaker and failover paths.
type StaticBackend struct {
	name string

	mu        sync.Mutex
	available bool
	health    float64
	err       error
	delay     time.Duration
}

// NewStaticBackend returns an available backend with full health.
func NewStaticBackend(name string) *StaticBackend {
	return &StaticBackend{name: name, available: true, health: 1.0}
}

func (b *StaticBackend) Name() string { return b.name }

func (b *StaticBackend) Available() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.available
}

// SetAvailable flips the backend in or out of rotation.
func (b *StaticBackend) SetAvailable(v bool) {
	b.mu.Lock()
	b.available = v
	b.mu.Unlock()
}

// SetHealth sets the reported health score, clamped to [0, 1].
func (b *StaticBackend) SetHealth(score float64) {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	b.mu.Lock()
	b.health = score
	b.mu.Unlock()
}

// SetError makes every Generate call fail with err until cleared with nil.
func (b *StaticBackend) SetError(err error) {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
}

// SetDelay adds artificial latency to Generate calls.
func (b *StaticBackend) SetDelay(d time.Duration) {
	b.mu.Lock()
	b.delay = d
	b.mu.Unlock()
}

func (b *StaticBackend) Generate(ctx context.Context, prompt string) (string, error) {
	b.mu.Lock()
	err := b.err
	delay := b.delay
	b.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("[%s] %s", b.name, prompt), nil
}

func (b *StaticBackend) Health(ctx context.Context) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.available {
		return 0
	}
	return b.health
}
