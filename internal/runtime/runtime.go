package runtime

import (
	"context"
	"errors"

	cfgpkg "github.com/rzbill/flare/internal/config"
	"github.com/rzbill/flare/internal/eventring"
	"github.com/rzbill/flare/pkg/id"
	"github.com/rzbill/flare/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	Logger log.Logger
}

// Runtime wires config, logging, ID generation, and the shared event ring
// for a single-node instance.
type Runtime struct {
	config cfgpkg.Config
	logger log.Logger
	ids    *id.Generator
	ring   *eventring.Ring
}

// Open validates the configuration and returns a Runtime.
func Open(opts Options) (*Runtime, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewLogger()
	}
	rt := &Runtime{
		config: cfg,
		logger: logger,
		ids:    id.NewGenerator(),
		ring:   eventring.New(cfg.Streaming.RingCapacity),
	}
	return rt, nil
}

// Close releases runtime resources. The ring holds no external handles, so
// closing is currently a no-op kept for lifecycle symmetry.
func (r *Runtime) Close() error {
	return nil
}

// CheckHealth performs a simple health check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.ring == nil {
		return errors.New("ring not open")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// NextID returns a fresh sortable event ID.
func (r *Runtime) NextID() id.ID { return r.ids.Next() }

// Ring exposes the shared recent-event ring.
func (r *Runtime) Ring() *eventring.Ring { return r.ring }

// Logger returns the runtime logger.
func (r *Runtime) Logger() log.Logger { return r.logger }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
