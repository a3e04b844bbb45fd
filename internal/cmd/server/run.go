package serverrun

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	cfgpkg "github.com/rzbill/flare/internal/config"
	"github.com/rzbill/flare/internal/runtime"
	httpserver "github.com/rzbill/flare/internal/server/http"
	inferencesvc "github.com/rzbill/flare/internal/services/inference"
	streamingsvc "github.com/rzbill/flare/internal/services/streaming"
	logpkg "github.com/rzbill/flare/pkg/log"
)

type Options struct {
	HTTPAddr   string
	ConfigPath string
	LogLevel   string
	LogFormat  string
}

// resolveConfig layers configuration sources: file (when given), then
// FLARE_* environment variables, then explicit flag overrides.
func resolveConfig(opts Options) (cfgpkg.Config, error) {
	cfg, err := cfgpkg.Load(opts.ConfigPath)
	if err != nil {
		return cfgpkg.Config{}, err
	}
	cfgpkg.FromEnv(&cfg)
	if opts.HTTPAddr != "" {
		cfg.HTTPAddr = opts.HTTPAddr
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	if opts.LogFormat != "" {
		cfg.LogFormat = opts.LogFormat
	}
	if err := cfg.Validate(); err != nil {
		return cfgpkg.Config{}, err
	}
	return cfg, nil
}

// Run starts the delivery services and the HTTP server, then blocks until
// ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	// Be robust to callers that don't pass a signal-aware context
	// or if signal delivery needs to be observed here. We layer a
	// local signal context over the provided one.
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := resolveConfig(opts)
	if err != nil {
		return err
	}

	// Build process-wide logger from the resolved config; defaults: level=info, format=text
	logCfg := &logpkg.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}
	procLogger, err := logpkg.ApplyConfig(logCfg)
	if err != nil {
		// Fallback to a sane default
		lvl := logpkg.InfoLevel
		if l, e := logpkg.ParseLevel(logCfg.Level); e == nil {
			lvl = l
		}
		procLogger = logpkg.NewLogger(logpkg.WithLevel(lvl), logpkg.WithFormatter(&logpkg.TextFormatter{}))
	}

	// Redirect stdlib logs (e.g., net/http) to our logger
	logpkg.RedirectStdLog(procLogger)

	rt, err := runtime.Open(runtime.Options{Config: cfg, Logger: procLogger})
	if err != nil {
		return err
	}
	defer rt.Close()

	procLogger.Info("Starting Flare server",
		logpkg.Str("http", cfg.HTTPAddr),
		logpkg.Str("level", cfg.LogLevel),
		logpkg.Str("format", cfg.LogFormat),
		logpkg.Int("queue_cap", cfg.Streaming.QueueCapacity),
		logpkg.Str("strategies", strings.Join(cfg.Upstream.Strategies, ",")),
	)

	// Delivery engine, shared with the upstream service as its event sink.
	streamingSvc := streamingsvc.NewWithLogger(rt, procLogger.With(logpkg.Component("streaming")))
	if err := streamingSvc.Start(sctx); err != nil {
		return err
	}

	backends := make([]inferencesvc.Backend, 0, len(cfg.Upstream.Strategies))
	for _, name := range cfg.Upstream.Strategies {
		backends = append(backends, inferencesvc.NewStaticBackend(name))
	}
	upstreamSvc, err := inferencesvc.NewWithLogger(rt, backends, streamingSvc, procLogger.With(logpkg.Component("inference")))
	if err != nil {
		_ = streamingSvc.Stop()
		return err
	}
	if err := upstreamSvc.Start(sctx); err != nil {
		_ = streamingSvc.Stop()
		return err
	}

	hsrv := httpserver.New(rt, streamingSvc, upstreamSvc)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hsrv.ListenAndServe(sctx, cfg.HTTPAddr); err != nil && sctx.Err() == nil {
			procLogger.Error("http server failed", logpkg.Err(err))
		}
	}()

	<-sctx.Done()
	// Stop accepting connections before draining the services.
	hsrv.Close()
	wg.Wait()
	_ = upstreamSvc.Stop()
	_ = streamingSvc.Stop()
	return nil
}
