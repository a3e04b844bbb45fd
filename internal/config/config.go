package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	HTTPAddr  string          `json:"httpAddr" yaml:"httpAddr"`
	LogLevel  string          `json:"logLevel" yaml:"logLevel"`
	LogFormat string          `json:"logFormat" yaml:"logFormat"`
	Streaming StreamingConfig `json:"streaming" yaml:"streaming"`
	Upstream  UpstreamConfig  `json:"upstream" yaml:"upstream"`
}

// StreamingConfig tunes the delivery engine.
type StreamingConfig struct {
	// QueueCapacity bounds the ingestion queue; full queues backpressure
	// producers.
	QueueCapacity int `json:"queueCapacity" yaml:"queueCapacity"`
	// BatchMaxEvents force-flushes a pending batch at this size.
	BatchMaxEvents int `json:"batchMaxEvents" yaml:"batchMaxEvents"`
	// CompressMinBytes is the payload size below which compression is
	// never attempted.
	CompressMinBytes int `json:"compressMinBytes" yaml:"compressMinBytes"`
	// CompressMinSavings is the fraction a compressed payload must shave
	// off the raw size to be kept (0.2 = at least 20% smaller).
	CompressMinSavings float64 `json:"compressMinSavings" yaml:"compressMinSavings"`
	// RingCapacity bounds the recent-event index.
	RingCapacity int `json:"ringCapacity" yaml:"ringCapacity"`
	// ReconnectAttempts bounds session-restore retries.
	ReconnectAttempts int `json:"reconnectAttempts" yaml:"reconnectAttempts"`
	// ReconnectBackoffMs paces session-restore retries.
	ReconnectBackoffMs int64 `json:"reconnectBackoffMs" yaml:"reconnectBackoffMs"`
	// ReconnectGraceMs is how long disconnected client state is retained.
	ReconnectGraceMs int64 `json:"reconnectGraceMs" yaml:"reconnectGraceMs"`
}

// UpstreamConfig tunes the breaker and strategy selection guarding the
// inference backend.
type UpstreamConfig struct {
	FailureThreshold  int      `json:"failureThreshold" yaml:"failureThreshold"`
	RecoveryTimeoutMs int64    `json:"recoveryTimeoutMs" yaml:"recoveryTimeoutMs"`
	HealthIntervalMs  int64    `json:"healthIntervalMs" yaml:"healthIntervalMs"`
	FailoverBelow     float64  `json:"failoverBelow" yaml:"failoverBelow"`
	RecoverAbove      float64  `json:"recoverAbove" yaml:"recoverAbove"`
	Strategies        []string `json:"strategies" yaml:"strategies"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		HTTPAddr:  ":8080",
		LogLevel:  "info",
		LogFormat: "text",
		Streaming: StreamingConfig{
			QueueCapacity:      1024,
			BatchMaxEvents:     20,
			CompressMinBytes:   1024,
			CompressMinSavings: 0.2,
			RingCapacity:       1024,
			ReconnectAttempts:  3,
			ReconnectBackoffMs: 250,
			ReconnectGraceMs:   5 * 60 * 1000,
		},
		Upstream: UpstreamConfig{
			FailureThreshold:  3,
			RecoveryTimeoutMs: 30_000,
			HealthIntervalMs:  10_000,
			FailoverBelow:     0.5,
			RecoverAbove:      0.8,
			Strategies:        []string{"primary", "secondary", "safe-mode"},
		},
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If path
// is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the services cannot run with.
func (c Config) Validate() error {
	if c.Streaming.QueueCapacity <= 0 {
		return fmt.Errorf("config: streaming.queueCapacity must be > 0")
	}
	if c.Streaming.BatchMaxEvents <= 0 {
		return fmt.Errorf("config: streaming.batchMaxEvents must be > 0")
	}
	if c.Streaming.CompressMinSavings < 0 || c.Streaming.CompressMinSavings >= 1 {
		return fmt.Errorf("config: streaming.compressMinSavings must be in [0,1)")
	}
	if c.Upstream.FailureThreshold <= 0 {
		return fmt.Errorf("config: upstream.failureThreshold must be > 0")
	}
	if c.Upstream.FailoverBelow >= c.Upstream.RecoverAbove {
		return fmt.Errorf("config: upstream.failoverBelow must be below recoverAbove")
	}
	if len(c.Upstream.Strategies) == 0 {
		return fmt.Errorf("config: upstream.strategies must not be empty")
	}
	return nil
}
