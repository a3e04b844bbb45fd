package config

import (
	"os"
	"strconv"
	"strings"
)

// FromEnv overlays FLARE_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("FLARE_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("FLARE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FLARE_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("FLARE_QUEUE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Streaming.QueueCapacity = n
		}
	}
	if v := os.Getenv("FLARE_BATCH_MAX_EVENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Streaming.BatchMaxEvents = n
		}
	}
	if v := os.Getenv("FLARE_COMPRESS_MIN_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Streaming.CompressMinBytes = n
		}
	}
	if v := os.Getenv("FLARE_COMPRESS_MIN_SAVINGS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f < 1 {
			cfg.Streaming.CompressMinSavings = f
		}
	}
	if v := os.Getenv("FLARE_RING_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Streaming.RingCapacity = n
		}
	}
	if v := os.Getenv("FLARE_RECONNECT_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Streaming.ReconnectAttempts = n
		}
	}
	if v := os.Getenv("FLARE_RECONNECT_BACKOFF_MS"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms >= 0 {
			cfg.Streaming.ReconnectBackoffMs = ms
		}
	}
	if v := os.Getenv("FLARE_RECONNECT_GRACE_MS"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms > 0 {
			cfg.Streaming.ReconnectGraceMs = ms
		}
	}
	if v := os.Getenv("FLARE_UPSTREAM_FAILURE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Upstream.FailureThreshold = n
		}
	}
	if v := os.Getenv("FLARE_UPSTREAM_RECOVERY_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms > 0 {
			cfg.Upstream.RecoveryTimeoutMs = ms
		}
	}
	if v := os.Getenv("FLARE_UPSTREAM_HEALTH_INTERVAL_MS"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms > 0 {
			cfg.Upstream.HealthIntervalMs = ms
		}
	}
	if v := os.Getenv("FLARE_UPSTREAM_STRATEGIES"); v != "" {
		parts := strings.Split(v, ",")
		cfg.Upstream.Strategies = nil
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cfg.Upstream.Strategies = append(cfg.Upstream.Strategies, p)
			}
		}
	}
}
