// Package config provides loading and environment overlay for Flare
// configuration. It exposes a Default() baseline, file loading in YAML or
// JSON, and FLARE_* environment variable overrides.
//
// Example:
//
//	cfg := config.Default()
//	// Optionally load from file and overlay env vars
//	if fileCfg, err := config.Load(config.DefaultConfigPath()); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
//	rt, _ := runtime.Open(runtime.Options{Config: cfg})
//	defer rt.Close()
package config
