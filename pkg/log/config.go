package log

import (
	"fmt"
	"strings"
)

// Config declares a logger in data form, suitable for embedding in service
// configuration files or building from environment variables.
type Config struct {
	// Level is the minimum level: debug|info|warn|error|fatal. Default info.
	Level string `json:"level" yaml:"level"`
	// Format selects the formatter: text|json. Default text.
	Format string `json:"format" yaml:"format"`
	// Output selects the sink: console|file|null. Default console.
	Output string `json:"output" yaml:"output"`
	// FilePath is required when Output is "file".
	FilePath string `json:"file_path" yaml:"file_path"`
}

// ParseLevel converts a level name to a Level. Matching is case-insensitive;
// "warning" is accepted as an alias for "warn".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("log: unknown level %q", s)
	}
}

// ApplyConfig builds a Logger from a declarative Config. Zero-value fields
// fall back to defaults (info, text, console).
func ApplyConfig(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	level := InfoLevel
	if cfg.Level != "" {
		parsed, err := ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		level = parsed
	}

	var formatter Formatter
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		formatter = &TextFormatter{}
	case "json":
		formatter = &JSONFormatter{}
	default:
		return nil, fmt.Errorf("log: unknown format %q", cfg.Format)
	}

	var output Output
	switch strings.ToLower(cfg.Output) {
	case "", "console":
		output = NewConsoleOutput()
	case "file":
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("log: output \"file\" requires file_path")
		}
		fo, err := NewFileOutput(cfg.FilePath)
		if err != nil {
			return nil, err
		}
		output = fo
	case "null":
		output = NullOutput{}
	default:
		return nil, fmt.Errorf("log: unknown output %q", cfg.Output)
	}

	return NewLogger(WithLevel(level), WithFormatter(formatter), WithOutput(output)), nil
}
