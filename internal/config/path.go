package config

import (
	"os"
	"path/filepath"
)

// DefaultConfigPath returns the default config file location based on the
// host OS. It prefers standard locations when available and falls back to a
// dotdir in the user's home directory. The file itself may not exist yet;
// callers decide whether a missing file is an error.
func DefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		return "./flare.yaml"
	}

	// XDG (Linux) override
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "flare", "config.yaml")
	}

	// Linux/Unix convention: ~/.config
	if isDir(filepath.Join(homeDir, ".config")) {
		return filepath.Join(homeDir, ".config", "flare", "config.yaml")
	}

	// macOS: ~/Library/Application Support/Flare
	if isDir(filepath.Join(homeDir, "Library")) {
		return filepath.Join(homeDir, "Library", "Application Support", "Flare", "config.yaml")
	}

	// Windows: %USERPROFILE%/AppData/Local/Flare
	if isDir(filepath.Join(homeDir, "AppData")) {
		return filepath.Join(homeDir, "AppData", "Local", "Flare", "config.yaml")
	}

	// Fallback: ~/.flare
	return filepath.Join(homeDir, ".flare", "config.yaml")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
