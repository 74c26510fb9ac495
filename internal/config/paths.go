package config

import (
	"os"
	"path/filepath"
)

// DefaultConfigDir returns $XDG_CONFIG_HOME/promctl, falling back to the
// platform's user config directory.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "promctl")
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "promctl")
	}
	return filepath.Join(os.TempDir(), "promctl", "config")
}

// DefaultConfigPath resolves the config file location: $PROMCTL_CONFIG, else
// promctl.lua inside DefaultConfigDir.
func DefaultConfigPath() string {
	if p := os.Getenv("PROMCTL_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(DefaultConfigDir(), ConfigFileName)
}

// DefaultBaseDir is where Prometheus binaries are cached.
func DefaultBaseDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "promctl", "binaries")
	}
	return filepath.Join(os.TempDir(), "promctl", "binaries")
}
