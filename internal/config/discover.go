package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultPath returns the XDG-compliant default config path.
func DefaultPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "./odgo.toml"
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "odgo", "config.toml")
}

// Discover finds the config file using the standard search order.
// Search order:
//  1. ODGO_CONFIG environment variable
//  2. ./odgo.toml (current directory)
//  3. $XDG_CONFIG_HOME/odgo/config.toml
//  4. /etc/odgo/config.toml
func Discover() (string, error) {
	if envPath := os.Getenv("ODGO_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return "", fmt.Errorf("ODGO_CONFIG=%s: %w", envPath, err)
		}
		return envPath, nil
	}

	paths := []string{
		"./odgo.toml",
		DefaultPath(),
		"/etc/odgo/config.toml",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("config not found, checked: %s", strings.Join(paths, ", "))
}
