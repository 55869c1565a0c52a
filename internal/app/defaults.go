package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Defaults holds the locations confbk uses when nothing else is configured.
type Defaults struct {
	ConfigPath string
	BaseDir    string
}

// GetDefaults returns default locations, checking environment variables first.
// Environment variables:
//   - CONFBK_CONFIG_PATH: config file location (default: ~/.config/confbk.toml)
//   - CONFBK_HOME: base directory for confbk data (default: ~/.local/share/confbk)
func GetDefaults() (*Defaults, error) {
	configPath := os.Getenv("CONFBK_CONFIG_PATH")
	baseDir := os.Getenv("CONFBK_HOME")
	if configPath != "" && baseDir != "" {
		return &Defaults{ConfigPath: configPath, BaseDir: baseDir}, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine home directory: %w", err)
	}
	if configPath == "" {
		configPath = filepath.Join(homeDir, ".config", "confbk.toml")
	}
	if baseDir == "" {
		baseDir = filepath.Join(homeDir, ".local", "share", "confbk")
	}
	return &Defaults{ConfigPath: configPath, BaseDir: baseDir}, nil
}
