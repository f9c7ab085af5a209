package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - OTS_CONFIG_PATH: config file location (default: ~/.config/ots.toml)
//   - OTS_HOME: base directory for ots data (default: ~/.local/share/ots)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// getConfigPath returns the config file path, checking OTS_CONFIG_PATH env var
// first, then falling back to the default ~/.config/ots.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("OTS_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "ots.toml"), nil
}

// getBaseDir returns the base directory for ots data, checking OTS_HOME env
// var first, then falling back to the XDG default ~/.local/share/ots.
func getBaseDir() (string, error) {
	if path := os.Getenv("OTS_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "ots"), nil
}
