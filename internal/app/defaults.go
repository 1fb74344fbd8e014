package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"cultivate/internal/config"
)

// Environment variables read at startup.
const (
	EnvConfigPath = "CULTIVATE_CONFIG_PATH"
	EnvHome       = "CULTIVATE_HOME"
	EnvProduction = "PROD"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - CULTIVATE_CONFIG_PATH: config file location (default: ~/.config/cultivate.toml)
//   - CULTIVATE_HOME: base directory for cultivate data (default: ~/.local/share/cultivate)
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

// ApplyEnv overrides config values from the environment. PROD takes precedence
// over is_production when it parses as a boolean.
func ApplyEnv(cfg *config.Config, getenv func(string) string) {
	if v := getenv(EnvProduction); v != "" {
		if prod, err := strconv.ParseBool(v); err == nil {
			cfg.IsProduction = prod
		}
	}
}

func getConfigPath() (string, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "cultivate.toml"), nil
}

func getBaseDir() (string, error) {
	if path := os.Getenv(EnvHome); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "cultivate"), nil
}
