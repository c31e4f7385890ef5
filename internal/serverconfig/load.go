package serverconfig

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
)

// Environment variable names for the override layer above the file (secrets
// have no business sitting in a TOML file checked into a deploy repo).
const (
	EnvListenAddr = "TASKSERVER_LISTEN_ADDR"
	EnvDBPath     = "TASKSERVER_DB_PATH"
)

// Load reads and decodes a TOML config file on top of DefaultConfig, applies
// environment overrides, validates the result, and returns it. Two layers
// only (defaults -> file -> env) since a server has no per-invocation CLI
// flags layered the way the teacher's four-layer drive resolution does.
func Load(path string, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("serverconfig: loading config file", "path", path)

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("serverconfig: reading config file %s: %w", path, err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("serverconfig: parsing config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("serverconfig: validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads path if it exists, otherwise returns DefaultConfig with
// env overrides applied, supporting a zero-config first run.
func LoadOrDefault(path string, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Debug("serverconfig: config file not found, using defaults", "path", path)
		cfg := DefaultConfig()
		applyEnvOverrides(cfg)
		if err := Validate(cfg); err != nil {
			return nil, fmt.Errorf("serverconfig: validation failed: %w", err)
		}
		return cfg, nil
	}
	return Load(path, logger)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvListenAddr); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.Database.Path = v
	}
}
