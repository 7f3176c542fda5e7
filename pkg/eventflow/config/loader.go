package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// FromFile loads configuration from a file, auto-detecting format by extension.
// Supported extensions: .yaml, .yml, .json
// Values missing from the file keep their Default() value.
func FromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return FromYAML(data)
	case ".json":
		return FromJSON(data)
	default:
		return Config{}, fmt.Errorf("unsupported config file extension: %s", ext)
	}
}

// FromYAML parses YAML data over the defaults.
func FromYAML(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	return cfg, nil
}

// FromJSON parses JSON data over the defaults.
func FromJSON(data []byte) (Config, error) {
	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse json: %w", err)
	}
	return cfg, nil
}

// envConfig is the subset of Config that environment variables may override.
// Apps are file-only.
type envConfig struct {
	ChannelCapacity int              `env:"EVENTFLOW_CHANNEL_CAPACITY"`
	Metrics         bool             `env:"EVENTFLOW_METRICS"`
	Tracing         bool             `env:"EVENTFLOW_TRACING"`
	Log             LogConfig        `envPrefix:"EVENTFLOW_LOG_"`
	DeadLetter      DeadLetterConfig `envPrefix:"EVENTFLOW_DEADLETTER_"`
}

// ApplyEnv overrides cfg with EVENTFLOW_* environment variables.
// Unset variables leave the current value untouched.
func ApplyEnv(cfg *Config) error {
	e := envConfig{
		ChannelCapacity: cfg.ChannelCapacity,
		Metrics:         cfg.Metrics,
		Tracing:         cfg.Tracing,
		Log:             cfg.Log,
		DeadLetter:      cfg.DeadLetter,
	}
	if err := env.Parse(&e); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	cfg.ChannelCapacity = e.ChannelCapacity
	cfg.Metrics = e.Metrics
	cfg.Tracing = e.Tracing
	cfg.Log = e.Log
	cfg.DeadLetter = e.DeadLetter
	return nil
}

// Load reads path (if non-empty), applies environment overrides and validates.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = FromFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
