package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/randalmurphal/eventflow/pkg/eventflow/deadletter"
)

// DefaultChannelCapacity is the per-destination buffer size used when none is configured.
const DefaultChannelCapacity = 100

// Dead letter drivers.
const (
	DriverNone   = "none"
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Config is the complete engine configuration.
// Build it with Default, FromFile, FromYAML, or FromJSON and pass it
// explicitly to the bootstrap code; there is no global instance.
type Config struct {
	// ChannelCapacity is the buffer size of every subscriber inbound channel.
	ChannelCapacity int `yaml:"channel_capacity" json:"channel_capacity"`

	// Metrics enables OpenTelemetry metrics.
	Metrics bool `yaml:"metrics" json:"metrics"`

	// Tracing enables OpenTelemetry tracing.
	Tracing bool `yaml:"tracing" json:"tracing"`

	Log        LogConfig        `yaml:"log" json:"log"`
	DeadLetter DeadLetterConfig `yaml:"dead_letter" json:"dead_letter"`

	// Apps lists the apps to build through a registry.
	Apps []AppConfig `yaml:"apps" json:"apps"`
}

// LogConfig configures the slog logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" json:"level" env:"LEVEL"`

	// Format is text or json.
	Format string `yaml:"format" json:"format" env:"FORMAT"`
}

// DeadLetterConfig selects where failure records go.
type DeadLetterConfig struct {
	// Driver is one of none, memory, sqlite.
	Driver string `yaml:"driver" json:"driver" env:"DRIVER"`

	// Path is the SQLite database path.
	Path string `yaml:"path" json:"path" env:"PATH"`

	// MaxSize bounds the memory store.
	MaxSize int `yaml:"max_size" json:"max_size" env:"MAX_SIZE"`
}

// AppConfig declares one app instance.
type AppConfig struct {
	// Name is the runner name, unique within the engine.
	Name string `yaml:"name" json:"name"`

	// Type selects the registered factory.
	Type string `yaml:"type" json:"type"`

	// Settings is passed to the factory.
	Settings Section `yaml:"settings" json:"settings"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		ChannelCapacity: DefaultChannelCapacity,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		DeadLetter: DeadLetterConfig{
			Driver:  DriverMemory,
			MaxSize: deadletter.DefaultMaxSize,
		},
	}
}

// Validate checks the configuration. Multiple errors are joined together.
func (c Config) Validate() error {
	var errs []error

	if c.ChannelCapacity <= 0 {
		errs = append(errs, fmt.Errorf("channel_capacity must be positive, got %d", c.ChannelCapacity))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unsupported log format: %q", c.Log.Format))
	}

	switch c.DeadLetter.Driver {
	case DriverNone, DriverMemory:
	case DriverSQLite:
		if c.DeadLetter.Path == "" {
			errs = append(errs, errors.New("dead_letter.path is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported dead_letter driver: %q", c.DeadLetter.Driver))
	}

	seen := make(map[string]bool, len(c.Apps))
	for i, app := range c.Apps {
		if app.Name == "" {
			errs = append(errs, fmt.Errorf("apps[%d]: name is required", i))
		} else if seen[app.Name] {
			errs = append(errs, fmt.Errorf("apps[%d]: duplicate name %q", i, app.Name))
		}
		seen[app.Name] = true
		if app.Type == "" {
			errs = append(errs, fmt.Errorf("apps[%d]: type is required", i))
		}
	}

	return errors.Join(errs...)
}

// NewLogger builds a slog logger writing to w.
func (c Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(c.Log.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %q", c.Log.Format)
	}
}

// OpenDeadLetterStore opens the configured store.
// Returns a nil store for the none driver.
func (c Config) OpenDeadLetterStore() (deadletter.Store, error) {
	switch c.DeadLetter.Driver {
	case DriverNone:
		return nil, nil
	case DriverMemory, "":
		return deadletter.NewMemoryStore(c.DeadLetter.MaxSize), nil
	case DriverSQLite:
		store, err := deadletter.NewSQLiteStore(c.DeadLetter.Path)
		if err != nil {
			return nil, fmt.Errorf("open dead letter store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported dead_letter driver: %q", c.DeadLetter.Driver)
	}
}

// App returns the configuration of the named app.
func (c Config) App(name string) (AppConfig, bool) {
	for _, app := range c.Apps {
		if app.Name == name {
			return app, true
		}
	}
	return AppConfig{}, false
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("unsupported log level: %q", s)
	}
	return level, nil
}
