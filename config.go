package ecsdb

import (
	"errors"
	"fmt"
	"io"

	"github.com/oliverbestmann/ecsdb/spoke"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	// MaxResolveAttempts is the number of reads a query may spend waiting for
	// unknown labels before it fails.
	MaxResolveAttempts int `yaml:"max_resolve_attempts"`

	// WarnDuplicates logs a warning when a single valued component is added
	// to an entity that already has it.
	WarnDuplicates bool `yaml:"warn_duplicates"`

	Log LogConfig `yaml:"log"`
}

type LogConfig struct {
	// Level is one of debug, info, warn or error. Logging is disabled if empty.
	Level string `yaml:"level"`

	// Encoding is either json or console.
	Encoding string `yaml:"encoding"`
}

func DefaultConfig() Config {
	return Config{
		MaxResolveAttempts: spoke.DefaultMaxResolveAttempts,
		WarnDuplicates:     true,
		Log: LogConfig{
			Encoding: "json",
		},
	}
}

// LoadConfig reads a yaml document. Fields not present keep their default value.
func LoadConfig(r io.Reader) (Config, error) {
	config := DefaultConfig()

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	if err := decoder.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

func (c Config) Validate() error {
	if c.MaxResolveAttempts <= 0 {
		return fmt.Errorf("%w: max_resolve_attempts must be positive, got %d", ErrInvalidConfig, c.MaxResolveAttempts)
	}

	return c.Log.Validate()
}

func (c LogConfig) Validate() error {
	if c.Level != "" {
		if _, err := zapcore.ParseLevel(c.Level); err != nil {
			return fmt.Errorf("%w: log level: %w", ErrInvalidConfig, err)
		}
	}

	switch c.Encoding {
	case "", "json", "console":
		return nil
	default:
		return fmt.Errorf("%w: unknown log encoding %q", ErrInvalidConfig, c.Encoding)
	}
}

// Build creates a logger writing to stderr. An empty level gives a no-op logger.
func (c LogConfig) Build() (*zap.Logger, error) {
	if c.Level == "" {
		return zap.NewNop(), nil
	}

	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: log level: %w", ErrInvalidConfig, err)
	}

	encoding := c.Encoding
	if encoding == "" {
		encoding = "json"
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(level),
		Development: false,
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding:         encoding,
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
		DisableCaller:    true,
	}

	return config.Build()
}
