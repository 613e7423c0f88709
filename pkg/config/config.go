package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/blestream/pkg/stream"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel           string        `yaml:"log_level" default:"info"`
	SubscriberBuffer   int           `yaml:"subscriber_buffer" default:"64"`
	JournalSize        int           `yaml:"journal_size" default:"256"`
	MissingValuePolicy string        `yaml:"missing_value_policy" default:"synthetic-error"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout" default:"10s"`
	OutputFormat       string        `yaml:"output_format" default:"text"` // text, json
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML config file on top of the defaults. Keys absent from the file keep
// their default values. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field values
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.SubscriberBuffer <= 0 {
		return fmt.Errorf("subscriber_buffer must be positive, got %d", c.SubscriberBuffer)
	}
	if c.JournalSize < 0 || c.JournalSize > int(stream.MaxJournalSize) {
		return fmt.Errorf("journal_size must be between 0 and %d, got %d", stream.MaxJournalSize, c.JournalSize)
	}
	if _, err := stream.ParseMissingValuePolicy(c.MissingValuePolicy); err != nil {
		return err
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect_timeout must be positive, got %s", c.ConnectTimeout)
	}
	switch c.OutputFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid output format: %s (must be text or json)", c.OutputFormat)
	}
	return nil
}

// Level resolves LogLevel (debug|info|warn|error)
func (c *Config) Level() (logrus.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return logrus.DebugLevel, nil
	case "info", "":
		return logrus.InfoLevel, nil
	case "warn", "warning":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.InfoLevel, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, _ := c.Level()
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

// AdapterOptions builds stream.Options from the config. Call Validate first;
// an unparsable policy falls back to the default.
func (c *Config) AdapterOptions(logger *logrus.Logger) stream.Options {
	policy, _ := stream.ParseMissingValuePolicy(c.MissingValuePolicy)
	return stream.Options{
		SubscriberBuffer: c.SubscriberBuffer,
		JournalSize:      c.JournalSize,
		MissingValue:     policy,
		Logger:           logger,
	}
}
