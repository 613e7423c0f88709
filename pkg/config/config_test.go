package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blestream/pkg/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 64, cfg.SubscriberBuffer)
	assert.Equal(t, 256, cfg.JournalSize)
	assert.Equal(t, "synthetic-error", cfg.MissingValuePolicy)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, "text", cfg.OutputFormat)
	assert.NoError(t, cfg.Validate(), "defaults MUST be valid")
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		want     logrus.Level
	}{
		{name: "creates logger with debug level", logLevel: "debug", want: logrus.DebugLevel},
		{name: "creates logger with info level", logLevel: "info", want: logrus.InfoLevel},
		{name: "creates logger with warn level", logLevel: "warn", want: logrus.WarnLevel},
		{name: "creates logger with error level", logLevel: "error", want: logrus.ErrorLevel},
		{name: "level is case insensitive", logLevel: "DEBUG", want: logrus.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.want, logger.GetLevel())

			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{name: "json format is valid", mutate: func(c *Config) { c.OutputFormat = "json" }},
		{name: "fail-fast policy is valid", mutate: func(c *Config) { c.MissingValuePolicy = "fail-fast" }},
		{name: "disabled journal is valid", mutate: func(c *Config) { c.JournalSize = 0 }},
		{name: "unknown format", mutate: func(c *Config) { c.OutputFormat = "xml" }, errMsg: "invalid output format"},
		{name: "unknown log level", mutate: func(c *Config) { c.LogLevel = "trace-all" }, errMsg: "invalid log level"},
		{name: "zero subscriber buffer", mutate: func(c *Config) { c.SubscriberBuffer = 0 }, errMsg: "subscriber_buffer"},
		{name: "oversized journal", mutate: func(c *Config) { c.JournalSize = int(stream.MaxJournalSize) + 1 }, errMsg: "journal_size"},
		{name: "unknown policy", mutate: func(c *Config) { c.MissingValuePolicy = "ignore" }, errMsg: "missing value policy"},
		{name: "zero timeout", mutate: func(c *Config) { c.ConnectTimeout = 0 }, errMsg: "connect_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("file overrides only listed keys", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "blestream.yaml")
		require.NoError(t, os.WriteFile(path, []byte(
			"log_level: debug\nsubscriber_buffer: 8\nmissing_value_policy: fail-fast\nconnect_timeout: 3s\n"), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, 8, cfg.SubscriberBuffer)
		assert.Equal(t, "fail-fast", cfg.MissingValuePolicy)
		assert.Equal(t, 3*time.Second, cfg.ConnectTimeout)
		assert.Equal(t, 256, cfg.JournalSize, "unlisted key MUST keep its default")
		assert.Equal(t, "text", cfg.OutputFormat, "unlisted key MUST keep its default")
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("output_format: csv\n"), 0o600))

		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid output format")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestConfig_AdapterOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MissingValuePolicy = "fail-fast"
	cfg.SubscriberBuffer = 16
	logger := cfg.NewLogger()

	opts := cfg.AdapterOptions(logger)

	assert.Equal(t, 16, opts.SubscriberBuffer)
	assert.Equal(t, 256, opts.JournalSize)
	assert.Equal(t, stream.FailFast, opts.MissingValue)
	assert.Same(t, logger, opts.Logger)
}

func BenchmarkDefaultConfig(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = DefaultConfig()
	}
}

func BenchmarkConfig_NewLogger(b *testing.B) {
	cfg := DefaultConfig()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = cfg.NewLogger()
	}
}
