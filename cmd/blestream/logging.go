package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blestream/pkg/config"
)

// loadConfig reads --config (defaults when absent) and applies --log-level on top.
// Returns the validated config and a logger writing to stderr.
func loadConfig(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}

	// --log-level takes precedence over the file
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	} else if path == "" {
		// No file and no flag: keep command output free of log lines
		cfg.LogLevel = "error"
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger := cfg.NewLogger()
	logger.SetOutput(os.Stderr)
	return cfg, logger, nil
}

// outputFormat resolves --format against the configured default
func outputFormat(flag string, cfg *config.Config) (string, error) {
	format := flag
	if format == "" {
		format = cfg.OutputFormat
	}
	switch format {
	case formatText, formatJSON:
		return format, nil
	default:
		return "", fmt.Errorf("invalid format %q: use text or json", format)
	}
}
