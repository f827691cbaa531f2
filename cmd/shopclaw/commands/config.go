package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/jholhewres/shopclaw/pkg/shopclaw/copilot"
	"github.com/spf13/cobra"
)

// resolveConfig loads the config from --config, then the standard
// locations, then the environment alone.
func resolveConfig(cmd *cobra.Command) (*copilot.Config, error) {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")

	// Try explicit path first.
	if configPath != "" {
		cfg, err := copilot.LoadConfigFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}

	// Auto-discover config file.
	if found := copilot.FindConfigFile(); found != "" {
		cfg, err := copilot.LoadConfigFromFile(found)
		if err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", found, err)
		}
		slog.Debug("config loaded", "path", found)
		return cfg, nil
	}

	return copilot.LoadConfigFromEnv(), nil
}

// loadValidConfig resolves and validates the config.
func loadValidConfig(cmd *cobra.Command) (*copilot.Config, error) {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger from the logging section. Debug is
// forced by --verbose.
func newLogger(cmd *cobra.Command, cfg copilot.LoggingConfig, out io.Writer) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")

	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}

	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(out, opts))
	}
	return slog.New(slog.NewJSONHandler(out, opts))
}

// quietLogging keeps interactive commands readable unless --verbose is set.
func quietLogging(cmd *cobra.Command, cfg copilot.LoggingConfig) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	if !verbose {
		cfg.Level = "warn"
	}
	cfg.Format = "text"
	return newLogger(cmd, cfg, os.Stderr)
}
