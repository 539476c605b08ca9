package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/archivist/pkg/archivist/config"
	"github.com/jamesainslie/archivist/pkg/archivist/logging"
	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

// appConfig is the configuration loaded by initializeLogging.
var appConfig *config.Config

// parseRotationConfig converts the config file's rotation settings,
// falling back to the default size when max_size is empty or invalid.
func parseRotationConfig(rc config.RotationConfig) logging.RotationConfig {
	out := logging.RotationConfig{
		MaxSize:    logging.DefaultRotationConfig().MaxSize,
		MaxAge:     rc.MaxAge,
		MaxBackups: rc.MaxBackups,
	}
	if rc.MaxSize != "" {
		if n, err := types.ParseSize(rc.MaxSize); err == nil && n > 0 {
			out.MaxSize = n
		}
	}
	return out
}

// loggingConfig maps cfg onto logging.Config. Verbose mode lowers the file
// level to debug and mirrors records to stderr.
func loggingConfig(cfg *config.Config, tuiMode bool) logging.Config {
	lc := logging.Config{
		Level:      cfg.Logging.Level,
		Path:       cfg.Logging.Path,
		Rotation:   parseRotationConfig(cfg.Logging.Rotation),
		Components: cfg.Logging.Components,
		TUIMode:    tuiMode,
	}
	if getVerbose() {
		lc.Level = "debug"
		lc.ConsoleLevel = "debug"
	}
	return lc
}

// initializeLogging is the root PersistentPreRunE hook: it loads the
// configuration and starts file logging.
func initializeLogging(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	appConfig = cfg

	if err := logging.Init(loggingConfig(cfg, false)); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	log := logging.Get("cli")
	if cfg.File != "" {
		log.Debug("config loaded", "file", cfg.File)
	}
	printVerbose("Logging to %s", logPath(cfg))
	return nil
}

// initTUILogging re-initializes logging with the console disabled while a
// TUI owns the terminal.
func initTUILogging() error {
	if appConfig == nil {
		return nil
	}
	return logging.Init(loggingConfig(appConfig, true))
}

func closeLogging(_ *cobra.Command, _ []string) error {
	return logging.Close()
}

func logPath(cfg *config.Config) string {
	if cfg.Logging.Path != "" {
		return cfg.Logging.Path
	}
	return config.DefaultLogPath()
}
