package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/archivist/pkg/archivist/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage archivist configuration settings.

Configuration is loaded from:
  1. $XDG_CONFIG_HOME/archivist/config.yaml (if set)
  2. ~/.config/archivist/config.yaml

Environment variables can override config file settings using the ARCHIVIST_ prefix:
  ARCHIVIST_DEFAULT_FORMAT=7z
  ARCHIVIST_COMPRESSION_LEVEL=9
  ARCHIVIST_EXTRACT_DEFAULT_DESTINATION=~/Downloads`,
	PersistentPreRunE: loadConfigLenient,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration from all sources.`,
	RunE:  runConfigShow,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file",
	Long: `Open the configuration file in your default editor.

The editor is determined by:
  1. $VISUAL environment variable
  2. $EDITOR environment variable
  3. Falls back to 'vi'

If the config file doesn't exist, a default one will be created first.`,
	RunE: runConfigEdit,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long:  `Create a commented default configuration file if one doesn't exist.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// envOverrides lists the environment variables that map onto config keys.
var envOverrides = []string{
	"ARCHIVIST_DEFAULT_FORMAT",
	"ARCHIVIST_OUTPUT",
	"ARCHIVIST_COMPRESSION_LEVEL",
	"ARCHIVIST_COMPRESSION_ZIP_METHOD",
	"ARCHIVIST_EXTRACT_DEFAULT_DESTINATION",
	"ARCHIVIST_MAX_PASSWORD_ATTEMPTS",
	"ARCHIVIST_LOGGING_LEVEL",
	"ARCHIVIST_LOGGING_PATH",
}

// loadConfigLenient replaces the root hook for the config commands so that
// a broken config file can still be shown and edited.
func loadConfigLenient(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		printError("Failed to load configuration: %v", err)
		cfg = defaultConfig()
	}
	appConfig = cfg
	return nil
}

// defaultConfig returns the built-in defaults.
func defaultConfig() *config.Config {
	v := viper.New()
	config.SetDefaults(v)
	var cfg config.Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	writeConfig(cmd.OutOrStdout(), appConfig)
	return nil
}

// writeConfig prints cfg in the layout of the config file.
func writeConfig(w io.Writer, cfg *config.Config) {
	if cfg.File != "" {
		fmt.Fprintf(w, "Config file: %s\n\n", cfg.File)
	} else {
		fmt.Fprintf(w, "Config file: (using defaults, no file found)\n\n")
	}

	fmt.Fprintln(w, "Current Configuration:")
	fmt.Fprintln(w, "----------------------")
	fmt.Fprintf(w, "default_format:                %s\n", cfg.DefaultFormat)
	fmt.Fprintf(w, "output:                        %s\n", cfg.Output)
	fmt.Fprintf(w, "compression.level:             %d\n", cfg.Compression.Level)
	fmt.Fprintf(w, "compression.zip_method:        %s\n", cfg.Compression.ZipMethod)
	fmt.Fprintf(w, "extract.default_destination:   %s\n", cfg.Extract.DefaultDestination)
	fmt.Fprintf(w, "max_password_attempts:         %d\n", cfg.MaxPasswordAttempts)
	fmt.Fprintf(w, "logging.level:                 %s\n", cfg.Logging.Level)
	fmt.Fprintf(w, "logging.path:                  %s\n", logPath(cfg))
	fmt.Fprintf(w, "logging.rotation.max_size:     %s\n", cfg.Logging.Rotation.MaxSize)
	fmt.Fprintf(w, "logging.rotation.max_age:      %d days\n", cfg.Logging.Rotation.MaxAge)
	fmt.Fprintf(w, "logging.rotation.max_backups:  %d\n", cfg.Logging.Rotation.MaxBackups)

	components := make([]string, 0, len(cfg.Logging.Components))
	for c := range cfg.Logging.Components {
		components = append(components, c)
	}
	sort.Strings(components)
	for _, c := range components {
		fmt.Fprintf(w, "logging.components.%-10s %s\n", c+":", cfg.Logging.Components[c])
	}

	fmt.Fprintln(w, "\nEnvironment Overrides:")
	fmt.Fprintln(w, "----------------------")
	overridden := false
	for _, name := range envOverrides {
		if val := os.Getenv(name); val != "" {
			fmt.Fprintf(w, "%s=%s\n", name, val)
			overridden = true
		}
	}
	if !overridden {
		fmt.Fprintln(w, "(none)")
	}
}

func runConfigEdit(_ *cobra.Command, _ []string) error {
	path, _, err := config.WriteDefault()
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}
	printVerbose("Opening %s with %s", path, editor)

	editorCmd := exec.Command(editor, path)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr
	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("editor command failed: %w", err)
	}
	return nil
}

func runConfigInit(_ *cobra.Command, _ []string) error {
	path, created, err := config.WriteDefault()
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if !created {
		printInfo("Config file already exists: %s", path)
		printInfo("Use 'archivist config edit' to modify it.")
		return nil
	}
	printInfo("Created default config file: %s", path)
	return nil
}

func runConfigPath(cmd *cobra.Command, _ []string) error {
	path := viper.ConfigFileUsed()
	if path == "" {
		var err error
		if path, err = config.ConfigPath(); err != nil {
			return err
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		printVerbose("File does not exist (will use defaults)")
	}
	return nil
}
