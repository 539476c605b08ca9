package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/jamesainslie/archivist/pkg/archivist/config"
	"github.com/jamesainslie/archivist/pkg/archivist/engine"
	"github.com/jamesainslie/archivist/pkg/archivist/logging"
)

var (
	cfgFile string

	// configErr holds a config file read failure other than "not found",
	// reported once logging is up.
	configErr error

	rootCmd = &cobra.Command{
		Use:   "archivist",
		Short: "Create, list and extract ZIP, 7z, TAR and RAR archives",
		Long: `Archivist lists, extracts and creates archives.

ZIP, 7z and TAR (plain, gz, bz2, xz, zst, lz4) can be read and written;
RAR can be listed and extracted. Encrypted ZIP and 7z archives prompt for a
password when one is needed.

Examples:
  archivist list backup.zip              # Show archive contents
  archivist extract photos.7z ~/photos   # Extract everything
  archivist extract src.tar.gz -m docs/  # Extract one directory
  archivist create out.zip dir file.txt  # Create a ZIP archive
  archivist create -p secret out.7z dir  # Create an encrypted 7z archive
  archivist browse release.rar           # Pick members interactively`,
		SilenceUsage:       true,
		PersistentPreRunE:  initializeLogging,
		PersistentPostRunE: closeLogging,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/archivist/config.yaml)")
	rootCmd.PersistentFlags().BoolP("no-interactive", "n", false, "disable TUI, print plain progress")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output")
	rootCmd.PersistentFlags().Int("max-password-attempts", 0, "password prompts per operation (0=unlimited)")

	_ = viper.BindPFlag("no_interactive", rootCmd.PersistentFlags().Lookup("no-interactive"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("max_password_attempts", rootCmd.PersistentFlags().Lookup("max-password-attempts"))
}

// initConfig reads in config file and environment variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")

		if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
			viper.AddConfigPath(filepath.Join(xdgConfigHome, "archivist"))
		}
		if homeDir, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(homeDir, ".config", "archivist"))
		}
	}

	viper.SetEnvPrefix("ARCHIVIST")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	config.SetDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			configErr = err
		}
	}
}

// loadConfig builds the effective configuration from defaults, the config
// file, the environment and bound flags.
func loadConfig() (*config.Config, error) {
	if configErr != nil {
		return nil, fmt.Errorf("failed to read config file: %w", configErr)
	}
	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.File = viper.ConfigFileUsed()

	var err error
	if cfg.Extract.DefaultDestination, err = config.ExpandPath(cfg.Extract.DefaultDestination); err != nil {
		return nil, err
	}
	if cfg.Logging.Path, err = config.ExpandPath(cfg.Logging.Path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// newEngine returns an engine configured from cfg.
func newEngine(cfg *config.Config) *engine.Engine {
	return engine.New(
		engine.WithLevel(cfg.Compression.Level),
		engine.WithZipMethod(cfg.Compression.ZipMethod),
	)
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		logging.Get("cli").Error("command failed", "error", err)
		_ = logging.Close()
	}
	return err
}

func getVerbose() bool {
	return viper.GetBool("verbose")
}

func getQuiet() bool {
	return viper.GetBool("quiet")
}

// isInteractive reports whether the TUI may take over the terminal.
func isInteractive() bool {
	if viper.GetBool("no_interactive") || getQuiet() {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd())) && term.IsTerminal(int(os.Stdin.Fd()))
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...any) {
	if getVerbose() && !getQuiet() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(format string, args ...any) {
	if !getQuiet() {
		fmt.Printf(format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
