package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/jamesainslie/archivist/pkg/archivist/types"
)

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// CompressionConfig configures archive creation.
type CompressionConfig struct {
	Level     int    `mapstructure:"level"`
	ZipMethod string `mapstructure:"zip_method"`
}

// ExtractConfig configures extraction.
type ExtractConfig struct {
	DefaultDestination string `mapstructure:"default_destination"`
}

// Config represents the application configuration.
type Config struct {
	DefaultFormat string            `mapstructure:"default_format"`
	Output        string            `mapstructure:"output"`
	Compression   CompressionConfig `mapstructure:"compression"`
	Extract       ExtractConfig     `mapstructure:"extract"`

	// MaxPasswordAttempts bounds password prompts per operation; 0 means
	// unlimited.
	MaxPasswordAttempts int `mapstructure:"max_password_attempts"`

	Logging LoggingConfig `mapstructure:"logging"`

	// File is the config file that was read, empty when defaults only.
	File string `mapstructure:"-"`
}

// ErrInvalidConfig indicates a configuration value out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// Load loads configuration from file and environment variables.
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/archivist/config.yaml
//   - $HOME/.config/archivist/config.yaml
//
// Environment variables are prefixed with ARCHIVIST_ (e.g.
// ARCHIVIST_COMPRESSION_LEVEL).
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		v.AddConfigPath(filepath.Join(xdgConfigHome, "archivist"))
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}
	v.AddConfigPath(filepath.Join(homeDir, ".config", "archivist"))

	v.SetEnvPrefix("ARCHIVIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if cfg.Extract.DefaultDestination, err = ExpandPath(cfg.Extract.DefaultDestination); err != nil {
		return nil, err
	}
	if cfg.Logging.Path, err = ExpandPath(cfg.Logging.Path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("default_format", DefaultFormat)
	v.SetDefault("output", DefaultOutput)
	v.SetDefault("compression.level", DefaultLevel)
	v.SetDefault("compression.zip_method", DefaultZipMethod)
	v.SetDefault("extract.default_destination", DefaultDestination)
	v.SetDefault("max_password_attempts", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "") // empty means DefaultLogPath
	v.SetDefault("logging.rotation.max_size", DefaultLogMaxSize)
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.components", DefaultComponentLevels)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	f, err := types.ParseFormat(c.DefaultFormat)
	if err != nil {
		return fmt.Errorf("%w: default_format: %w", ErrInvalidConfig, err)
	}
	if !f.Writable() {
		return fmt.Errorf("%w: default_format %s cannot be written", ErrInvalidConfig, f)
	}
	if c.Compression.Level < 0 || c.Compression.Level > 9 {
		return fmt.Errorf("%w: compression.level %d outside 0-9", ErrInvalidConfig, c.Compression.Level)
	}
	if c.MaxPasswordAttempts < 0 {
		return fmt.Errorf("%w: max_password_attempts must not be negative", ErrInvalidConfig)
	}
	if _, err := types.ParseSize(c.Logging.Rotation.MaxSize); err != nil {
		return fmt.Errorf("%w: logging.rotation.max_size: %w", ErrInvalidConfig, err)
	}
	return nil
}

// ConfigDir returns the configuration directory.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "archivist"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "archivist"), nil
}

// ConfigPath returns the path of the config file that WriteDefault
// creates.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return nil
}

// WriteDefault writes a commented default config file and returns its
// path. An existing file is left alone and created is false.
func WriteDefault() (path string, created bool, err error) {
	if err := EnsureConfigDir(); err != nil {
		return "", false, err
	}
	path, err = ConfigPath()
	if err != nil {
		return "", false, err
	}

	if _, err := os.Stat(path); err == nil {
		return path, false, nil
	} else if !os.IsNotExist(err) {
		return "", false, fmt.Errorf("failed to check config file: %w", err)
	}

	defaultConfig := fmt.Sprintf(`# archivist configuration

# Format used by "create" when the destination has no known extension:
# zip, 7z or tar
default_format: %s

# Listing output: pretty, plain, json, jsonl, yaml or template
output: %s

compression:
  # 0 (fastest) to 9 (smallest)
  level: %d
  # ZIP method: lzma, deflate or store
  zip_method: %s

extract:
  # Destination used when "extract" is given none
  default_destination: %s

# Password prompts per operation before giving up (0 means unlimited)
max_password_attempts: 0

logging:
  # Log level: debug, info, warn, error
  level: info
  # Log file path (empty means use default: $XDG_STATE_HOME/archivist/archivist.log)
  path: ""
  rotation:
    max_size: %s
    max_age: 30       # days
    max_backups: 5
  # Per-component log levels
  components:
    engine: info
    runner: info
    container: info
    cli: info
    tui: info
`, DefaultFormat, DefaultOutput, DefaultLevel, DefaultZipMethod, DefaultDestination, DefaultLogMaxSize)

	if err := os.WriteFile(path, []byte(defaultConfig), 0o644); err != nil {
		return "", false, fmt.Errorf("failed to write default config: %w", err)
	}
	return path, true, nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, path[1:]), nil
}

// StateDir returns $XDG_STATE_HOME/archivist/ for log files.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "archivist")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(StateDir(), "archivist.log")
}
