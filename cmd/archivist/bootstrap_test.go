package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jamesainslie/archivist/pkg/archivist/config"
	"github.com/jamesainslie/archivist/pkg/archivist/logging"
)

func TestParseRotationConfig(t *testing.T) {
	tests := []struct {
		name     string
		input    config.RotationConfig
		expected logging.RotationConfig
	}{
		{
			name:     "default values",
			input:    config.RotationConfig{MaxSize: "10MB", MaxAge: 30, MaxBackups: 5},
			expected: logging.RotationConfig{MaxSize: 10 * 1024 * 1024, MaxAge: 30, MaxBackups: 5},
		},
		{
			name:     "custom size in gigabytes",
			input:    config.RotationConfig{MaxSize: "1G", MaxAge: 7, MaxBackups: 3},
			expected: logging.RotationConfig{MaxSize: 1024 * 1024 * 1024, MaxAge: 7, MaxBackups: 3},
		},
		{
			name:     "empty max_size uses default",
			input:    config.RotationConfig{MaxSize: "", MaxAge: 14, MaxBackups: 2},
			expected: logging.RotationConfig{MaxSize: 10 * 1024 * 1024, MaxAge: 14, MaxBackups: 2},
		},
		{
			name:     "invalid max_size uses default",
			input:    config.RotationConfig{MaxSize: "invalid", MaxAge: 21, MaxBackups: 4},
			expected: logging.RotationConfig{MaxSize: 10 * 1024 * 1024, MaxAge: 21, MaxBackups: 4},
		},
		{
			name:     "zero max_size uses default",
			input:    config.RotationConfig{MaxSize: "0"},
			expected: logging.RotationConfig{MaxSize: 10 * 1024 * 1024},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseRotationConfig(tt.input)
			if result != tt.expected {
				t.Errorf("parseRotationConfig() = %+v, want %+v", result, tt.expected)
			}
		})
	}
}

func TestInitializeLoggingWritesLogFile(t *testing.T) {
	home := t.TempDir()
	logFile := filepath.Join(home, "logs", "archivist.log")
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("ARCHIVIST_LOGGING_PATH", logFile)

	initConfig()
	if err := initializeLogging(nil, nil); err != nil {
		t.Fatalf("initializeLogging() returned error: %v", err)
	}
	t.Cleanup(func() { _ = logging.Close() })

	if appConfig == nil {
		t.Fatal("appConfig not set")
	}
	if appConfig.Logging.Path != logFile {
		t.Errorf("Logging.Path = %q, want %q", appConfig.Logging.Path, logFile)
	}

	logging.Get("cli").Info("hello from test")
	if err := logging.Close(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if len(data) == 0 {
		t.Error("log file is empty")
	}
}

func TestInitializeLoggingRejectsInvalidConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("ARCHIVIST_COMPRESSION_LEVEL", "42")

	initConfig()
	if err := initializeLogging(nil, nil); err == nil {
		_ = logging.Close()
		t.Error("initializeLogging() error = nil for an out-of-range level")
	}
}

func TestLoggingConfigTUIMode(t *testing.T) {
	cfg := defaultConfig()
	lc := loggingConfig(cfg, true)
	if !lc.TUIMode {
		t.Error("TUIMode not set")
	}
	if lc.Rotation.MaxSize != 10*1024*1024 {
		t.Errorf("Rotation.MaxSize = %d", lc.Rotation.MaxSize)
	}
	if lc.Components["engine"] != "info" {
		t.Errorf("Components = %v", lc.Components)
	}
}
