package logging

import (
	"log/slog"
	"testing"

	"github.com/nerrad567/fanlink/internal/infrastructure/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewDoesNotPanic(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LoggingConfig
	}{
		{"json stdout", config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}},
		{"text stderr", config.LoggingConfig{Level: "debug", Format: "text", Output: "stderr"}},
		{"unknown values", config.LoggingConfig{Level: "x", Format: "x", Output: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.cfg, "test")
			if logger == nil {
				t.Fatal("New() returned nil")
			}
			// Must be usable without panicking.
			logger.Info("test message", "key", "value")
		})
	}
}

func TestWithReturnsNewLogger(t *testing.T) {
	base := Default()
	child := base.With("component", "test")

	if child == nil {
		t.Fatal("With() returned nil")
	}
	if child == base {
		t.Error("With() returned the same logger instance")
	}
	child.Info("child logger works")
}
