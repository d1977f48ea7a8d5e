// Package logging configures slog for all codegraph binaries and
// components. Level and format come from the environment so library
// code never touches logger construction.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Environment variables controlling log output.
const (
	EnvLogLevel  = "CODEGRAPH_LOG_LEVEL"  // debug, info, warn, error
	EnvLogFormat = "CODEGRAPH_LOG_FORMAT" // text, json
)

// Default returns a component-scoped logger writing to stderr.
// The component name appears on every record.
func Default(component string) *slog.Logger {
	return New().With("component", component)
}

// New builds a logger from the environment configuration.
func New() *slog.Logger {
	opts := &slog.HandlerOptions{Level: levelFromEnv()}

	var handler slog.Handler
	switch strings.ToLower(os.Getenv(EnvLogFormat)) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv(EnvLogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
