// Package logging configures the process-wide structured logger. Both
// long-running services and the one-shot flow runner emit JSON lines to
// stdout tagged with the service name, so one log pipeline serves all
// three binaries.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Setup builds the service logger and installs it as the slog default, so
// middleware and infrastructure code logging through package-level slog
// land in the same stream.
func Setup(service, level string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	logger := slog.New(handler).With("service", service)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel understands slog's level names plus the "warning" spelling
// config files tend to use. Anything unrecognized falls back to info
// rather than failing startup over a log knob.
func ParseLevel(level string) slog.Level {
	name := strings.TrimSpace(level)
	if strings.EqualFold(name, "warning") {
		return slog.LevelWarn
	}

	var parsed slog.Level
	if err := parsed.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return parsed
}
