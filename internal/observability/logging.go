// Package observability wires structured logging and Prometheus metrics.
package observability

import (
	"io"
	"log/slog"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// InitLogger installs the default slog logger. debug forces debug level.
func InitLogger(w io.Writer, cfg domain.LoggingConfig, debug bool) *slog.Logger {
	level := parseLevel(cfg.Level)
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
