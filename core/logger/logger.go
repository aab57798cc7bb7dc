// Package logger provides structured logging built on the standard slog
// package: environment-aware construction plus attribute helpers for the
// fields this service logs most.
//
// Debug visibility in the auth path is controlled by the configured level,
// never by per-request feature-flag lookups.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// Config holds logger configuration loaded from the environment.
type Config struct {
	// Level is one of debug, info, warn, error.
	Level string `env:"LOG_LEVEL" envDefault:"info"`
	// Format is "json" (production) or "text" (development).
	Format string `env:"LOG_FORMAT" envDefault:"json"`
	// Service is attached to every record as the "service" attribute.
	Service string `env:"LOG_SERVICE" envDefault:"melodix"`
}

// New constructs a slog.Logger from configuration, writing to stdout.
func New(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	if cfg.Service != "" {
		log = log.With(slog.String("service", cfg.Service))
	}
	return log
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
