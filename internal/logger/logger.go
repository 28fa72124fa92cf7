package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/vly-payment-engine/internal/config"
)

// NewLogger creates the JSON slog.Logger used by every component of the engine
func NewLogger(cfg *config.Config) *slog.Logger {
	logger := newLogger(os.Stdout, cfg.Logging.Level).With("app", cfg.Application.Name)
	logger.Info("logger initialized", "level", parseLevel(cfg.Logging.Level))
	return logger
}

func newLogger(w io.Writer, level string) *slog.Logger {
	lvl := parseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Component returns a child logger tagged with the component name
func Component(logger *slog.Logger, name string) *slog.Logger {
	return logger.With("component", name)
}
