// Package logging builds the structured logger shared by every component.
//
// Records always go to stderr; stdout carries the MCP stdio transport. When a
// log file is configured, records are fanned out to it as well.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"

	"actions-bootstrapper/config"
)

// New creates a logger for cfg. The returned closer releases the log file, if
// one was opened, and is always non-nil.
func New(cfg config.LoggingConfig, version string) (*slog.Logger, io.Closer, error) {
	return newLogger(cfg, version, os.Stderr)
}

func newLogger(cfg config.LoggingConfig, version string, console io.Writer) (*slog.Logger, io.Closer, error) {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	handlers := []slog.Handler{newHandler(cfg.Format, console, opts)}
	var closer io.Closer = nopCloser{}

	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		// The file always gets JSON so it can be grepped with jq.
		handlers = append(handlers, slog.NewJSONHandler(f, opts))
		closer = f
	}

	handler := slogmulti.Fanout(handlers...).WithAttrs([]slog.Attr{
		slog.String("service", "actions-bootstrapper"),
		slog.String("version", version),
	})
	return slog.New(handler), closer, nil
}

func newHandler(format string, w io.Writer, opts *slog.HandlerOptions) slog.Handler {
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// ParseLevel converts a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
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

// Discard returns a logger that drops everything. Used by tests and by
// components constructed without a logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
