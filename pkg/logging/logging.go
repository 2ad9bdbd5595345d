// Package logging builds the process logger: slog handlers writing to
// stderr and, optionally, a size-rotated log file.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/chainguard-dev/clog"
	"gopkg.in/natefinch/lumberjack.v2"

	"thoreinstein.com/shipwright/pkg/config"
)

// Logger pairs the configured clog logger with the file sink it may own.
type Logger struct {
	*clog.Logger
	slog *slog.Logger
	file io.Closer
}

// New builds a logger from cfg. verbose forces debug level.
func New(cfg config.LoggingConfig, verbose bool) *Logger {
	return newWithWriter(cfg, verbose, os.Stderr)
}

func newWithWriter(cfg config.LoggingConfig, verbose bool, stderr io.Writer) *Logger {
	level := ParseLevel(cfg.Level)
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var out io.Writer = stderr
	var closer io.Closer
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		out = io.MultiWriter(stderr, rotator)
		closer = rotator
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return &Logger{Logger: clog.New(handler), slog: slog.New(handler), file: closer}
}

// Slog returns the underlying *slog.Logger for packages that take one.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Close flushes and closes the rotated log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// WithContext stores the logger in ctx for clog.FromContext.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return clog.WithLogger(ctx, l.Logger)
}

// ParseLevel converts a level name to slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
