// Package logger builds the structured logger used by mbsnap: a text handler
// on stderr for the operator and, optionally, a JSON file rotated by
// lumberjack.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	// Level is one of debug, info, warn or error.
	Level string
	// File enables the rotated JSON log when non-empty.
	File string
	// Console receives the text log; defaults to stderr.
	Console io.Writer
}

// Logger is a slog.Logger that counts the warnings and errors it emits.
type Logger struct {
	*slog.Logger
	file     *lumberjack.Logger
	warnings *atomic.Int64
	errors   *atomic.Int64
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// New builds a logger. The caller must Close it to flush the log file.
func New(opts Options) (*Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	handlers := []slog.Handler{
		slog.NewTextHandler(console, &slog.HandlerOptions{Level: level}),
	}

	l := &Logger{warnings: &atomic.Int64{}, errors: &atomic.Int64{}}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		l.file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		// The file always gets debug detail.
		handlers = append(handlers, slog.NewJSONHandler(l.file, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	l.Logger = slog.New(&countingHandler{
		inner:    fanout(handlers),
		warnings: l.warnings,
		errors:   l.errors,
	})
	return l, nil
}

// Discard returns a logger that writes nothing.
func Discard() *Logger {
	l, _ := New(Options{Level: "error", Console: io.Discard})
	return l
}

// Warnings returns the number of warnings logged so far.
func (l *Logger) Warnings() int64 {
	return l.warnings.Load()
}

// Errors returns the number of errors logged so far.
func (l *Logger) Errors() int64 {
	return l.errors.Load()
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// countingHandler tallies WARN and ERROR records before passing them on.
type countingHandler struct {
	inner    slog.Handler
	warnings *atomic.Int64
	errors   *atomic.Int64
}

func (h *countingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	// Warnings are counted even when the console level hides them.
	return level >= slog.LevelWarn || h.inner.Enabled(ctx, level)
}

func (h *countingHandler) Handle(ctx context.Context, r slog.Record) error {
	switch {
	case r.Level >= slog.LevelError:
		h.errors.Add(1)
	case r.Level >= slog.LevelWarn:
		h.warnings.Add(1)
	}
	if !h.inner.Enabled(ctx, r.Level) {
		return nil
	}
	return h.inner.Handle(ctx, r)
}

func (h *countingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &countingHandler{inner: h.inner.WithAttrs(attrs), warnings: h.warnings, errors: h.errors}
}

func (h *countingHandler) WithGroup(name string) slog.Handler {
	return &countingHandler{inner: h.inner.WithGroup(name), warnings: h.warnings, errors: h.errors}
}

// multiHandler sends each record to every handler that accepts its level.
type multiHandler []slog.Handler

func fanout(handlers []slog.Handler) slog.Handler {
	if len(handlers) == 1 {
		return handlers[0]
	}
	return multiHandler(handlers)
}

func (m multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range m {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (m multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(multiHandler, len(m))
	for i, h := range m {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (m multiHandler) WithGroup(name string) slog.Handler {
	out := make(multiHandler, len(m))
	for i, h := range m {
		out[i] = h.WithGroup(name)
	}
	return out
}
