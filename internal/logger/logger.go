// Package logger provides the leveled logger used across launchbench.
// It wraps log/slog so callers depend on a small interface that is easy
// to inject in tests and carry through a context.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the logging interface threaded through the tool.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}

type slogLogger struct {
	l *slog.Logger
}

// New wraps an slog handler in a Logger.
func New(h slog.Handler) Logger {
	return &slogLogger{l: slog.New(h)}
}

// Default returns an info-level console logger writing to stderr.
func Default() Logger {
	return Console(os.Stderr, slog.LevelInfo)
}

// Console returns a Logger with human-oriented colored output.
func Console(w io.Writer, level slog.Level) Logger {
	return New(NewConsoleHandler(w, level))
}

// JSON returns a Logger emitting one JSON object per record.
func JSON(w io.Writer, level slog.Level) Logger {
	return New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// Setup builds a Logger for the given format ("pretty" or "json") and
// level name. Unknown values fall back to the pretty console handler.
func Setup(w io.Writer, format, level string) Logger {
	lv := ParseLevel(level)
	if strings.EqualFold(format, "json") {
		return JSON(w, lv)
	}
	return Console(w, lv)
}

func (s *slogLogger) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s *slogLogger) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s *slogLogger) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s *slogLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }

func (s *slogLogger) With(args ...any) Logger {
	return &slogLogger{l: s.l.With(args...)}
}

type ctxKey struct{}

// WithContext returns a context carrying log.
func WithContext(ctx context.Context, log Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, log)
}

// FromContext returns the Logger stored in ctx, or a default logger when
// none was attached.
func FromContext(ctx context.Context) Logger {
	if log, ok := ctx.Value(ctxKey{}).(Logger); ok {
		return log
	}
	return Default()
}

// ParseLevel maps a level name to its slog.Level. Matching is
// case-insensitive; unknown names mean info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
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
