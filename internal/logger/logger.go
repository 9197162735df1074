// Package logger sets up the process-wide structured logger.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ContextKey is the type of keys whose values FromContext adds to log lines.
type ContextKey string

const (
	BookIDKey  ContextKey = "book_id"
	ChapterKey ContextKey = "chapter"
	CommandKey ContextKey = "command"
)

var contextKeys = []ContextKey{BookIDKey, ChapterKey, CommandKey}

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
)

// Init builds a handler for the given level and format ("text" or "json")
// writing to w, and installs it as the slog default.
func Init(level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	l := slog.New(handler)
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
	slog.SetDefault(l)
	return l
}

// OpenFile opens path for appending log lines, creating parent directories.
func OpenFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// Default returns the logger installed by Init, or one that discards
// everything when Init has not run.
func Default() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if defaultLogger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return defaultLogger
}

// WithContext stores a value that FromContext attaches to log lines.
func WithContext(ctx context.Context, key ContextKey, value any) context.Context {
	return context.WithValue(ctx, key, value)
}

// FromContext returns the default logger annotated with any known keys
// carried by ctx.
func FromContext(ctx context.Context) *slog.Logger {
	l := Default()
	for _, k := range contextKeys {
		if v := ctx.Value(k); v != nil {
			l = l.With(string(k), v)
		}
	}
	return l
}
