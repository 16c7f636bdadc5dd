// Package logging configures the process-wide structured logger and hands out
// module-scoped children ("alerting", "facematch", ...).
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var root atomic.Pointer[slog.Logger]

func init() {
	root.Store(slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

// Setup installs the root logger. format is "text" or "json".
func Setup(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}

	l := slog.New(h)
	root.Store(l)
	slog.SetDefault(l)
	return l
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
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

// Module returns a child of the root logger tagged with module=name.
func Module(name string) *slog.Logger {
	return root.Load().With("module", name)
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}
