// Package log configures the process-wide slog logger and the field helpers
// used across armsd.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Output formats.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Options describe a handler.
type Options struct {
	Level  string
	Format string
	// Writer defaults to stdout.
	Writer io.Writer
	// Service, when set, is attached to every record.
	Service string
}

var current atomic.Pointer[slog.Logger]

// New builds a logger from opts without installing it.
func New(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	ho := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	var h slog.Handler
	if strings.EqualFold(opts.Format, FormatText) {
		h = slog.NewTextHandler(w, ho)
	} else {
		h = slog.NewJSONHandler(w, ho)
	}
	l := slog.New(h)
	if opts.Service != "" {
		l = l.With(slog.String("service", opts.Service))
	}
	return l
}

// Setup installs a logger as both the package logger and slog's default.
func Setup(opts Options) *slog.Logger {
	l := New(opts)
	current.Store(l)
	slog.SetDefault(l)
	return l
}

// Get returns the installed logger, installing an info-level JSON logger on
// first use.
func Get() *slog.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	l := New(Options{})
	if current.CompareAndSwap(nil, l) {
		return l
	}
	return current.Load()
}

// ParseLevel maps a config level string to a slog level. Unknown values
// mean info.
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

func WithComponent(name string) *slog.Logger {
	return Get().With(slog.String("component", name))
}

func WithArm(l *slog.Logger, arm string) *slog.Logger {
	return orDefault(l).With(slog.String("arm", arm))
}

func WithDecision(l *slog.Logger, id string) *slog.Logger {
	return orDefault(l).With(slog.String("decision_id", id))
}

// Discard drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func orDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Get()
	}
	return l
}
