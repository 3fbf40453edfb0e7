// Package logging defines the structured-logging vocabulary of the channel
// runtime. Every line carries a component attribute, and channel-scoped
// lines carry the relay's identity fingerprint, so one relay's lifecycle can
// be grepped out of the shared manager's output.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with the attribute helpers the runtime uses.
type Logger struct {
	*slog.Logger
}

// New creates a Logger writing to w. The level string uses the same
// vocabulary as ChannelConfig.LogLevel (debug, info, warn, error); anything
// else falls back to info.
func New(level string, w io.Writer) *Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})
	return &Logger{Logger: slog.New(handler)}
}

// NewDefault creates an info-level logger on stdout.
func NewDefault() *Logger {
	return New("info", os.Stdout)
}

// With returns a new Logger with additional attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component tags l with the runtime component emitting the line.
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Channel tags l with the identity fingerprint of the channel the line
// concerns.
func (l *Logger) Channel(ident string) *Logger {
	return l.With("channel_ident", ident)
}
