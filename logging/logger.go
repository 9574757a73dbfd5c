package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a case-insensitive level name. Unknown names map to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LogLevelDebug
	case "WARN", "WARNING":
		return LogLevelWarn
	case "ERROR":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// Logger defines the minimal logging interface used across the engine.
// Arguments after msg are alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// CallLogger is implemented by loggers that record outbound calls with a
// uniform shape. Callers type-assert for it and fall back to plain logging.
type CallLogger interface {
	LogModelCall(model string, attempts int, dur time.Duration, err error)
	LogDelegateCall(delegate, participantID string, dur time.Duration, err error)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// SlogLogger is a slog backed Logger carrying fixed component, session and
// participant attributes. The With methods return copies.
type SlogLogger struct {
	handler slog.Handler
	attrs   []slog.Attr
}

// NewSlogLogger writes "json" or "text" records to out (stderr when nil).
func NewSlogLogger(level LogLevel, format string, out io.Writer) *SlogLogger {
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: slogLevel(level)}
	var h slog.Handler
	if format == "text" {
		h = slog.NewTextHandler(out, opts)
	} else {
		h = slog.NewJSONHandler(out, opts)
	}
	return &SlogLogger{handler: h}
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *SlogLogger) with(attrs ...slog.Attr) *SlogLogger {
	nl := *l
	nl.attrs = append(append([]slog.Attr(nil), l.attrs...), attrs...)
	return &nl
}

// WithComponent tags every record with the logical component.
func (l *SlogLogger) WithComponent(c string) *SlogLogger {
	return l.with(slog.String("component", c))
}

// WithSession tags every record with session and, if set, participant ids.
func (l *SlogLogger) WithSession(sessionID, participantID string) *SlogLogger {
	attrs := []slog.Attr{slog.String("session_id", sessionID)}
	if participantID != "" {
		attrs = append(attrs, slog.String("participant_id", participantID))
	}
	return l.with(attrs...)
}

func (l *SlogLogger) log(level slog.Level, msg string, args ...any) {
	if !l.handler.Enabled(context.Background(), level) {
		return
	}
	r := slog.NewRecord(time.Now(), level, msg, 0)
	r.AddAttrs(l.attrs...)
	r.Add(args...)
	_ = l.handler.Handle(context.Background(), r)
}

// Debug logs at debug level.
func (l *SlogLogger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }

// Info logs at info level.
func (l *SlogLogger) Info(msg string, args ...any) { l.log(slog.LevelInfo, msg, args...) }

// Warn logs at warn level.
func (l *SlogLogger) Warn(msg string, args ...any) { l.log(slog.LevelWarn, msg, args...) }

// Error logs at error level.
func (l *SlogLogger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

// LogModelCall implements CallLogger.
func (l *SlogLogger) LogModelCall(model string, attempts int, dur time.Duration, err error) {
	logCall(l, "model.call", []any{"model", model, "attempts", attempts, "duration", dur}, err)
}

// LogDelegateCall implements CallLogger.
func (l *SlogLogger) LogDelegateCall(delegate, participantID string, dur time.Duration, err error) {
	logCall(l, "delegate.call", []any{"delegate", delegate, "participant", participantID, "duration", dur}, err)
}

func logCall(l Logger, msg string, args []any, err error) {
	if err != nil {
		l.Warn(msg+".failed", append(args, "error", err)...)
		return
	}
	l.Debug(msg+".completed", args...)
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// OrNoOp returns l, or a NoOpLogger when l is nil.
func OrNoOp(l Logger) Logger {
	if l == nil {
		return NoOpLogger{}
	}
	return l
}

var (
	_ Logger     = (*SlogLogger)(nil)
	_ CallLogger = (*SlogLogger)(nil)
	_ Logger     = NoOpLogger{}
)
