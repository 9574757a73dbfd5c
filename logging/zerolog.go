package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ZerologAdapter implements Logger on top of a zerolog.Logger. Key/value
// arguments are attached as fields; an odd trailing argument is logged under
// the "arg" key.
type ZerologAdapter struct {
	logger zerolog.Logger
}

// NewZerologAdapter wraps an existing zerolog.Logger.
func NewZerologAdapter(l zerolog.Logger) *ZerologAdapter {
	return &ZerologAdapter{logger: l}
}

// NewZerologLogger builds a timestamped zerolog logger writing to out
// (stderr when nil). Pretty enables the human readable console writer.
func NewZerologLogger(level LogLevel, out io.Writer, pretty bool) *ZerologAdapter {
	if out == nil {
		out = os.Stderr
	}
	if pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	l := zerolog.New(out).Level(zerologLevel(level)).With().Timestamp().Logger()
	return &ZerologAdapter{logger: l}
}

func zerologLevel(l LogLevel) zerolog.Level {
	switch l {
	case LogLevelDebug:
		return zerolog.DebugLevel
	case LogLevelWarn:
		return zerolog.WarnLevel
	case LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Debug logs a debug message.
func (z *ZerologAdapter) Debug(msg string, args ...any) { emit(z.logger.Debug(), msg, args) }

// Info logs an informational message.
func (z *ZerologAdapter) Info(msg string, args ...any) { emit(z.logger.Info(), msg, args) }

// Warn logs a warning message.
func (z *ZerologAdapter) Warn(msg string, args ...any) { emit(z.logger.Warn(), msg, args) }

// Error logs an error message.
func (z *ZerologAdapter) Error(msg string, args ...any) { emit(z.logger.Error(), msg, args) }

// LogModelCall implements CallLogger.
func (z *ZerologAdapter) LogModelCall(model string, attempts int, dur time.Duration, err error) {
	logCall(z, "model.call", []any{"model", model, "attempts", attempts, "duration", dur}, err)
}

// LogDelegateCall implements CallLogger.
func (z *ZerologAdapter) LogDelegateCall(delegate, participantID string, dur time.Duration, err error) {
	logCall(z, "delegate.call", []any{"delegate", delegate, "participant", participantID, "duration", dur}, err)
}

func emit(ev *zerolog.Event, msg string, args []any) {
	if ev == nil {
		return
	}
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			ev = ev.Interface("arg", args[i])
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = "arg"
		}
		switch v := args[i+1].(type) {
		case error:
			ev = ev.AnErr(key, v)
		case time.Duration:
			ev = ev.Dur(key, v)
		default:
			ev = ev.Interface(key, v)
		}
	}
	ev.Msg(msg)
}

var (
	_ Logger     = (*ZerologAdapter)(nil)
	_ CallLogger = (*ZerologAdapter)(nil)
)
