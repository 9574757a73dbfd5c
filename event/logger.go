package event

import (
	"github.com/ThreeDotsLabs/watermill"

	"github.com/hupe1980/agora/logging"
)

// watermillLogger routes watermill's internal logging through logging.Logger.
type watermillLogger struct {
	logger logging.Logger
	fields watermill.LogFields
}

func newWatermillLogger(l logging.Logger) watermill.LoggerAdapter {
	return &watermillLogger{logger: l}
}

func (w *watermillLogger) args(fields watermill.LogFields) []any {
	merged := w.fields.Add(fields)
	out := make([]any, 0, len(merged)*2)
	for k, v := range merged {
		out = append(out, k, v)
	}
	return out
}

func (w *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	w.logger.Error("watermill: "+msg, append(w.args(fields), "error", err)...)
}

func (w *watermillLogger) Info(msg string, fields watermill.LogFields) {
	w.logger.Debug("watermill: "+msg, w.args(fields)...)
}

func (w *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	w.logger.Debug("watermill: "+msg, w.args(fields)...)
}

// Trace is dropped; watermill traces every message.
func (w *watermillLogger) Trace(string, watermill.LogFields) {}

func (w *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{logger: w.logger, fields: w.fields.Add(fields)}
}
