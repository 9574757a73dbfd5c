// Package logging provides the minimal Logger interface every agora
// component depends on, plus adapters.
//
// The Logger interface takes a message and alternating key/value pairs:
//
//	logger.Info("engine.turn.recorded", "session", id, "participant", pid)
//
// Adapters:
//
//   - SlogAdapter wraps a *slog.Logger
//   - SlogLogger writes slog JSON or text records with component, session
//     and participant context
//   - ZerologAdapter wraps zerolog and is the CLI default
//   - NoOpLogger discards everything; OrNoOp substitutes it for nil
//
// SlogLogger and ZerologAdapter also implement CallLogger, which the invoker
// uses to record model and delegate calls in a uniform shape.
//
// Usage:
//
//	logger := logging.NewZerologLogger(logging.ParseLevel("debug"), os.Stderr, true)
//	eng := engine.New(func(o *engine.Options) { o.Logger = logger })
package logging
