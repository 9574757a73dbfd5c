// Package runner runs one deliberation end to end on top of engine.Engine.
//
// Where the engine is a long lived service ticking every session in its
// pool, a Runner owns the cadence for the duration of a single run and
// streams that session's events back to the caller:
//
//	r := runner.New(eng, bus)
//	final, events, err := r.RunSync(ctx, "Should AI be regulated?", core.DefaultProtocol, panel)
//
// The CLI's run command is built on it.
package runner
