// Package engine drives live deliberations.
//
// The Engine owns the moderator loop. Every tick it sweeps idle sessions
// from the pool, assesses each remaining session and executes at most one
// moderator action per session. Turn allocation runs asynchronously:
//
//	Tick ──► Moderator.AssessState ──► ExecuteAction
//	                                        │
//	             ┌──────────────────────────┘
//	             ▼
//	     AllocateTurn (goroutine, bounded by a semaphore)
//	             │
//	             ├─► Scheduler.PollBids ─► Allocate
//	             ├─► InterruptionPolicy
//	             ├─► Invoker.Invoke (delegate ─► completion ─► static)
//	             └─► record: statement ─► memory ─► coalitions ─► quality ─► phase
//
// # Concurrency Model
//
// A session has at most one turn in flight. A slow invocation for one
// session never blocks the tick for others; when the invocation semaphore is
// exhausted the allocation is skipped and retried on a later tick.
//
// Events are broadcast strictly after the mutation that produced them. When
// a session is evicted or deleted its in-flight turn is cancelled and the
// eventual result is discarded because the closed session rejects it.
//
// # Callbacks
//
// A CallbackManager hooks into the turn lifecycle (before_turn,
// after_statement, on_phase_change, on_outcome, on_error). A before_turn
// callback returning an error vetoes the turn.
//
// # Usage
//
//	eng := engine.New(func(o *engine.Options) {
//		o.Invoker = invoker.New([]invoker.Strategy{invoker.NewCompletionStrategy(m)})
//		o.Broadcaster = bus
//	})
//	snap, err := eng.CreateSession(ctx, "Should AI be regulated?", core.DefaultProtocol, panel)
//	go eng.Run(ctx)
package engine
