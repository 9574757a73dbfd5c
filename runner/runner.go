package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/agora/core"
	"github.com/hupe1980/agora/engine"
	"github.com/hupe1980/agora/event"
	"github.com/hupe1980/agora/logging"
)

// Options holds configuration overrides passed to New().
type Options struct {
	// TickInterval is the moderator cadence while a run is active.
	TickInterval time.Duration
	// EventBufferSize sets channel buffering for delivered events.
	EventBufferSize int
	Logger          logging.Logger
}

// Runner drives single deliberations to completion: it creates the session,
// ticks the engine and streams the session's events until the outcome is
// published. The engine's broadcaster must be the runner's bus.
//
// Ticks cover every session in the engine's pool, so a Runner should not be
// combined with Engine.Run on the same engine.
type Runner struct {
	engine *engine.Engine
	bus    *event.Bus

	tickInterval    time.Duration
	eventBufferSize int
	logger          logging.Logger

	activeRuns map[string]context.CancelFunc
	mu         sync.RWMutex
}

// New constructs a Runner.
func New(eng *engine.Engine, bus *event.Bus, optFns ...func(o *Options)) *Runner {
	opts := Options{
		TickInterval:    time.Second,
		EventBufferSize: 100,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Runner{
		engine:          eng,
		bus:             bus,
		tickInterval:    opts.TickInterval,
		eventBufferSize: opts.EventBufferSize,
		logger:          logging.OrNoOp(opts.Logger),
		activeRuns:      make(map[string]context.CancelFunc),
	}
}

// Run starts a deliberation and returns its session id with channels for
// events and a terminal error. The events channel closes after the final
// state_sync carrying the outcome, on cancellation, or when the session
// disappears.
func (r *Runner) Run(
	ctx context.Context,
	topic string,
	protocol core.Protocol,
	participants []core.Participant,
) (string, <-chan event.Envelope, <-chan error, error) {
	runCtx, cancel := context.WithCancel(ctx)

	// The session id is only known once the session exists, so the filter
	// narrows after creation.
	var target atomic.Value
	target.Store("")
	sub, err := r.bus.Subscribe(runCtx, func(env event.Envelope) bool {
		id := target.Load().(string)
		return id == "" || env.SessionID == id
	})
	if err != nil {
		cancel()
		return "", nil, nil, fmt.Errorf("subscribe: %w", err)
	}
	snap, err := r.engine.CreateSession(runCtx, topic, protocol, participants)
	if err != nil {
		cancel()
		return "", nil, nil, err
	}
	sessionID := snap.ID
	target.Store(sessionID)

	r.mu.Lock()
	r.activeRuns[sessionID] = cancel
	r.mu.Unlock()

	eventsCh := make(chan event.Envelope, r.eventBufferSize)
	errorsCh := make(chan error, 1)

	go func() {
		defer func() {
			cancel()
			r.mu.Lock()
			delete(r.activeRuns, sessionID)
			r.mu.Unlock()
			close(eventsCh)
			close(errorsCh)
		}()

		ticker := time.NewTicker(r.tickInterval)
		defer ticker.Stop()

		// forward delivers env and reports whether it ended the run.
		forward := func(env event.Envelope) bool {
			if env.SessionID != sessionID {
				return false
			}
			select {
			case <-runCtx.Done():
				return true
			case eventsCh <- env:
			}
			if _, done := Concluded(env); done {
				r.logger.Info("runner.run.concluded", "session", sessionID)
				return true
			}
			return false
		}

		for {
			select {
			case <-runCtx.Done():
				if err := ctx.Err(); err != nil {
					errorsCh <- err
				}
				return
			case <-ticker.C:
				r.engine.Tick(runCtx)
				sess, err := r.engine.Pool().Peek(sessionID)
				if err != nil {
					errorsCh <- err
					return
				}
				if _, done := sess.Outcome(); done && r.finish(sub, sess.Snapshot(), forward) {
					return
				}
			case env, ok := <-sub:
				if !ok {
					errorsCh <- fmt.Errorf("event stream closed")
					return
				}
				if forward(env) {
					return
				}
			}
		}
	}()

	return sessionID, eventsCh, errorsCh, nil
}

// finish ends a run whose session already holds an outcome. Buffered events
// are forwarded first; when the final state_sync was dropped by the bus it is
// rebuilt from snap.
func (r *Runner) finish(sub <-chan event.Envelope, snap core.Snapshot, forward func(event.Envelope) bool) bool {
drain:
	for {
		select {
		case env, ok := <-sub:
			if !ok {
				return false
			}
			if forward(env) {
				return true
			}
		default:
			break drain
		}
	}
	env, err := event.NewEnvelope(core.NewEvent(core.EventStateSync, snap.ID, snap))
	if err != nil {
		r.logger.Error("runner.run.final_encode", "session", snap.ID, "error", err)
		return false
	}
	r.logger.Debug("runner.run.final_rebuilt", "session", snap.ID)
	return forward(env)
}

// RunSync drains Run and returns the final snapshot with every event.
func (r *Runner) RunSync(
	ctx context.Context,
	topic string,
	protocol core.Protocol,
	participants []core.Participant,
) (core.Snapshot, []event.Envelope, error) {
	_, eventsCh, errorsCh, err := r.Run(ctx, topic, protocol, participants)
	if err != nil {
		return core.Snapshot{}, nil, err
	}

	var (
		events []event.Envelope
		final  core.Snapshot
	)
	for env := range eventsCh {
		events = append(events, env)
		if snap, done := Concluded(env); done {
			final = snap
		}
	}
	if err := <-errorsCh; err != nil {
		return final, events, err
	}
	return final, events, nil
}

// Cancel stops an active run.
func (r *Runner) Cancel(sessionID string) error {
	r.mu.RLock()
	cancel, exists := r.activeRuns[sessionID]
	r.mu.RUnlock()
	if !exists {
		return fmt.Errorf("run %s not found", sessionID)
	}
	cancel()
	return nil
}

// Concluded reports whether env is the final state_sync of a session and
// returns its snapshot.
func Concluded(env event.Envelope) (core.Snapshot, bool) {
	if env.Type != core.EventStateSync {
		return core.Snapshot{}, false
	}
	_, payload, err := env.Decode()
	if err != nil {
		return core.Snapshot{}, false
	}
	var snap core.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil || snap.Outcome == nil {
		return core.Snapshot{}, false
	}
	return snap, true
}
