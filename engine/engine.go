package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/agora/core"
	"github.com/hupe1980/agora/invoker"
	"github.com/hupe1980/agora/ledger"
	"github.com/hupe1980/agora/logging"
	"github.com/hupe1980/agora/memory"
	"github.com/hupe1980/agora/moderator"
	"github.com/hupe1980/agora/pool"
	"github.com/hupe1980/agora/quality"
	"github.com/hupe1980/agora/scheduler"
)

// Config contains tunable parameters for the engine.
type Config struct {
	// MaxConcurrentInvocations bounds turns in flight across all sessions.
	MaxConcurrentInvocations int64 `mapstructure:"max_concurrent_invocations"`

	// TickInterval is the moderator cadence used by Run.
	TickInterval time.Duration `mapstructure:"tick_interval"`

	// QualityInterval recomputes quality metrics every n statements.
	QualityInterval int `mapstructure:"quality_interval"`

	// DigestTopN and DigestBudget shape the memory digest handed to the invoker.
	DigestTopN   int `mapstructure:"digest_top_n"`
	DigestBudget int `mapstructure:"digest_budget"`
}

// DefaultConfig provides the defaults used by New.
var DefaultConfig = Config{
	MaxConcurrentInvocations: 10,
	TickInterval:             time.Second,
	QualityInterval:          quality.DefaultInterval,
	DigestTopN:               3,
	DigestBudget:             600,
}

// Options configures an Engine. Every component has an in-memory default.
type Options struct {
	Config      Config
	Pool        *pool.Pool
	Scheduler   *scheduler.Scheduler
	Invoker     *invoker.Invoker
	Moderator   *moderator.Moderator
	Memory      *memory.InMemoryStore
	Broadcaster core.Broadcaster
	// Recorder receives statements and outcomes. Nil disables the ledger.
	Recorder  *ledger.Recorder
	Callbacks *CallbackManager
	Logger    logging.Logger
	Now       func() time.Time
}

// Engine coordinates the pool, moderator, scheduler and invoker.
//
// Concurrency: all public methods are safe for concurrent use.
type Engine struct {
	config      Config
	pool        *pool.Pool
	scheduler   *scheduler.Scheduler
	invoker     *invoker.Invoker
	moderator   *moderator.Moderator
	memory      *memory.InMemoryStore
	broadcaster core.Broadcaster
	recorder    *ledger.Recorder
	callbacks   *CallbackManager
	logger      logging.Logger
	now         func() time.Time

	sem *semaphore.Weighted
	wg  sync.WaitGroup

	invocationsMu     sync.Mutex
	activeInvocations map[string]context.CancelFunc // sessionID -> in-flight turn
}

// New creates an engine.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config: DefaultConfig,
		Now:    time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	logger := logging.OrNoOp(opts.Logger)
	if opts.Config.MaxConcurrentInvocations <= 0 {
		opts.Config.MaxConcurrentInvocations = DefaultConfig.MaxConcurrentInvocations
	}
	if opts.Config.TickInterval <= 0 {
		opts.Config.TickInterval = DefaultConfig.TickInterval
	}
	if opts.Config.QualityInterval <= 0 {
		opts.Config.QualityInterval = DefaultConfig.QualityInterval
	}
	if opts.Pool == nil {
		opts.Pool = pool.New(func(o *pool.Options) {
			o.Now = opts.Now
			o.Logger = logger
		})
	}
	if opts.Scheduler == nil {
		opts.Scheduler = scheduler.New(func(o *scheduler.Options) {
			o.Now = opts.Now
			o.Logger = logger
		})
	}
	if opts.Invoker == nil {
		opts.Invoker = invoker.New(nil, func(o *invoker.Options) {
			o.Now = opts.Now
			o.Logger = logger
		})
	}
	if opts.Moderator == nil {
		opts.Moderator = moderator.New(func(o *moderator.Options) { o.Logger = logger })
	}
	if opts.Memory == nil {
		opts.Memory = memory.NewInMemoryStore(memory.DefaultHistoryCap)
	}
	if opts.Broadcaster == nil {
		opts.Broadcaster = core.NopBroadcaster{}
	}
	if opts.Callbacks == nil {
		opts.Callbacks = NewCallbackManager()
	}

	e := &Engine{
		config:            opts.Config,
		pool:              opts.Pool,
		scheduler:         opts.Scheduler,
		invoker:           opts.Invoker,
		moderator:         opts.Moderator,
		memory:            opts.Memory,
		broadcaster:       opts.Broadcaster,
		recorder:          opts.Recorder,
		callbacks:         opts.Callbacks,
		logger:            logger,
		now:               opts.Now,
		sem:               semaphore.NewWeighted(opts.Config.MaxConcurrentInvocations),
		activeInvocations: make(map[string]context.CancelFunc),
	}
	e.pool.OnEvict(e.handleEvict)
	return e
}

// Pool returns the session pool.
func (e *Engine) Pool() *pool.Pool { return e.pool }

// Callbacks returns the callback manager.
func (e *Engine) Callbacks() *CallbackManager { return e.callbacks }

// CreateSession opens a new deliberation and broadcasts its initial state.
func (e *Engine) CreateSession(ctx context.Context, topic string, protocol core.Protocol, participants []core.Participant) (core.Snapshot, error) {
	sess, err := e.pool.Create(topic, protocol, participants)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("create session: %w", err)
	}
	snap := sess.Snapshot()
	e.logger.Info("engine.session.created", "session", snap.ID, "topic", topic, "participants", len(participants))
	e.broadcast(ctx, core.NewEvent(core.EventStateSync, snap.ID, snap))
	return snap, nil
}

// Snapshot returns the current state of a session and marks it active.
func (e *Engine) Snapshot(id string) (core.Snapshot, error) {
	sess, err := e.pool.Get(id)
	if err != nil {
		return core.Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// Delete removes a session, cancelling its in-flight turn.
func (e *Engine) Delete(id string) error {
	return e.pool.Delete(id)
}

// FormCoalition records an externally proposed coalition.
func (e *Engine) FormCoalition(ctx context.Context, id string, members []string, position string, strength float64, reason string) (core.Coalition, error) {
	sess, err := e.pool.Get(id)
	if err != nil {
		return core.Coalition{}, err
	}
	c, err := sess.FormCoalition(members, position, strength, reason)
	if err != nil {
		return core.Coalition{}, fmt.Errorf("form coalition: %w", err)
	}
	e.coalitionChanged(ctx, sess, c)
	return c, nil
}

// Advance moves a session one phase forward.
func (e *Engine) Advance(ctx context.Context, id string) (core.Snapshot, error) {
	if err := e.AdvancePhase(ctx, id); err != nil {
		return core.Snapshot{}, err
	}
	return e.Snapshot(id)
}

// Tick runs one moderator pass over every live session. It never waits for
// turn invocations and returns the number of actions executed.
func (e *Engine) Tick(ctx context.Context) int {
	if n := e.pool.Sweep(); n > 0 {
		e.logger.Info("engine.tick.swept", "evicted", n)
	}
	now := e.now()
	actions := 0
	for _, sess := range e.pool.List() {
		if sess.Closed() {
			continue
		}
		a := e.moderator.AssessState(sess.Snapshot(), now)
		if a == nil {
			continue
		}
		actions++
		if err := e.moderator.ExecuteAction(ctx, e, sess.ID(), a); err != nil {
			e.fail(ctx, sess.ID(), err)
		}
	}
	return actions
}

// Run ticks every TickInterval until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.config.TickInterval)
	defer ticker.Stop()
	e.logger.Info("engine.run.start", "interval", e.config.TickInterval)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine.run.stop")
			return ctx.Err()
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Wait blocks until every in-flight turn has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Close cancels in-flight turns and waits for them or ctx.
func (e *Engine) Close(ctx context.Context) error {
	e.invocationsMu.Lock()
	for _, cancel := range e.activeInvocations {
		cancel()
	}
	e.invocationsMu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InFlight reports whether a turn is being produced for the session.
func (e *Engine) InFlight(sessionID string) bool {
	e.invocationsMu.Lock()
	defer e.invocationsMu.Unlock()
	_, ok := e.activeInvocations[sessionID]
	return ok
}

// AllocateTurn implements moderator.Executor. It starts a turn in the
// background and returns immediately. A session with a turn in flight, or a
// saturated engine, skips the allocation.
func (e *Engine) AllocateTurn(ctx context.Context, sessionID string) error {
	sess, err := e.pool.Peek(sessionID)
	if err != nil {
		return err
	}
	if sess.Closed() {
		return core.ErrSessionClosed
	}

	turnCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.invocationsMu.Lock()
	if _, busy := e.activeInvocations[sessionID]; busy {
		e.invocationsMu.Unlock()
		cancel()
		e.logger.Debug("engine.turn.busy", "session", sessionID)
		return nil
	}
	if !e.sem.TryAcquire(1) {
		e.invocationsMu.Unlock()
		cancel()
		e.logger.Warn("engine.turn.saturated", "session", sessionID, "limit", e.config.MaxConcurrentInvocations)
		return nil
	}
	e.activeInvocations[sessionID] = cancel
	e.wg.Add(1)
	e.invocationsMu.Unlock()

	sess.MarkAllocation()

	go func() {
		defer func() {
			e.invocationsMu.Lock()
			delete(e.activeInvocations, sessionID)
			e.invocationsMu.Unlock()
			cancel()
			e.sem.Release(1)
			e.wg.Done()
		}()
		if err := e.runTurn(turnCtx, sess); err != nil {
			if errors.Is(err, core.ErrSessionClosed) {
				e.logger.Debug("engine.turn.discarded", "session", sessionID)
				return
			}
			e.fail(turnCtx, sessionID, err)
		}
	}()
	return nil
}

// Interject implements moderator.Executor by recording a moderator statement.
func (e *Engine) Interject(ctx context.Context, sessionID, message string) error {
	sess, err := e.pool.Peek(sessionID)
	if err != nil {
		return err
	}
	_, err = e.record(ctx, sess, core.Statement{ParticipantID: core.ModeratorID, Content: message})
	return err
}

// AdvancePhase implements moderator.Executor.
func (e *Engine) AdvancePhase(ctx context.Context, sessionID string) error {
	sess, err := e.pool.Peek(sessionID)
	if err != nil {
		return err
	}
	from, to, changed, err := sess.Advance()
	if err != nil {
		return err
	}
	if changed {
		e.phaseChanged(ctx, sess, from, to)
	}
	return nil
}

func (e *Engine) handleEvict(sess *core.Session, reason pool.EvictReason) {
	id := sess.ID()
	e.invocationsMu.Lock()
	if cancel, ok := e.activeInvocations[id]; ok {
		cancel()
	}
	e.invocationsMu.Unlock()

	e.scheduler.Forget(id)
	e.invoker.Forget(id)
	e.memory.DropSession(id)
	e.logger.Info("engine.session.evicted", "session", id, "reason", reason)
}

func (e *Engine) broadcast(ctx context.Context, ev core.Event) {
	if err := e.broadcaster.Broadcast(ctx, ev); err != nil {
		e.logger.Warn("engine.broadcast.failed", "session", ev.SessionID, "type", ev.Type, "error", err)
	}
}

func (e *Engine) recordLedger(sessionID string, kind core.LedgerKind, v any) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.Record(sessionID, kind, v); err != nil {
		e.logger.Warn("engine.ledger.skipped", "session", sessionID, "kind", kind, "error", err)
	}
}

func (e *Engine) fail(ctx context.Context, sessionID string, err error) {
	e.logger.Error("engine.session.error", "session", sessionID, "error", err)
	e.notify(ctx, CallbackOnError, &CallbackContext{SessionID: sessionID, Err: err})
}

// notify runs observer callbacks. Their errors cannot undo the mutation that
// triggered them, so they are logged only.
func (e *Engine) notify(ctx context.Context, t CallbackType, cc *CallbackContext) {
	if err := e.callbacks.Execute(ctx, t, cc); err != nil {
		e.logger.Warn("engine.callback.failed", "session", cc.SessionID, "callback", t, "error", err)
	}
}

var _ moderator.Executor = (*Engine)(nil)
