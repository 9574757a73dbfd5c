package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agora/core"
	"github.com/hupe1980/agora/internal/testutil"
	"github.com/hupe1980/agora/invoker"
	"github.com/hupe1980/agora/ledger"
	"github.com/hupe1980/agora/moderator"
)

type eventLog struct {
	mu     sync.Mutex
	events []core.Event
}

func (l *eventLog) Broadcast(_ context.Context, ev core.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *eventLog) types() []core.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]core.EventType, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Type
	}
	return out
}

func (l *eventLog) count(t core.EventType) int {
	n := 0
	for _, got := range l.types() {
		if got == t {
			n++
		}
	}
	return n
}

func (l *eventLog) last() core.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[len(l.events)-1]
}

var alwaysInterrupt = moderator.InterruptionPolicyFunc(func(core.Speaker, float64, core.Protocol, time.Time) bool { return true })

func panel() []core.Participant {
	return []core.Participant{
		{ID: "ethicist", Name: "Dr. Amara Osei"},
		{ID: "economist", Name: "Lena Fischer"},
		{ID: "engineer", Name: "Raj Patel"},
	}
}

// scripted answers with a fixed line per participant, or a numbered point.
func scripted(lines map[string]string) invoker.Strategy {
	return invoker.StrategyFunc{ID: "scripted", Fn: func(_ context.Context, req invoker.Request) (invoker.Result, error) {
		if line, ok := lines[req.Participant.ID]; ok {
			return invoker.Result{Statement: line, Confidence: 0.8}, nil
		}
		return invoker.Result{
			Statement:  fmt.Sprintf("%s makes point %d.", req.Participant.DisplayName(), req.Snapshot.TurnCount+1),
			Confidence: 0.8,
		}, nil
	}}
}

type slowStrategy struct {
	started chan struct{}
	release chan struct{}
}

func newSlowStrategy() *slowStrategy {
	return &slowStrategy{started: make(chan struct{}, 4), release: make(chan struct{})}
}

func (s *slowStrategy) Name() string { return "slow" }

func (s *slowStrategy) Attempt(ctx context.Context, _ invoker.Request) (invoker.Result, error) {
	select {
	case s.started <- struct{}{}:
	default:
	}
	select {
	case <-s.release:
		return invoker.Result{Statement: "Finally, my point."}, nil
	case <-ctx.Done():
		return invoker.Result{}, ctx.Err()
	}
}

func newEngine(t *testing.T, clock *testutil.Clock, strategy invoker.Strategy, optFns ...func(o *Options)) (*Engine, *eventLog) {
	t.Helper()
	log := &eventLog{}
	e := New(func(o *Options) {
		o.Now = clock.Now
		o.Invoker = invoker.New([]invoker.Strategy{strategy}, func(io *invoker.Options) { io.Now = clock.Now })
		o.Moderator = moderator.New(func(mo *moderator.Options) { mo.Policy = alwaysInterrupt })
		o.Broadcaster = log
		for _, fn := range optFns {
			fn(o)
		}
	})
	return e, log
}

func turn(t *testing.T, e *Engine, id string) {
	t.Helper()
	require.NoError(t, e.AllocateTurn(context.Background(), id))
	e.Wait()
}

func TestEngine_AllocateTurnRecordsStatement(t *testing.T) {
	ctx := context.Background()
	e, log := newEngine(t, testutil.NewClock(), scripted(nil))

	snap, err := e.CreateSession(ctx, "AI safety", core.DefaultProtocol, panel())
	require.NoError(t, err)

	turn(t, e, snap.ID)

	got, err := e.Snapshot(snap.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.TurnCount)
	assert.Equal(t, "ethicist", got.Statements[0].ParticipantID)
	assert.Equal(t, "Dr. Amara Osei makes point 1.", got.Statements[0].Content)
	assert.Equal(t, "ethicist", got.Speaker.ParticipantID)
	assert.Equal(t, core.PhaseInitialPositions, got.Phase)
	assert.Equal(t, []core.EventType{core.EventStateSync, core.EventStatementAdded, core.EventPhaseChanged}, log.types())
	assert.False(t, e.InFlight(snap.ID))
}

func TestEngine_NoConsecutiveSpeakersAndPeriodicQuality(t *testing.T) {
	e, log := newEngine(t, testutil.NewClock(), scripted(nil))
	snap, err := e.CreateSession(context.Background(), "AI safety", core.DefaultProtocol, panel())
	require.NoError(t, err)

	for range 12 {
		turn(t, e, snap.ID)
	}

	got, err := e.Snapshot(snap.ID)
	require.NoError(t, err)
	require.Equal(t, 12, got.TurnCount)
	for i := 1; i < len(got.Statements); i++ {
		assert.NotEqual(t, got.Statements[i-1].ParticipantID, got.Statements[i].ParticipantID, "statement %d", i)
	}
	assert.Equal(t, 2, log.count(core.EventQualityUpdated))
	assert.Equal(t, 10, got.Quality.StatementCount)
}

func TestEngine_BusySessionSkipsAllocation(t *testing.T) {
	slow := newSlowStrategy()
	e, _ := newEngine(t, testutil.NewClock(), slow)
	snap, err := e.CreateSession(context.Background(), "AI safety", core.DefaultProtocol, panel())
	require.NoError(t, err)

	require.NoError(t, e.AllocateTurn(context.Background(), snap.ID))
	<-slow.started
	assert.True(t, e.InFlight(snap.ID))
	require.NoError(t, e.AllocateTurn(context.Background(), snap.ID))

	close(slow.release)
	e.Wait()

	got, err := e.Snapshot(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TurnCount)
	assert.Equal(t, "Finally, my point.", got.Statements[0].Content)
}

func TestEngine_SaturatedEngineSkipsAllocation(t *testing.T) {
	slow := newSlowStrategy()
	e, _ := newEngine(t, testutil.NewClock(), slow, func(o *Options) {
		o.Config.MaxConcurrentInvocations = 1
	})
	a, err := e.CreateSession(context.Background(), "AI safety", core.DefaultProtocol, panel())
	require.NoError(t, err)
	b, err := e.CreateSession(context.Background(), "Nuclear power", core.DefaultProtocol, panel())
	require.NoError(t, err)

	require.NoError(t, e.AllocateTurn(context.Background(), a.ID))
	<-slow.started
	require.NoError(t, e.AllocateTurn(context.Background(), b.ID))
	assert.False(t, e.InFlight(b.ID))

	close(slow.release)
	e.Wait()

	got, err := e.Snapshot(b.ID)
	require.NoError(t, err)
	assert.Zero(t, got.TurnCount)
}

func TestEngine_DeleteDiscardsInFlightResult(t *testing.T) {
	slow := newSlowStrategy()
	var failures atomic.Int32
	e, log := newEngine(t, testutil.NewClock(), slow)
	e.Callbacks().RegisterCallback(NewFunctionCallback(CallbackOnError, func(context.Context, *CallbackContext) error {
		failures.Add(1)
		return nil
	}))

	snap, err := e.CreateSession(context.Background(), "AI safety", core.DefaultProtocol, panel())
	require.NoError(t, err)
	require.NoError(t, e.AllocateTurn(context.Background(), snap.ID))
	<-slow.started

	require.NoError(t, e.Delete(snap.ID))
	e.Wait()

	assert.Zero(t, log.count(core.EventStatementAdded))
	assert.Zero(t, failures.Load())
	assert.False(t, e.InFlight(snap.ID))
	_, err = e.Snapshot(snap.ID)
	require.ErrorIs(t, err, core.ErrSessionNotFound)
	require.ErrorIs(t, e.AllocateTurn(context.Background(), snap.ID), core.ErrSessionNotFound)
}

func TestEngine_TickExecutesOneActionPerSession(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewClock()
	e, _ := newEngine(t, clock, scripted(nil))
	snap, err := e.CreateSession(ctx, "AI safety", core.DefaultProtocol, panel())
	require.NoError(t, err)

	clock.Advance(13 * time.Second)
	assert.Equal(t, 1, e.Tick(ctx)) // stall
	e.Wait()

	assert.Equal(t, 1, e.Tick(ctx)) // dominance
	e.Wait()

	assert.Equal(t, 0, e.Tick(ctx)) // right after an interjection

	got, err := e.Snapshot(snap.ID)
	require.NoError(t, err)
	require.Len(t, got.Statements, 2)
	assert.Equal(t, "ethicist", got.Statements[0].ParticipantID)
	assert.Equal(t, core.ModeratorID, got.Statements[1].ParticipantID)
	assert.Equal(t, core.ModeratorID, got.Speaker.ParticipantID)
}

func TestEngine_TickSweepsIdleSessions(t *testing.T) {
	clock := testutil.NewClock()
	e, _ := newEngine(t, clock, scripted(nil))
	snap, err := e.CreateSession(context.Background(), "AI safety", core.DefaultProtocol, panel())
	require.NoError(t, err)

	clock.Advance(31 * time.Minute)
	assert.Equal(t, 0, e.Tick(context.Background()))
	_, err = e.Snapshot(snap.ID)
	require.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestEngine_InterjectIsNotRemembered(t *testing.T) {
	e, log := newEngine(t, testutil.NewClock(), scripted(nil))
	snap, err := e.CreateSession(context.Background(), "AI safety", core.DefaultProtocol, panel())
	require.NoError(t, err)

	require.NoError(t, e.Interject(context.Background(), snap.ID, "Let us hear from everyone."))

	got, err := e.Snapshot(snap.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.TurnCount)
	assert.True(t, got.Statements[0].IsModerator())
	assert.Equal(t, core.ModeratorID, got.Speaker.ParticipantID)
	assert.Zero(t, e.memory.For(snap.ID, core.ModeratorID).Len())
	assert.Equal(t, 1, log.count(core.EventStatementAdded))
}

func TestEngine_AgreementFormsCoalition(t *testing.T) {
	e, log := newEngine(t, testutil.NewClock(), scripted(map[string]string{
		"economist": "I agree with Dr. Amara Osei that oversight matters. Markets alone will not fix this.",
	}))
	snap, err := e.CreateSession(context.Background(), "AI safety", core.DefaultProtocol, panel())
	require.NoError(t, err)

	turn(t, e, snap.ID) // ethicist
	turn(t, e, snap.ID) // economist

	got, err := e.Snapshot(snap.ID)
	require.NoError(t, err)
	require.Len(t, got.Coalitions, 1)
	c := got.Coalitions[0]
	assert.ElementsMatch(t, []string{"ethicist", "economist"}, c.Members)
	assert.Equal(t, "I agree with Dr. Amara Osei that oversight matters.", c.Position)
	assert.Equal(t, 44, got.Consensus)

	require.Equal(t, 1, log.count(core.EventCoalitionFormed))
	types := log.types()
	assert.Equal(t, core.EventCoalitionFormed, types[len(types)-1])
	assert.Len(t, e.memory.For(snap.ID, "ethicist").Coalitions(), 1)
}

func TestEngine_FormCoalitionTriggersProgression(t *testing.T) {
	ctx := context.Background()
	e, log := newEngine(t, testutil.NewClock(), scripted(nil))
	snap, err := e.CreateSession(ctx, "AI safety", core.DefaultProtocol, panel())
	require.NoError(t, err)

	for range 4 {
		_, err := e.Advance(ctx, snap.ID)
		require.NoError(t, err)
	}
	got, err := e.Snapshot(snap.ID)
	require.NoError(t, err)
	require.Equal(t, core.PhaseCoalitionBuilding, got.Phase)

	_, err = e.FormCoalition(ctx, snap.ID, []string{"ethicist", "economist", "engineer"}, "regulate frontier models", 1, "shared concern")
	require.NoError(t, err)

	got, err = e.Snapshot(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Consensus)
	assert.Equal(t, core.PhaseSynthesis, got.Phase)
	assert.Equal(t, core.EventPhaseChanged, log.last().Type)

	_, err = e.FormCoalition(ctx, snap.ID, []string{"nobody"}, "x", 1, "")
	require.ErrorIs(t, err, core.ErrParticipantNotFound)
}

func TestEngine_CompletionSynthesizesOutcome(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemoryLedger()
	rec := ledger.NewRecorder(store)
	var outcomes atomic.Int32
	e, log := newEngine(t, testutil.NewClock(), scripted(nil), func(o *Options) { o.Recorder = rec })
	e.Callbacks().RegisterCallback(NewFunctionCallback(CallbackOnOutcome, func(_ context.Context, cc *CallbackContext) error {
		outcomes.Add(1)
		return nil
	}))

	snap, err := e.CreateSession(ctx, "AI safety", core.DefaultProtocol, panel())
	require.NoError(t, err)
	turn(t, e, snap.ID)
	turn(t, e, snap.ID)

	var got core.Snapshot
	for got.Phase != core.PhaseCompleted {
		got, err = e.Advance(ctx, snap.ID)
		require.NoError(t, err)
	}
	_, err = e.Advance(ctx, snap.ID)
	require.NoError(t, err)

	require.NotNil(t, got.Outcome)
	assert.Equal(t, snap.ID, got.Outcome.SessionID)
	assert.Equal(t, 2, got.Outcome.TurnCount)
	assert.False(t, got.Outcome.ThresholdMet)
	assert.Contains(t, got.Outcome.Positions["ethicist"], "Dr. Amara Osei makes point 1.")
	assert.Contains(t, got.Outcome.Positions["economist"], "Lena Fischer makes point 2.")
	assert.NotContains(t, got.Outcome.Positions, "engineer")
	assert.Equal(t, int32(1), outcomes.Load())
	assert.Equal(t, core.EventStateSync, log.last().Type)

	closeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, rec.Close(closeCtx))
	entries := store.Entries(snap.ID)
	require.Len(t, entries, 3)
	assert.Equal(t, core.LedgerStatement, entries[0].Kind)
	assert.Equal(t, core.LedgerOutcome, entries[2].Kind)
}

func TestEngine_BeforeTurnVeto(t *testing.T) {
	e, log := newEngine(t, testutil.NewClock(), scripted(nil))
	e.Callbacks().RegisterCallback(NewFunctionCallback(CallbackBeforeTurn, func(_ context.Context, cc *CallbackContext) error {
		if cc.ParticipantID == "ethicist" {
			return errors.New("muted")
		}
		return nil
	}))
	snap, err := e.CreateSession(context.Background(), "AI safety", core.DefaultProtocol, panel())
	require.NoError(t, err)

	turn(t, e, snap.ID)

	got, err := e.Snapshot(snap.ID)
	require.NoError(t, err)
	assert.Zero(t, got.TurnCount)
	assert.Zero(t, log.count(core.EventStatementAdded))
}

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Debug(string, ...any) {}
func (l *recordingLogger) Info(string, ...any)  {}
func (l *recordingLogger) Error(string, ...any) {}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *recordingLogger) warned() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.warns...)
}

func TestEngine_FailingCallbackIsLogged(t *testing.T) {
	logger := &recordingLogger{}
	e, log := newEngine(t, testutil.NewClock(), scripted(nil), func(o *Options) { o.Logger = logger })
	e.Callbacks().RegisterCallback(NewFunctionCallback(CallbackAfterStatement, func(context.Context, *CallbackContext) error {
		return errors.New("boom")
	}))
	snap, err := e.CreateSession(context.Background(), "AI safety", core.DefaultProtocol, panel())
	require.NoError(t, err)

	turn(t, e, snap.ID)

	got, err := e.Snapshot(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TurnCount)
	assert.Equal(t, 1, log.count(core.EventStatementAdded))
	assert.Contains(t, logger.warned(), "engine.callback.failed")
}

func TestEngine_DeferredWhenPolicyDeclines(t *testing.T) {
	e, _ := newEngine(t, testutil.NewClock(), scripted(nil), func(o *Options) {
		o.Moderator = moderator.New(func(mo *moderator.Options) { mo.Policy = moderator.NeverInterrupt })
	})
	snap, err := e.CreateSession(context.Background(), "AI safety", core.DefaultProtocol, panel())
	require.NoError(t, err)
	require.NoError(t, e.Interject(context.Background(), snap.ID, "Let us slow down."))

	turn(t, e, snap.ID)

	got, err := e.Snapshot(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TurnCount, "the moderator keeps the floor")
}

func TestEngine_FinishedSpeakerDoesNotHoldFloor(t *testing.T) {
	e, _ := newEngine(t, testutil.NewClock(), scripted(nil), func(o *Options) {
		o.Moderator = moderator.New(func(mo *moderator.Options) { mo.Policy = moderator.NeverInterrupt })
	})
	snap, err := e.CreateSession(context.Background(), "AI safety", core.DefaultProtocol, panel())
	require.NoError(t, err)

	turn(t, e, snap.ID)
	turn(t, e, snap.ID)
	turn(t, e, snap.ID)

	got, err := e.Snapshot(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.TurnCount)
	assert.False(t, got.Speaker.FinishedAt.IsZero())
	assert.Zero(t, got.Speaker.Interruptions)
}

func TestEngine_InterruptionsAreCounted(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, testutil.NewClock(), scripted(nil))
	snap, err := e.CreateSession(ctx, "AI safety", core.DefaultProtocol, panel())
	require.NoError(t, err)

	require.NoError(t, e.Interject(ctx, snap.ID, "Order, please."))
	turn(t, e, snap.ID)
	require.NoError(t, e.Interject(ctx, snap.ID, "Order again."))
	turn(t, e, snap.ID)

	got, err := e.Snapshot(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.TurnCount)
	assert.NotEqual(t, core.ModeratorID, got.Speaker.ParticipantID)
	assert.Equal(t, 2, got.Speaker.Interruptions)
}

func TestEngine_DefaultPolicyKeepsCadence(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewClock()
	e, _ := newEngine(t, clock, scripted(nil), func(o *Options) {
		o.Moderator = moderator.New(func(mo *moderator.Options) {
			mo.Policy = &moderator.ProbabilisticPolicy{MonopolyBonus: 0.2, Rand: func() float64 { return 0.5 }}
		})
	})
	snap, err := e.CreateSession(ctx, "AI safety", core.DefaultProtocol, panel())
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		clock.Advance(9 * time.Second)
		e.Tick(ctx)
		e.Wait()
	}

	got, err := e.Snapshot(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, got.TurnCount, "every cadence allocation hands over the floor")
	for i := 1; i < len(got.Statements); i++ {
		assert.NotEqual(t, got.Statements[i-1].ParticipantID, got.Statements[i].ParticipantID)
	}
}

func TestEngine_RunStopsOnCancel(t *testing.T) {
	e, _ := newEngine(t, testutil.NewClock(), scripted(nil), func(o *Options) {
		o.Config.TickInterval = time.Millisecond
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	require.NoError(t, e.Close(context.Background()))
}
