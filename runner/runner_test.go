package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agora/core"
	"github.com/hupe1980/agora/engine"
	"github.com/hupe1980/agora/event"
	"github.com/hupe1980/agora/internal/testutil"
	"github.com/hupe1980/agora/moderator"
)

func newRunner(t *testing.T, optFns ...func(o *Options)) (*Runner, *engine.Engine) {
	t.Helper()
	return newRunnerWithBuffer(t, 512, optFns...)
}

func newRunnerWithBuffer(t *testing.T, busBuffer int, optFns ...func(o *Options)) (*Runner, *engine.Engine) {
	t.Helper()
	bus := event.NewBus(func(o *event.Options) { o.Buffer = busBuffer })
	t.Cleanup(func() { _ = bus.Close() })

	eng := engine.New(func(o *engine.Options) {
		o.Broadcaster = bus
		o.Moderator = moderator.New(func(mo *moderator.Options) {
			mo.Config.StallThreshold = time.Millisecond
			mo.Config.TurnInterval = time.Millisecond
			mo.Policy = moderator.InterruptionPolicyFunc(func(core.Speaker, float64, core.Protocol, time.Time) bool { return true })
		})
	})
	return New(eng, bus, append([]func(o *Options){func(o *Options) { o.TickInterval = 2 * time.Millisecond }}, optFns...)...), eng
}

func TestRunner_RunSyncReachesOutcome(t *testing.T) {
	r, _ := newRunner(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	final, events, err := r.RunSync(ctx, "AI safety", core.Protocol{MaxTurns: 3}, testutil.Participants(3))
	require.NoError(t, err)

	require.NotNil(t, final.Outcome)
	assert.Equal(t, core.PhaseCompleted, final.Phase)
	assert.GreaterOrEqual(t, final.TurnCount, 3)
	require.NotEmpty(t, events)
	assert.Equal(t, core.EventStateSync, events[len(events)-1].Type)
	for _, env := range events {
		assert.Equal(t, final.ID, env.SessionID)
	}
}

func TestRunner_Cancel(t *testing.T) {
	r, eng := newRunner(t)

	// A far away turn budget keeps the run alive until cancelled.
	id, eventsCh, errorsCh, err := r.Run(context.Background(), "AI safety", core.DefaultProtocol, testutil.Participants(2))
	require.NoError(t, err)

	require.NoError(t, r.Cancel(id))
	for range eventsCh {
	}
	assert.NoError(t, <-errorsCh)
	require.Error(t, r.Cancel(id))

	_, err = eng.Snapshot(id)
	require.NoError(t, err, "cancelling a run keeps the session")
}

func TestRunner_SessionDeleted(t *testing.T) {
	r, eng := newRunner(t)
	id, eventsCh, errorsCh, err := r.Run(context.Background(), "AI safety", core.DefaultProtocol, testutil.Participants(2))
	require.NoError(t, err)

	require.NoError(t, eng.Delete(id))
	for range eventsCh {
	}
	require.ErrorIs(t, <-errorsCh, core.ErrSessionNotFound)
}

func TestRunner_IgnoresOtherSessions(t *testing.T) {
	r, eng := newRunner(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	other, err := eng.CreateSession(ctx, "Other topic", core.DefaultProtocol, testutil.Participants(2))
	require.NoError(t, err)

	final, events, err := r.RunSync(ctx, "AI safety", core.Protocol{MaxTurns: 3}, testutil.Participants(3))
	require.NoError(t, err)
	require.NotNil(t, final.Outcome)
	for _, env := range events {
		assert.NotEqual(t, other.ID, env.SessionID)
	}
}

func TestRunner_SlowConsumerStillConcludes(t *testing.T) {
	// A one slot bus buffer and an unbuffered event channel make the bus drop
	// events, possibly the final state_sync, while the consumer lags.
	r, _ := newRunnerWithBuffer(t, 1, func(o *Options) { o.EventBufferSize = 0 })
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, eventsCh, errorsCh, err := r.Run(ctx, "AI safety", core.Protocol{MaxTurns: 3}, testutil.Participants(3))
	require.NoError(t, err)

	var final core.Snapshot
	concluded := false
	for env := range eventsCh {
		time.Sleep(5 * time.Millisecond)
		assert.Equal(t, id, env.SessionID)
		if snap, ok := Concluded(env); ok {
			final = snap
			concluded = true
		}
	}
	require.NoError(t, <-errorsCh)
	require.True(t, concluded, "run must end with the outcome")
	require.NotNil(t, final.Outcome)
	assert.Equal(t, core.PhaseCompleted, final.Phase)
}
