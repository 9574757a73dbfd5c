package moderator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agora/core"
	"github.com/hupe1980/agora/internal/testutil"
)

type recordingExecutor struct {
	calls    []string
	messages []string
	err      error
}

func (r *recordingExecutor) AllocateTurn(_ context.Context, id string) error {
	r.calls = append(r.calls, "allocate:"+id)
	return r.err
}

func (r *recordingExecutor) Interject(_ context.Context, id, msg string) error {
	r.calls = append(r.calls, "interject:"+id)
	r.messages = append(r.messages, msg)
	return r.err
}

func (r *recordingExecutor) AdvancePhase(_ context.Context, id string) error {
	r.calls = append(r.calls, "advance:"+id)
	return r.err
}

func TestAssess_CircularityInterjects(t *testing.T) {
	clock := testutil.NewClock()
	ps := testutil.Participants(4)
	b := testutil.NewSessionBuilder("s1").Topic("AI safety regulation").Participants(ps...).Clock(clock)
	for i := range 16 {
		b.Speak(ps[i%4].ID, "another round")
	}
	sess := b.Build()
	_, err := sess.FormCoalition([]string{"p1"}, "regulate now", 0.8, "")
	require.NoError(t, err)

	snap := sess.Snapshot()
	require.Equal(t, 16, snap.TurnCount)
	require.Equal(t, 20, snap.Consensus)

	a := New().AssessState(snap, clock.Now())
	require.NotNil(t, a)
	assert.Equal(t, ActionInterject, a.Type)
	assert.Equal(t, RuleCircularity, a.Rule)
	assert.Contains(t, a.Message, "AI safety regulation")
}

func TestAssess_StallAllocates(t *testing.T) {
	clock := testutil.NewClock()
	sess := testutil.NewSessionBuilder("s1").Participants(testutil.Participants(2)...).Clock(clock).
		Speak("p1", "hello").Speak("p2", "hi").Build()

	m := New()
	assert.Nil(t, m.AssessState(sess.Snapshot(), clock.Now()))

	clock.Advance(13 * time.Second)
	a := m.AssessState(sess.Snapshot(), clock.Now())
	require.NotNil(t, a)
	assert.Equal(t, ActionAllocateTurn, a.Type)
	assert.Equal(t, RuleStall, a.Rule)
}

func TestAssess_Cadence(t *testing.T) {
	clock := testutil.NewClock()
	sess := testutil.NewSessionBuilder("s1").Participants(testutil.Participants(2)...).Clock(clock).Build()

	clock.Advance(9 * time.Second)
	for _, id := range []string{"p1", "p2"} {
		_, err := sess.RecordStatement(core.Statement{ParticipantID: id, Content: "late"})
		require.NoError(t, err)
	}

	a := New().AssessState(sess.Snapshot(), clock.Now())
	require.NotNil(t, a)
	assert.Equal(t, RuleCadence, a.Rule)

	sess.MarkAllocation()
	assert.Nil(t, New().AssessState(sess.Snapshot(), clock.Now()))
}

func TestAssess_Dominance(t *testing.T) {
	clock := testutil.NewClock()
	b := testutil.NewSessionBuilder("s1").Participants(testutil.Participants(3)...).Clock(clock)
	for range 5 {
		b.Speak("p1", "me again")
	}
	b.Speak("p2", "finally")
	b.Speak("p1", "and me")
	sess := b.Build()

	a := New().AssessState(sess.Snapshot(), clock.Now())
	require.NotNil(t, a)
	assert.Equal(t, ActionInterject, a.Type)
	assert.Equal(t, RuleDominance, a.Rule)
	assert.Equal(t, "p1", a.Target)
	assert.Contains(t, a.Message, "Participant 1")

	// The moderator's own statement suppresses a repeat interjection.
	_, err := sess.RecordStatement(core.Statement{ParticipantID: core.ModeratorID, Content: a.Message})
	require.NoError(t, err)
	assert.Nil(t, New().AssessState(sess.Snapshot(), clock.Now()))
}

func TestAssess_PassiveStyleSuppressesInterjections(t *testing.T) {
	clock := testutil.NewClock()
	proto := core.DefaultProtocol
	proto.InterventionStyle = core.InterventionPassive
	b := testutil.NewSessionBuilder("s1").Participants(testutil.Participants(3)...).Protocol(proto).Clock(clock)
	for range 6 {
		b.Speak("p1", "monologue")
	}

	assert.Nil(t, New().AssessState(b.Snapshot(), clock.Now()))
}

func TestAssess_EarlyPhaseTimeout(t *testing.T) {
	now := time.Now()
	snap := core.Snapshot{
		Phase:            core.PhaseInitialization,
		Protocol:         core.DefaultProtocol,
		TurnCount:        9,
		LastStatementAt:  now,
		LastAllocationAt: now,
	}

	a := New().AssessState(snap, now)
	require.NotNil(t, a)
	assert.Equal(t, ActionAdvancePhase, a.Type)
	assert.Equal(t, RuleEarlyTimeout, a.Rule)

	snap.TurnCount = 8
	assert.Nil(t, New().AssessState(snap, now))
}

func TestAssess_TurnBudgetAndCompleted(t *testing.T) {
	clock := testutil.NewClock()
	proto := core.DefaultProtocol
	proto.MaxTurns = 2
	sess := testutil.NewSessionBuilder("s1").Participants(testutil.Participants(3)...).Protocol(proto).Clock(clock).
		Speak("p1", "a").Speak("p2", "b").Build()

	clock.Advance(time.Minute)
	a := New().AssessState(sess.Snapshot(), clock.Now())
	require.NotNil(t, a)
	assert.Equal(t, RuleTurnBudget, a.Rule)

	for sess.Phase() != core.PhaseCompleted {
		_, _, _, err := sess.Advance()
		require.NoError(t, err)
	}
	assert.Nil(t, New().AssessState(sess.Snapshot(), clock.Now()))
}

func TestAssess_ConfigurableThresholds(t *testing.T) {
	clock := testutil.NewClock()
	sess := testutil.NewSessionBuilder("s1").Participants(testutil.Participants(2)...).Clock(clock).Speak("p1", "x").Build()
	clock.Advance(3 * time.Second)

	m := New(func(o *Options) {
		o.Config.StallThreshold = 2 * time.Second
	})
	a := m.AssessState(sess.Snapshot(), clock.Now())
	require.NotNil(t, a)
	assert.Equal(t, RuleStall, a.Rule)
	assert.Equal(t, 8*time.Second, m.Config().TurnInterval)
}

func TestExecuteAction_ExactlyOne(t *testing.T) {
	m := New()
	tests := []struct {
		action *Action
		want   []string
	}{
		{nil, nil},
		{&Action{Type: ActionAllocateTurn}, []string{"allocate:s1"}},
		{&Action{Type: ActionInterject, Message: "focus"}, []string{"interject:s1"}},
		{&Action{Type: ActionAdvancePhase}, []string{"advance:s1"}},
	}
	for _, tt := range tests {
		exec := &recordingExecutor{}
		require.NoError(t, m.ExecuteAction(context.Background(), exec, "s1", tt.action))
		assert.Equal(t, tt.want, exec.calls)
	}

	err := m.ExecuteAction(context.Background(), &recordingExecutor{}, "s1", &Action{Type: "dance"})
	assert.Error(t, err)

	boom := errors.New("boom")
	err = m.ExecuteAction(context.Background(), &recordingExecutor{err: boom}, "s1", &Action{Type: ActionAdvancePhase})
	assert.ErrorIs(t, err, boom)
}

func TestTick(t *testing.T) {
	clock := testutil.NewClock()
	sess := testutil.NewSessionBuilder("s1").Participants(testutil.Participants(2)...).Clock(clock).Build()
	clock.Advance(13 * time.Second)

	exec := &recordingExecutor{}
	a, err := New().Tick(context.Background(), exec, sess.Snapshot(), clock.Now())
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, []string{"allocate:s1"}, exec.calls)
}
