package invoker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agora/core"
	"github.com/hupe1980/agora/internal/testutil"
	"github.com/hupe1980/agora/model"
	"github.com/hupe1980/agora/tool"
)

func fastRetry(o *CompletionOptions) {
	o.InitialInterval = time.Millisecond
	o.MaxInterval = 2 * time.Millisecond
}

func debateRequest(t *testing.T, budget int) Request {
	t.Helper()
	ps := testutil.Participants(3)
	ps[0].Delegate = "ethicist-tool"
	ps[0].Persona = "A cautious ethicist."
	sess := testutil.NewSessionBuilder("s1").
		Topic("AI safety").
		Participants(ps...).
		ModelCallBudget(budget).
		Speak("p2", "We should slow down.").
		Build()
	return Request{
		Snapshot:     sess.Snapshot(),
		Participant:  ps[0],
		MemoryDigest: "- [initialization] Earlier point (0 citations)",
		Limiter:      sess.Limiter(),
	}
}

func serverError() error {
	return &model.APIError{Provider: "mock", StatusCode: 503, Err: errors.New("overloaded")}
}

func TestInvoker_DelegateTier(t *testing.T) {
	var got tool.Request
	reg := tool.NewRegistry(tool.Func{ID: "ethicist-tool", Fn: func(ctx context.Context, req tool.Request) (tool.Response, error) {
		got = req
		return tool.Response{Content: "According to the charter, caution wins."}, nil
	}})
	m := model.NewMockModel("mock", "mock")
	inv := New([]Strategy{NewDelegateStrategy(reg, nil), NewCompletionStrategy(m, fastRetry)})

	res := inv.Invoke(context.Background(), debateRequest(t, 0))

	assert.Equal(t, TierDelegate, res.Tier)
	assert.Equal(t, DelegateConfidence, res.Confidence)
	assert.Equal(t, []string{"ethicist-tool"}, res.ToolsUsed)
	assert.Equal(t, []string{"According to the charter, caution wins."}, res.Citations)
	assert.Equal(t, 0, m.Calls())
	assert.Equal(t, "AI safety", got.Topic)
	assert.Contains(t, got.Prompt, "A cautious ethicist.")
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "Participant 2", got.Messages[0].Name)
}

func TestInvoker_DelegateCitationsCapped(t *testing.T) {
	sources := make([]string, 8)
	for i := range sources {
		sources[i] = fmt.Sprintf("source %d", i+1)
	}
	reg := tool.NewRegistry(tool.Func{ID: "ethicist-tool", Fn: func(context.Context, tool.Request) (tool.Response, error) {
		return tool.Response{Content: "Plenty of sources agree.", Citations: sources}, nil
	}})
	inv := New([]Strategy{NewDelegateStrategy(reg, nil)})

	res := inv.Invoke(context.Background(), debateRequest(t, 0))

	assert.Equal(t, TierDelegate, res.Tier)
	require.Len(t, res.Citations, MaxCitations)
	assert.Equal(t, "source 1", res.Citations[0])
	assert.Equal(t, "source 5", res.Citations[MaxCitations-1])
	assert.Len(t, sources, 8, "the delegate's slice is not modified")
}

func TestInvoker_DelegateUnavailableFallsThrough(t *testing.T) {
	m := model.NewMockModel("mock", "mock").QueueText("A model answer.")
	inv := New([]Strategy{NewDelegateStrategy(tool.NewRegistry(), nil), NewCompletionStrategy(m, fastRetry)})

	res := inv.Invoke(context.Background(), debateRequest(t, 0))

	assert.Equal(t, TierCompletion, res.Tier)
	assert.Equal(t, CompletionConfidence, res.Confidence)
	assert.Equal(t, "A model answer.", res.Statement)
}

func TestCompletion_RetriesTransientErrors(t *testing.T) {
	m := model.NewMockModel("mock", "mock").
		QueueError(serverError()).
		QueueError(&model.APIError{Provider: "mock", StatusCode: 429, Err: errors.New("slow down")}).
		QueueText("Third time lucky.")
	s := NewCompletionStrategy(m, fastRetry)

	res, err := s.Attempt(context.Background(), debateRequest(t, 0))
	require.NoError(t, err)
	assert.Equal(t, "Third time lucky.", res.Statement)
	assert.Equal(t, 3, m.Calls())
}

func TestCompletion_AbortsOnPermanentError(t *testing.T) {
	m := model.NewMockModel("mock", "mock").
		QueueError(&model.APIError{Provider: "mock", StatusCode: 400, Err: errors.New("bad request")}).
		QueueText("never used")
	s := NewCompletionStrategy(m, fastRetry)

	_, err := s.Attempt(context.Background(), debateRequest(t, 0))
	require.Error(t, err)
	assert.Equal(t, 1, m.Calls())
}

func TestInvoker_StaticAfterExhaustedRetries(t *testing.T) {
	m := model.NewMockModel("mock", "mock").
		QueueError(serverError()).
		QueueError(serverError()).
		QueueError(serverError()).
		QueueText("too late")
	inv := New([]Strategy{NewCompletionStrategy(m, fastRetry)})

	res := inv.Invoke(context.Background(), debateRequest(t, 0))

	assert.Equal(t, 3, m.Calls())
	assert.Equal(t, TierStatic, res.Tier)
	assert.Equal(t, StaticConfidence, res.Confidence)
	assert.NotEmpty(t, res.Statement)
}

func TestCompletion_BudgetExhausted(t *testing.T) {
	m := model.NewMockModel("mock", "mock").QueueError(serverError())
	req := debateRequest(t, 1)
	s := NewCompletionStrategy(m, fastRetry)

	_, err := s.Attempt(context.Background(), req)
	require.ErrorIs(t, err, core.ErrModelBudgetExceeded)
	assert.Equal(t, 1, m.Calls())
	assert.Equal(t, 0, req.Limiter.Remaining())
}

func TestInvoker_CachesPerTurn(t *testing.T) {
	m := model.NewMockModel("mock", "mock").QueueText("first").QueueText("second")
	inv := New([]Strategy{NewCompletionStrategy(m, fastRetry)})
	req := debateRequest(t, 0)

	a := inv.Invoke(context.Background(), req)
	b := inv.Invoke(context.Background(), req)
	assert.Equal(t, a, b)
	assert.Equal(t, 1, m.Calls())

	req.Snapshot.TurnCount++
	c := inv.Invoke(context.Background(), req)
	assert.Equal(t, "second", c.Statement)

	inv.Forget("s1")
	d := inv.Invoke(context.Background(), req)
	assert.NotEqual(t, "second", d.Statement)
}

func TestInvoker_NeverEmpty(t *testing.T) {
	empty := StrategyFunc{ID: "empty", Fn: func(context.Context, Request) (Result, error) {
		return Result{Statement: "   "}, nil
	}}
	failing := StrategyFunc{ID: "failing", Fn: func(context.Context, Request) (Result, error) {
		return Result{}, errors.New("boom")
	}}
	inv := New([]Strategy{empty, failing}, func(o *Options) { o.Fallback = failing })

	res := inv.Invoke(context.Background(), debateRequest(t, 0))
	assert.NotEmpty(t, strings.TrimSpace(res.Statement))
	assert.Equal(t, StaticConfidence, res.Confidence)
}

func TestStaticStrategy_UsesPriorSpeaker(t *testing.T) {
	s := NewStaticStrategy().WithPicker(func(int) int { return 3 })

	res, err := s.Attempt(context.Background(), debateRequest(t, 0))
	require.NoError(t, err)
	assert.Equal(t, "Building on what Participant 2 said, we should ask who bears the cost of AI safety.", res.Statement)
	assert.Equal(t, TierStatic, res.Tier)
}

func TestStaticStrategy_AllTemplatesRender(t *testing.T) {
	req := debateRequest(t, 0)
	req.Snapshot.Statements = nil
	for i := range staticTemplates {
		s := NewStaticStrategy().WithPicker(func(int) int { return i })
		res, err := s.Attempt(context.Background(), req)
		require.NoError(t, err)
		assert.Contains(t, res.Statement, "AI safety")
		assert.NotContains(t, res.Statement, "{{")
	}
}
