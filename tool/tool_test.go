package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agora/core"
	"github.com/hupe1980/agora/model"
)

var _ Delegate = Func{}

func TestRegistry_Get(t *testing.T) {
	d := Func{ID: "ethicist", Fn: func(ctx context.Context, req Request) (Response, error) {
		return Response{Content: "hello " + req.ParticipantID}, nil
	}}
	r := NewRegistry(d)

	got, err := r.Get("ethicist")
	require.NoError(t, err)
	assert.True(t, got.Available(context.Background()))
	resp, err := got.Invoke(context.Background(), Request{ParticipantID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, "hello p1", resp.Content)

	_, err = r.Get("missing")
	require.ErrorIs(t, err, core.ErrDelegateUnavailable)
	_, err = r.Get("")
	require.ErrorIs(t, err, core.ErrDelegateUnavailable)

	var nilRegistry *Registry
	_, err = nilRegistry.Get("ethicist")
	require.ErrorIs(t, err, core.ErrDelegateUnavailable)

	assert.Equal(t, []string{"ethicist"}, r.Names())
}

func TestToArgs(t *testing.T) {
	args, err := ToArgs(Request{
		SessionID:     "s1",
		ParticipantID: "p1",
		Topic:         "AI",
		Phase:         core.PhaseSynthesis,
		Prompt:        "speak",
		Messages: []model.Message{
			{Role: model.RoleUser, Name: "Ada", Content: "first"},
			{Role: model.RoleUser, Content: "second"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "synthesis", args["phase"])
	assert.Equal(t, "Ada: first\nsecond", args["transcript"])

	args, err = ToArgs(Request{SessionID: "s1"})
	require.NoError(t, err)
	assert.NotContains(t, args, "transcript")
}

func TestDelegateError(t *testing.T) {
	err := NewDelegateError("d", "boom", "remote")
	assert.Equal(t, "delegate error [remote] in d: boom", err.Error())
	assert.Equal(t, "delegate error in d: boom", (&DelegateError{Delegate: "d", Message: "boom"}).Error())
}
