package model

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Model = (*MockModel)(nil)

func TestCollect_Final(t *testing.T) {
	m := NewMockModel("mock", "test")
	m.AddResponse("hi", "hello there")

	out, err := Collect(context.Background(), m, Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "hello there", out)
}

func TestCollect_StreamingUsesFinal(t *testing.T) {
	m := NewMockModel("mock", "test").QueueText("abc")

	out, err := Collect(context.Background(), m, Request{Stream: true})
	require.NoError(t, err)
	assert.Equal(t, "abc", out)
}

func TestCollect_Error(t *testing.T) {
	boom := errors.New("boom")
	m := NewMockModel("mock", "test").QueueError(boom).QueueText("later")

	_, err := Collect(context.Background(), m, Request{})
	require.ErrorIs(t, err, boom)

	out, err := Collect(context.Background(), m, Request{})
	require.NoError(t, err)
	assert.Equal(t, "later", out)
	assert.Equal(t, 2, m.Calls())
}

func TestAPIError_Retryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{429, true},
		{500, true},
		{503, true},
		{400, false},
		{401, false},
		{404, false},
	}
	for _, tt := range tests {
		err := fmt.Errorf("wrapped: %w", &APIError{Provider: "x", StatusCode: tt.status, Err: errors.New("e")})
		assert.Equal(t, tt.want, IsRetryable(err), "status %d", tt.status)
	}
	assert.False(t, IsRetryable(errors.New("plain")))
}
