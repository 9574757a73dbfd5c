package agora

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agora/config"
	"github.com/hupe1980/agora/core"
	"github.com/hupe1980/agora/ledger"
	"github.com/hupe1980/agora/moderator"
)

func fastConfig() *config.Config {
	cfg := config.Default()
	cfg.Engine.TickInterval = 2 * time.Millisecond
	cfg.Moderator.StallThreshold = time.Millisecond
	cfg.Moderator.TurnInterval = time.Millisecond
	return cfg
}

var alwaysInterrupt = moderator.InterruptionPolicyFunc(func(core.Speaker, float64, core.Protocol, time.Time) bool { return true })

func TestAgora_Deliberate(t *testing.T) {
	l := ledger.NewInMemoryLedger()
	a := New(func(o *Options) {
		o.Config = fastConfig()
		o.Ledger = l
		o.Policy = alwaysInterrupt
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	final, events, err := a.Deliberate(ctx, "Should AI be regulated?", []string{"ethicist", "economist", "engineer"}, core.Protocol{MaxTurns: 3})
	require.NoError(t, err)
	require.NotNil(t, final.Outcome)
	assert.Equal(t, core.PhaseCompleted, final.Phase)
	assert.NotEmpty(t, events)
	assert.Equal(t, 70, final.Protocol.ConsensusThresholdPercent, "zero protocol fields take configured defaults")

	require.NoError(t, a.Close(context.Background()))

	entries := l.Entries(final.ID)
	require.NotEmpty(t, entries)
	assert.Equal(t, core.LedgerOutcome, entries[len(entries)-1].Kind)
}

func TestAgora_CreateSessionUnknownParticipant(t *testing.T) {
	a := New()
	defer func() { _ = a.Close(context.Background()) }()

	_, err := a.CreateSession(context.Background(), "topic", []string{"ethicist", "astronaut"}, core.Protocol{})
	require.ErrorIs(t, err, core.ErrParticipantNotFound)
}

func TestAgora_CreateSessionAllParticipants(t *testing.T) {
	a := New()
	defer func() { _ = a.Close(context.Background()) }()

	snap, err := a.CreateSession(context.Background(), "topic", nil, core.Protocol{})
	require.NoError(t, err)
	assert.Len(t, snap.Participants, a.Registry().Len())
	assert.Equal(t, core.PhaseInitialization, snap.Phase)
}

func TestFromConfig(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "panel/core.yaml", []byte(`
- id: optimist
  name: Ada Bright
  keywords: [growth]
- id: skeptic
  name: Carl Doubt
  keywords: [risk]
`), 0o644))

	cfg := fastConfig()
	cfg.Participants.Glob = "panel/*.yaml"
	cfg.Ledger.Path = "ledger.jsonl"

	a, err := FromConfig(cfg, fs, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, a.Registry().Len())

	snap, err := a.CreateSession(context.Background(), "topic", nil, core.Protocol{})
	require.NoError(t, err)
	require.NoError(t, a.Engine().Interject(context.Background(), snap.ID, "Welcome."))
	require.NoError(t, a.Close(context.Background()))

	data, err := afero.ReadFile(fs, "ledger.jsonl")
	require.NoError(t, err)
	assert.Contains(t, string(data), snap.ID)
}

func TestFromConfig_NoMatches(t *testing.T) {
	cfg := config.Default()
	cfg.Participants.Glob = "missing/*.yaml"
	_, err := FromConfig(cfg, afero.NewMemMapFs(), nil)
	require.Error(t, err)
}

func TestNewModel(t *testing.T) {
	m, err := NewModel(config.ModelConfig{Provider: config.ProviderStatic})
	require.NoError(t, err)
	assert.Nil(t, m)

	m, err = NewModel(config.ModelConfig{Provider: config.ProviderOpenAI, APIKey: "sk-test"})
	require.NoError(t, err)
	assert.NotNil(t, m)

	m, err = NewModel(config.ModelConfig{Provider: config.ProviderAnthropic, Name: "claude-sonnet-4-5", APIKey: "test"})
	require.NoError(t, err)
	assert.NotNil(t, m)

	_, err = NewModel(config.ModelConfig{Provider: "llama"})
	require.Error(t, err)
}

func TestNewDelegates(t *testing.T) {
	ds := NewDelegates([]config.DelegateConfig{
		{Name: "ethics-tool", Endpoint: "http://127.0.0.1:1/mcp"},
		{Name: "econ-tool", Command: []string{"econ-mcp"}, Tool: "speak"},
	})
	require.Len(t, ds, 2)
	assert.Equal(t, "ethics-tool", ds[0].Name())
	assert.Equal(t, "econ-tool", ds[1].Name())
}
