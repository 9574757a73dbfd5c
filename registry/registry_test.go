package registry

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agora/core"
)

func TestRegistry_GetAndResolve(t *testing.T) {
	r, err := New(core.Participant{ID: "a", Name: "Alice"}, core.Participant{ID: "b"})
	require.NoError(t, err)

	p, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.Name)

	_, err = r.Get("nope")
	require.ErrorIs(t, err, core.ErrParticipantNotFound)

	ps, err := r.Resolve([]string{"b", "a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, []string{ps[0].ID, ps[1].ID})

	all, err := r.Resolve(nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = r.Resolve([]string{"a", "ghost"})
	require.ErrorIs(t, err, core.ErrParticipantNotFound)
}

func TestRegistry_RejectsBadIDs(t *testing.T) {
	_, err := New(core.Participant{ID: "a"}, core.Participant{ID: "a"})
	assert.Error(t, err)
	_, err = New(core.Participant{ID: "  "})
	assert.Error(t, err)
	_, err = New(core.Participant{ID: core.ModeratorID})
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	r := Default()
	assert.Equal(t, 5, r.Len())
	p, err := r.Get("ethicist")
	require.NoError(t, err)
	assert.Contains(t, p.Keywords, "safety")
}

func TestLoad_GlobMixedFormats(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "panels/a/one.yaml", []byte(`
- id: ethicist
  name: Ethicist
  keywords: [ethics]
`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "panels/b/two.jsonc", []byte(`{
  // second panel
  "participants": [
    {"id": "economist", "name": "Economist", "keywords": ["cost",],},
  ],
}`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "panels/readme.md", []byte("ignored"), 0o644))

	r, err := Load(fs, "panels/**/*.{yaml,jsonc}")
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())

	p, err := r.Get("economist")
	require.NoError(t, err)
	assert.Equal(t, []string{"cost"}, p.Keywords)
}

func TestLoad_Errors(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := Load(fs, "*.yaml")
	assert.Error(t, err)

	require.NoError(t, afero.WriteFile(fs, "a.yaml", []byte("- id: x\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "b.yaml", []byte("- id: x\n"), 0o644))
	_, err = Load(fs, "*.yaml")
	assert.ErrorContains(t, err, "duplicate")
}
