// Package registry is the closed participant directory. Lookups are keyed by
// stable id and fail with core.ErrParticipantNotFound instead of returning a
// zero value. Profiles load from YAML or JSONC files matched by a glob.
package registry

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agora/core"
)

//go:embed participants.yaml
var defaultProfiles []byte

// Registry holds participant profiles in registration order. Safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]core.Participant
	order []string
}

// New creates a registry from profiles. Ids must be unique and non-empty.
func New(participants ...core.Participant) (*Registry, error) {
	r := &Registry{byID: make(map[string]core.Participant, len(participants))}
	for _, p := range participants {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Default returns the built-in panel.
func Default() *Registry {
	ps, err := ParseYAML(defaultProfiles)
	if err != nil {
		panic(fmt.Sprintf("registry: built-in profiles: %v", err))
	}
	r, err := New(ps...)
	if err != nil {
		panic(fmt.Sprintf("registry: built-in profiles: %v", err))
	}
	return r
}

// Register adds a profile. A duplicate or empty id is an error.
func (r *Registry) Register(p core.Participant) error {
	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" {
		return fmt.Errorf("participant id is required")
	}
	if p.ID == core.ModeratorID {
		return fmt.Errorf("participant id %q is reserved", p.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[p.ID]; exists {
		return fmt.Errorf("duplicate participant id %q", p.ID)
	}
	r.byID[p.ID] = p
	r.order = append(r.order, p.ID)
	return nil
}

// Get returns the profile for id.
func (r *Registry) Get(id string) (core.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return core.Participant{}, fmt.Errorf("%w: %s", core.ErrParticipantNotFound, id)
	}
	return p, nil
}

// Resolve returns the profiles for ids in the given order. An empty ids
// list resolves to every registered participant.
func (r *Registry) Resolve(ids []string) ([]core.Participant, error) {
	if len(ids) == 0 {
		return r.All(), nil
	}
	out := make([]core.Participant, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		p, err := r.Get(id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// All returns every profile in registration order.
func (r *Registry) All() []core.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Participant, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Len returns the number of profiles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

type profileFile struct {
	Participants []core.Participant `json:"participants" yaml:"participants"`
}

// ParseYAML decodes either a bare list of profiles or a document with a
// top-level participants key.
func ParseYAML(data []byte) ([]core.Participant, error) {
	var list []core.Participant
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var doc profileFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse participants yaml: %w", err)
	}
	return doc.Participants, nil
}

// ParseJSONC decodes JSON with comments and trailing commas, in the same two
// shapes as ParseYAML.
func ParseJSONC(data []byte) ([]core.Participant, error) {
	data = jsonc.ToJSON(data)
	var list []core.Participant
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var doc profileFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse participants json: %w", err)
	}
	return doc.Participants, nil
}

// Load reads every file in fsys matching pattern (doublestar syntax, e.g.
// "participants/**/*.yaml") into a new registry. Files are read in lexical
// order; the extension selects the decoder.
func Load(fsys afero.Fs, pattern string) (*Registry, error) {
	matches, err := doublestar.Glob(afero.NewIOFS(fsys), pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no participant files match %q", pattern)
	}

	r := &Registry{byID: make(map[string]core.Participant)}
	for _, name := range matches {
		data, err := afero.ReadFile(fsys, name)
		if err != nil {
			return nil, err
		}
		var ps []core.Participant
		switch strings.ToLower(path.Ext(name)) {
		case ".yaml", ".yml":
			ps, err = ParseYAML(data)
		case ".json", ".jsonc":
			ps, err = ParseJSONC(data)
		default:
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		for _, p := range ps {
			if err := r.Register(p); err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
		}
	}
	return r, nil
}
