package core

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Coalition is a recorded group of participants sharing a position.
type Coalition struct {
	ID       string    `json:"id"`
	Members  []string  `json:"members"`
	Position string    `json:"position"`
	Strength float64   `json:"strength"`
	Reason   string    `json:"reason,omitempty"`
	FormedAt time.Time `json:"formed_at"`
}

// NewCoalition creates a coalition with a fresh id. Strength is clamped to
// [0,1] and duplicate members are collapsed.
func NewCoalition(members []string, position string, strength float64, reason string) Coalition {
	return Coalition{
		ID:       uuid.NewString(),
		Members:  dedupe(members),
		Position: position,
		Strength: clamp01(strength),
		Reason:   reason,
		FormedAt: time.Now(),
	}
}

// HasMember reports whether id belongs to the coalition.
func (c Coalition) HasMember(id string) bool {
	for _, m := range c.Members {
		if m == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the coalition.
func (c Coalition) Clone() Coalition {
	cc := c
	cc.Members = append([]string(nil), c.Members...)
	return cc
}

// ConsensusScore derives the 0-100 consensus measure from coalition
// structure: the largest roster share held by a single coalition, weighted by
// its strength. Members outside the roster are ignored. No coalitions or an
// empty roster yields 0.
func ConsensusScore(coalitions []Coalition, roster []string) int {
	if len(coalitions) == 0 || len(roster) == 0 {
		return 0
	}
	inRoster := make(map[string]struct{}, len(roster))
	for _, id := range roster {
		inRoster[id] = struct{}{}
	}
	best := 0.0
	for _, c := range coalitions {
		n := 0
		for _, m := range c.Members {
			if _, ok := inRoster[m]; ok {
				n++
			}
		}
		v := float64(n) / float64(len(inRoster)) * clamp01(c.Strength)
		if v > best {
			best = v
		}
	}
	score := int(math.Round(best * 100))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
