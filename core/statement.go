package core

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// ModeratorID is the reserved participant id used for moderator interjections.
const ModeratorID = "moderator"

// Statement is a single contribution to a session. Statements are immutable
// once appended; every accessor hands out copies.
type Statement struct {
	ID            string         `json:"id"`
	SessionID     string         `json:"session_id"`
	ParticipantID string         `json:"participant_id"`
	Content       string         `json:"content"`
	Phase         Phase          `json:"phase"`
	ToolsUsed     []string       `json:"tools_used,omitempty"`
	Citations     []string       `json:"citations,omitempty"`
	Reactions     map[string]int `json:"reactions,omitempty"`
	Confidence    float64        `json:"confidence,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// NewStatementID returns a time sortable statement identifier.
func NewStatementID() string { return ulid.Make().String() }

// HasEvidence reports whether the statement carries citations or tool usage.
func (s Statement) HasEvidence() bool { return len(s.Citations) > 0 || len(s.ToolsUsed) > 0 }

// IsModerator reports whether the statement was authored by the moderator.
func (s Statement) IsModerator() bool { return s.ParticipantID == ModeratorID }

// Clone returns a deep copy of the statement.
func (s Statement) Clone() Statement {
	c := s
	if s.ToolsUsed != nil {
		c.ToolsUsed = append([]string(nil), s.ToolsUsed...)
	}
	if s.Citations != nil {
		c.Citations = append([]string(nil), s.Citations...)
	}
	if s.Reactions != nil {
		c.Reactions = make(map[string]int, len(s.Reactions))
		for k, v := range s.Reactions {
			c.Reactions[k] = v
		}
	}
	return c
}
