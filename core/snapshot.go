package core

import (
	"math"
	"time"
)

// Snapshot is a point in time copy of a session. It doubles as the
// state_sync payload and as the input of the moderator's assessment.
type Snapshot struct {
	ID               string         `json:"id"`
	Topic            string         `json:"topic"`
	Phase            Phase          `json:"phase"`
	Protocol         Protocol       `json:"protocol"`
	Participants     []Participant  `json:"participants"`
	Statements       []Statement    `json:"statements"`
	Coalitions       []Coalition    `json:"coalitions"`
	Consensus        int            `json:"consensus"`
	TurnCount        int            `json:"turn_count"`
	Speaker          Speaker        `json:"speaker"`
	Quality          QualityMetrics `json:"quality"`
	Outcome          *Outcome       `json:"outcome,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	LastActivity     time.Time      `json:"last_activity"`
	LastStatementAt  time.Time      `json:"last_statement_at"`
	LastAllocationAt time.Time      `json:"last_allocation_at"`
	Closed           bool           `json:"closed"`
}

// Roster returns participant ids in roster order.
func (s Snapshot) Roster() []string {
	ids := make([]string, len(s.Participants))
	for i, p := range s.Participants {
		ids[i] = p.ID
	}
	return ids
}

// StatementCounts returns statement counts for every roster member
// (zero included). Moderator statements are not counted.
func (s Snapshot) StatementCounts() map[string]int {
	counts := make(map[string]int, len(s.Participants))
	for _, p := range s.Participants {
		counts[p.ID] = 0
	}
	for _, st := range s.Statements {
		if _, ok := counts[st.ParticipantID]; ok {
			counts[st.ParticipantID]++
		}
	}
	return counts
}

// LastStatement returns the most recent statement.
func (s Snapshot) LastStatement() (Statement, bool) {
	if len(s.Statements) == 0 {
		return Statement{}, false
	}
	return s.Statements[len(s.Statements)-1], true
}

// LastSpeaker returns the participant id of the most recent non-moderator statement.
func (s Snapshot) LastSpeaker() string {
	for i := len(s.Statements) - 1; i >= 0; i-- {
		if !s.Statements[i].IsModerator() {
			return s.Statements[i].ParticipantID
		}
	}
	return ""
}

// RecentTurns counts participantID's statements among the last window statements.
func (s Snapshot) RecentTurns(participantID string, window int) int {
	start := len(s.Statements) - window
	if start < 0 {
		start = 0
	}
	n := 0
	for _, st := range s.Statements[start:] {
		if st.ParticipantID == participantID {
			n++
		}
	}
	return n
}

// Participant looks up a roster member by id.
func (s Snapshot) Participant(id string) (Participant, bool) {
	for _, p := range s.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}

// StrongestCoalition returns the coalition contributing the consensus score.
func (s Snapshot) StrongestCoalition() (Coalition, bool) {
	best, bestScore := -1, -1
	roster := s.Roster()
	for i, c := range s.Coalitions {
		score := ConsensusScore([]Coalition{c}, roster)
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return Coalition{}, false
	}
	return s.Coalitions[best], true
}

// MeanStatements returns the per-participant mean statement count.
func (s Snapshot) MeanStatements() float64 {
	if len(s.Participants) == 0 {
		return 0
	}
	total := 0
	for _, c := range s.StatementCounts() {
		total += c
	}
	return float64(total) / float64(len(s.Participants))
}

// Age returns how long the session has existed at now.
func (s Snapshot) Age(now time.Time) time.Duration { return nonNegative(now.Sub(s.CreatedAt)) }

// Idle returns how long the session has been idle at now.
func (s Snapshot) Idle(now time.Time) time.Duration { return nonNegative(now.Sub(s.LastActivity)) }

func nonNegative(d time.Duration) time.Duration {
	return time.Duration(math.Max(0, float64(d)))
}
