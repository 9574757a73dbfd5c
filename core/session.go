package core

import (
	"fmt"
	"sync"
	"time"
)

// Speaker records who last took the floor. A participant holds it until its
// statement is recorded (FinishedAt set); the moderator holds it for a
// protection window after interjecting. Interruptions accumulates over the
// session.
type Speaker struct {
	ParticipantID string    `json:"participant_id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at,omitzero"`
	Interruptions int       `json:"interruptions"`
}

// Holding reports whether the speaker still has the floor at now.
// moderatorWindow bounds the moderator's claim.
func (sp Speaker) Holding(now time.Time, moderatorWindow time.Duration) bool {
	switch {
	case sp.ParticipantID == "":
		return false
	case sp.ParticipantID == ModeratorID:
		return now.Sub(sp.StartedAt) < moderatorWindow
	default:
		return sp.FinishedAt.IsZero()
	}
}

// SessionOptions configures a Session.
type SessionOptions struct {
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
	// ModelCallBudget bounds generative calls for the session (0 = unlimited).
	ModelCallBudget int
}

// Session is the mutable record of one deliberation. It is safe for
// concurrent use; the session mutex is the single serialization point for
// every mutation.
//
// Contract:
//   - TurnCount always equals the number of recorded statements
//   - the phase only moves forward and completed is terminal
//   - the consensus score is derived from coalitions on every read
//   - accessors return copies, never internal slices
//   - once closed every mutation fails with ErrSessionClosed
type Session struct {
	id           string
	topic        string
	protocol     Protocol
	participants []Participant
	limiter      *ModelLimiter

	mu             sync.RWMutex
	phase          Phase
	statements     []Statement
	coalitions     []Coalition
	speaker        Speaker
	quality        QualityMetrics
	outcome        *Outcome
	createdAt      time.Time
	lastActivity   time.Time
	lastStatement  time.Time
	lastAllocation time.Time
	closed         bool

	now func() time.Time
}

// NewSession creates a session in the initialization phase.
func NewSession(id, topic string, protocol Protocol, participants []Participant, optFns ...func(o *SessionOptions)) *Session {
	opts := SessionOptions{Now: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	now := opts.Now()
	ps := make([]Participant, len(participants))
	copy(ps, participants)
	return &Session{
		id:             id,
		topic:          topic,
		protocol:       protocol.WithDefaults(),
		participants:   ps,
		limiter:        NewModelLimiter(opts.ModelCallBudget),
		phase:          PhaseInitialization,
		createdAt:      now,
		lastActivity:   now,
		lastStatement:  now,
		lastAllocation: now,
		now:            opts.Now,
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Topic returns the debate topic.
func (s *Session) Topic() string { return s.topic }

// Protocol returns the session protocol.
func (s *Session) Protocol() Protocol { return s.protocol }

// Limiter returns the per-session model call budget.
func (s *Session) Limiter() *ModelLimiter { return s.limiter }

// Participants returns a copy of the roster.
func (s *Session) Participants() []Participant {
	out := make([]Participant, len(s.participants))
	copy(out, s.participants)
	return out
}

// Roster returns the participant ids in roster order.
func (s *Session) Roster() []string {
	ids := make([]string, len(s.participants))
	for i, p := range s.participants {
		ids[i] = p.ID
	}
	return ids
}

// Participant looks up a roster member.
func (s *Session) Participant(id string) (Participant, error) {
	for _, p := range s.participants {
		if p.ID == id {
			return p, nil
		}
	}
	return Participant{}, fmt.Errorf("%w: %s", ErrParticipantNotFound, id)
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// TurnCount returns the number of recorded statements.
func (s *Session) TurnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.statements)
}

// Consensus recomputes the consensus score from the current coalitions.
func (s *Session) Consensus() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ConsensusScore(s.coalitions, s.Roster())
}

// Statements returns copies of all recorded statements.
func (s *Session) Statements() []Statement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneStatements(s.statements)
}

// RecentStatements returns copies of the last n statements.
func (s *Session) RecentStatements(n int) []Statement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.statements) {
		n = len(s.statements)
	}
	return cloneStatements(s.statements[len(s.statements)-n:])
}

// Coalitions returns copies of all coalitions.
func (s *Session) Coalitions() []Coalition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneCoalitions(s.coalitions)
}

// Speaker returns the current speaker record.
func (s *Session) Speaker() Speaker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.speaker
}

// Quality returns the latest quality snapshot.
func (s *Session) Quality() QualityMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quality
}

// Outcome returns the final outcome once the session completed.
func (s *Session) Outcome() (Outcome, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.outcome == nil {
		return Outcome{}, false
	}
	return *s.outcome, true
}

// CreatedAt returns the creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// LastActivity returns the last time the session was accessed or mutated.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// Touch marks the session as recently used.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = s.now()
}

// Closed reports whether the session was evicted or deleted.
func (s *Session) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Close marks the session closed. Subsequent mutations fail.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// MarkAllocation records a turn allocation attempt, resetting the cadence clock.
func (s *Session) MarkAllocation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.lastAllocation = now
	s.lastActivity = now
}

// BeginTurn hands the floor to participantID.
func (s *Session) BeginTurn(participantID string) error {
	if participantID != ModeratorID {
		if _, err := s.Participant(participantID); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	now := s.now()
	s.speaker = Speaker{ParticipantID: participantID, StartedAt: now, Interruptions: s.speaker.Interruptions}
	s.lastAllocation = now
	s.lastActivity = now
	return nil
}

// Interrupt counts an interruption of the current speaker.
func (s *Session) Interrupt() Speaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speaker.Interruptions++
	return s.speaker
}

// RecordResult describes the effects of RecordStatement.
type RecordResult struct {
	Statement    Statement
	TurnCount    int
	PhaseChanged bool
	From, To     Phase
}

// RecordStatement appends a statement and applies the automatic phase
// progression check. Append, turn count and progression happen atomically.
// The moderator identity is always accepted and claims the speaker window.
func (s *Session) RecordStatement(st Statement) (RecordResult, error) {
	if st.ParticipantID != ModeratorID {
		if _, err := s.Participant(st.ParticipantID); err != nil {
			return RecordResult{}, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return RecordResult{}, ErrSessionClosed
	}
	now := s.now()
	st = st.Clone()
	if st.ID == "" {
		st.ID = NewStatementID()
	}
	st.SessionID = s.id
	st.Phase = s.phase
	st.CreatedAt = now
	s.statements = append(s.statements, st)
	s.lastStatement = now
	s.lastActivity = now
	if st.ParticipantID == ModeratorID {
		s.speaker = Speaker{ParticipantID: ModeratorID, StartedAt: now, Interruptions: s.speaker.Interruptions}
	} else if s.speaker.ParticipantID != ModeratorID && s.speaker.FinishedAt.IsZero() {
		s.speaker.FinishedAt = now
	}

	res := RecordResult{Statement: st.Clone(), TurnCount: len(s.statements), From: s.phase, To: s.phase}
	if s.progressLocked() {
		res.PhaseChanged = true
		res.To = s.phase
	}
	return res, nil
}

// CheckProgression applies the progression table once and reports whether
// the phase advanced.
func (s *Session) CheckProgression() (from, to Phase, changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	from = s.phase
	changed = !s.closed && s.progressLocked()
	return from, s.phase, changed
}

func (s *Session) progressLocked() bool {
	if s.phase.Terminal() {
		return false
	}
	if !ShouldAdvance(s.phase, len(s.statements), len(s.participants), ConsensusScore(s.coalitions, s.Roster())) {
		return false
	}
	s.phase = s.phase.Next()
	return true
}

// Advance moves exactly one phase forward. It is a no-op at completed.
func (s *Session) Advance() (from, to Phase, changed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.phase, s.phase, false, ErrSessionClosed
	}
	from = s.phase
	if s.phase.Terminal() {
		return from, from, false, nil
	}
	s.phase = s.phase.Next()
	s.lastActivity = s.now()
	return from, s.phase, true, nil
}

// FormCoalition records a coalition. Every member must belong to the roster.
func (s *Session) FormCoalition(members []string, position string, strength float64, reason string) (Coalition, error) {
	members = dedupe(members)
	if len(members) == 0 {
		return Coalition{}, fmt.Errorf("coalition requires at least one member")
	}
	for _, m := range members {
		if _, err := s.Participant(m); err != nil {
			return Coalition{}, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Coalition{}, ErrSessionClosed
	}
	c := NewCoalition(members, position, strength, reason)
	c.FormedAt = s.now()
	s.coalitions = append(s.coalitions, c)
	s.lastActivity = c.FormedAt
	return c.Clone(), nil
}

// AlignWith joins memberID into the most recent coalition led by or
// containing leaderID, creating a two member coalition when none exists.
// Strength is set to the coalition's roster share. It reports whether the
// coalition changed.
func (s *Session) AlignWith(memberID, leaderID, position string) (Coalition, bool, error) {
	if memberID == leaderID {
		return Coalition{}, false, nil
	}
	for _, id := range []string{memberID, leaderID} {
		if _, err := s.Participant(id); err != nil {
			return Coalition{}, false, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Coalition{}, false, ErrSessionClosed
	}
	roster := float64(len(s.participants))
	for i := len(s.coalitions) - 1; i >= 0; i-- {
		c := &s.coalitions[i]
		if !c.HasMember(leaderID) {
			continue
		}
		if c.HasMember(memberID) {
			return c.Clone(), false, nil
		}
		c.Members = append(c.Members, memberID)
		c.Strength = clamp01(float64(len(c.Members)) / roster)
		s.lastActivity = s.now()
		return c.Clone(), true, nil
	}
	c := NewCoalition([]string{leaderID, memberID}, position, 2/roster, "agreement")
	c.FormedAt = s.now()
	s.coalitions = append(s.coalitions, c)
	s.lastActivity = c.FormedAt
	return c.Clone(), true, nil
}

// SetQuality stores a new quality snapshot.
func (s *Session) SetQuality(m QualityMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quality = m
}

// SetOutcome stores the final outcome. Only the first call wins.
func (s *Session) SetOutcome(o Outcome) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome != nil {
		return false
	}
	s.outcome = &o
	return true
}

// Snapshot returns an immutable copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		ID:               s.id,
		Topic:            s.topic,
		Phase:            s.phase,
		Protocol:         s.protocol,
		Participants:     s.Participants(),
		Statements:       cloneStatements(s.statements),
		Coalitions:       cloneCoalitions(s.coalitions),
		Consensus:        ConsensusScore(s.coalitions, s.Roster()),
		TurnCount:        len(s.statements),
		Speaker:          s.speaker,
		Quality:          s.quality,
		CreatedAt:        s.createdAt,
		LastActivity:     s.lastActivity,
		LastStatementAt:  s.lastStatement,
		LastAllocationAt: s.lastAllocation,
		Closed:           s.closed,
	}
	if s.outcome != nil {
		o := *s.outcome
		snap.Outcome = &o
	}
	return snap
}

func cloneStatements(in []Statement) []Statement {
	out := make([]Statement, len(in))
	for i, st := range in {
		out[i] = st.Clone()
	}
	return out
}

func cloneCoalitions(in []Coalition) []Coalition {
	out := make([]Coalition, len(in))
	for i, c := range in {
		out[i] = c.Clone()
	}
	return out
}
