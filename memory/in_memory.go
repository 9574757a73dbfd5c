package memory

import (
	"sync"

	"github.com/hupe1980/agora/core"
)

// InMemoryStore is a process-local registry of ContextMemory values keyed by
// session and participant. Memories are created lazily and dropped together
// with their session.
//
// Concurrency: protected by RWMutex; each ContextMemory guards itself.
type InMemoryStore struct {
	capacity int

	mu       sync.RWMutex
	sessions map[string]map[string]*ContextMemory // sessionID -> participantID -> memory
}

// NewInMemoryStore creates a store whose memories retain up to capacity
// statements each (DefaultHistoryCap when <= 0).
func NewInMemoryStore(capacity int) *InMemoryStore {
	return &InMemoryStore{capacity: capacity, sessions: make(map[string]map[string]*ContextMemory)}
}

// For returns the memory of participantID within sessionID, creating it on demand.
func (s *InMemoryStore) For(sessionID, participantID string) *ContextMemory {
	s.mu.RLock()
	if m, ok := s.sessions[sessionID][participantID]; ok {
		s.mu.RUnlock()
		return m
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	byParticipant, ok := s.sessions[sessionID]
	if !ok {
		byParticipant = make(map[string]*ContextMemory)
		s.sessions[sessionID] = byParticipant
	}
	m, ok := byParticipant[participantID]
	if !ok {
		m = NewContextMemory(participantID, s.capacity)
		byParticipant[participantID] = m
	}
	return m
}

// Ingest routes a statement to its author's memory. Moderator statements are ignored.
func (s *InMemoryStore) Ingest(st core.Statement) {
	if st.IsModerator() || st.ParticipantID == "" {
		return
	}
	s.For(st.SessionID, st.ParticipantID).Ingest(st)
}

// RecordCoalition logs the coalition in every member's memory.
func (s *InMemoryStore) RecordCoalition(sessionID string, c core.Coalition) {
	for _, member := range c.Members {
		s.For(sessionID, member).RecordCoalition(c)
	}
}

// Peek returns the memory of participantID within sessionID without
// creating it.
func (s *InMemoryStore) Peek(sessionID, participantID string) (*ContextMemory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.sessions[sessionID][participantID]
	return m, ok
}

// Summarize renders the participant's digest, or "" when it has no memory.
// It never creates entries, so reads racing DropSession leave nothing behind.
func (s *InMemoryStore) Summarize(sessionID, participantID string, topN, budget int) string {
	m, ok := s.Peek(sessionID, participantID)
	if !ok {
		return ""
	}
	return m.Summarize(topN, budget)
}

// DropSession forgets every memory of the session.
func (s *InMemoryStore) DropSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Sessions returns the number of sessions with memories.
func (s *InMemoryStore) Sessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
