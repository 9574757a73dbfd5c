package core

import (
	"context"
	"time"
)

// EventType names a state change published to observers.
type EventType string

const (
	EventStateSync       EventType = "state_sync"
	EventStatementAdded  EventType = "statement_added"
	EventPhaseChanged    EventType = "phase_changed"
	EventCoalitionFormed EventType = "coalition_formed"
	EventQualityUpdated  EventType = "quality_updated"
)

// Event is a plain data notification emitted strictly after the mutation
// that produced it. Payload holds one of the *Payload types below or a
// Snapshot for state_sync.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// NewEvent stamps an event with the current UTC time.
func NewEvent(t EventType, sessionID string, payload any) Event {
	return Event{Type: t, SessionID: sessionID, Timestamp: time.Now().UTC(), Payload: payload}
}

// StatementAddedPayload accompanies statement_added.
type StatementAddedPayload struct {
	Statement Statement `json:"statement"`
	TurnCount int       `json:"turn_count"`
}

// PhaseChangedPayload accompanies phase_changed.
type PhaseChangedPayload struct {
	From Phase `json:"from"`
	To   Phase `json:"to"`
}

// CoalitionFormedPayload accompanies coalition_formed.
type CoalitionFormedPayload struct {
	Coalition Coalition `json:"coalition"`
	Consensus int       `json:"consensus"`
}

// QualityUpdatedPayload accompanies quality_updated.
type QualityUpdatedPayload struct {
	Metrics QualityMetrics `json:"metrics"`
}

// Broadcaster delivers events to observers. Delivery semantics belong to the
// implementation; callers never wait for observers.
type Broadcaster interface {
	Broadcast(ctx context.Context, ev Event) error
}

// BroadcasterFunc adapts a function to the Broadcaster interface.
type BroadcasterFunc func(ctx context.Context, ev Event) error

// Broadcast calls f(ctx, ev).
func (f BroadcasterFunc) Broadcast(ctx context.Context, ev Event) error { return f(ctx, ev) }

// NopBroadcaster discards all events.
type NopBroadcaster struct{}

// Broadcast implements Broadcaster.
func (NopBroadcaster) Broadcast(context.Context, Event) error { return nil }
