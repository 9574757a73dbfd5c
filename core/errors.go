package core

import "fmt"

var (
	// ErrParticipantNotFound is returned when a participant id is not present
	// in the registry or session roster.
	ErrParticipantNotFound = fmt.Errorf("participant not found")

	// ErrCapacityExceeded is returned when the session pool is full and no
	// idle session could be evicted.
	ErrCapacityExceeded = fmt.Errorf("session capacity exceeded")

	// ErrSessionNotFound is returned for unknown or evicted session ids.
	ErrSessionNotFound = fmt.Errorf("session not found")

	// ErrSessionClosed is returned when mutating a session that was evicted or deleted.
	ErrSessionClosed = fmt.Errorf("session closed")

	// ErrDelegateUnavailable signals that no reachable delegate tool serves a participant.
	ErrDelegateUnavailable = fmt.Errorf("delegate unavailable")

	// ErrModelBudgetExceeded signals that a session used up its model call budget.
	ErrModelBudgetExceeded = fmt.Errorf("model call budget exceeded")
)
