package core

import (
	"context"
	"time"
)

// LedgerKind classifies a ledger entry.
type LedgerKind string

const (
	LedgerStatement LedgerKind = "statement"
	LedgerOutcome   LedgerKind = "outcome"
)

// LedgerEntry is an append-only record of a debate artifact.
type LedgerEntry struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	Kind      LedgerKind `json:"kind"`
	Data      []byte     `json:"data"`
	CreatedAt time.Time  `json:"created_at"`
}

// Ledger is the append-only recording capability. It is invoked fire and
// forget; failures never affect debate progression.
type Ledger interface {
	Append(ctx context.Context, entry LedgerEntry) error
}
