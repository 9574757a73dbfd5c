package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hupe1980/agora/core"
)

// InMemoryLedger keeps entries in a per-session slice guarded by an RWMutex.
// Data is copied on append and retrieval to avoid external mutation of
// internal buffers.
//
// Layout: sessionID -> entries in append order
type InMemoryLedger struct {
	mu      sync.RWMutex
	entries map[string][]core.LedgerEntry
}

// NewInMemoryLedger returns an empty ledger.
func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{entries: make(map[string][]core.LedgerEntry)}
}

// Append implements core.Ledger.
func (l *InMemoryLedger) Append(_ context.Context, entry core.LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[entry.SessionID] = append(l.entries[entry.SessionID], cloneEntry(entry))
	return nil
}

// Entries returns a copy of the session's entries in append order.
func (l *InMemoryLedger) Entries(sessionID string) []core.LedgerEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	src := l.entries[sessionID]
	out := make([]core.LedgerEntry, len(src))
	for i, e := range src {
		out[i] = cloneEntry(e)
	}
	return out
}

// Len returns the total number of entries.
func (l *InMemoryLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, es := range l.entries {
		n += len(es)
	}
	return n
}

func cloneEntry(e core.LedgerEntry) core.LedgerEntry {
	cp := make([]byte, len(e.Data))
	copy(cp, e.Data)
	e.Data = cp
	return e
}

// WriterLedger appends entries as JSON lines to w.
type WriterLedger struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewWriterLedger creates a ledger writing to w.
func NewWriterLedger(w io.Writer) *WriterLedger {
	return &WriterLedger{enc: json.NewEncoder(w)}
}

type writerLine struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Kind      core.LedgerKind `json:"kind"`
	Data      json.RawMessage `json:"data"`
	CreatedAt string          `json:"created_at"`
}

// Append implements core.Ledger.
func (l *WriterLedger) Append(_ context.Context, entry core.LedgerEntry) error {
	line := writerLine{
		ID:        entry.ID,
		SessionID: entry.SessionID,
		Kind:      entry.Kind,
		Data:      entry.Data,
		CreatedAt: entry.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
	if !json.Valid(line.Data) {
		return fmt.Errorf("ledger entry %s: data is not JSON", entry.ID)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enc.Encode(line)
}

var (
	_ core.Ledger = (*InMemoryLedger)(nil)
	_ core.Ledger = (*WriterLedger)(nil)
)
