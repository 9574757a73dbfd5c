package memory

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/hupe1980/agora/core"
)

// DefaultHistoryCap bounds the rolling per-participant history.
const DefaultHistoryCap = 100

// CoalitionEntry is one line of a participant's coalition membership log.
type CoalitionEntry struct {
	CoalitionID string
	Position    string
	Members     []string
	JoinedAt    time.Time
}

// Keyword is a weighted term from a participant's history.
type Keyword struct {
	Term   string
	Weight float64
}

// ContextMemory holds one participant's rolling history, keyword importance
// map and coalition log. Safe for concurrent use.
//
// Summarize results are cached; the cache key is the number of statements
// ever ingested, so it is invalidated exactly when the history changes.
type ContextMemory struct {
	participantID string
	capacity      int

	mu         sync.Mutex
	history    []core.Statement
	ingested   int
	keywords   map[string]float64
	coalitions []CoalitionEntry
	cache      summaryCache
}

type summaryCache struct {
	version int
	topN    int
	budget  int
	text    string
	valid   bool
}

// NewContextMemory creates an empty memory. capacity <= 0 selects DefaultHistoryCap.
func NewContextMemory(participantID string, capacity int) *ContextMemory {
	if capacity <= 0 {
		capacity = DefaultHistoryCap
	}
	return &ContextMemory{participantID: participantID, capacity: capacity, keywords: map[string]float64{}}
}

// ParticipantID returns the owner of the memory.
func (m *ContextMemory) ParticipantID() string { return m.participantID }

// Ingest appends a statement, dropping the oldest entry past capacity, and
// weights its keywords by 1 + citation count.
func (m *ContextMemory) Ingest(st core.Statement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, st.Clone())
	if over := len(m.history) - m.capacity; over > 0 {
		m.history = append([]core.Statement(nil), m.history[over:]...)
	}
	m.ingested++
	w := 1 + float64(len(st.Citations))
	for _, term := range ExtractKeywords(st.Content) {
		m.keywords[term] += w
	}
}

// RecordCoalition appends an entry to the coalition log.
func (m *ContextMemory) RecordCoalition(c core.Coalition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coalitions = append(m.coalitions, CoalitionEntry{
		CoalitionID: c.ID,
		Position:    c.Position,
		Members:     append([]string(nil), c.Members...),
		JoinedAt:    c.FormedAt,
	})
}

// Len returns the current history length.
func (m *ContextMemory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

// History returns copies of the retained statements, oldest first.
func (m *ContextMemory) History() []core.Statement {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.Statement, len(m.history))
	for i, st := range m.history {
		out[i] = st.Clone()
	}
	return out
}

// Coalitions returns the coalition membership log.
func (m *ContextMemory) Coalitions() []CoalitionEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CoalitionEntry, len(m.coalitions))
	copy(out, m.coalitions)
	return out
}

// TopKeywords returns the k heaviest keywords (ties alphabetical).
func (m *ContextMemory) TopKeywords(k int) []Keyword {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Keyword, 0, len(m.keywords))
	for term, w := range m.keywords {
		out = append(out, Keyword{Term: term, Weight: w})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Term < out[j].Term
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// Summarize renders the topN statements ranked by citation count (ties most
// recent first), one per line, truncated to at most budget runes.
func (m *ContextMemory) Summarize(topN, budget int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if budget <= 0 || topN <= 0 || len(m.history) == 0 {
		return ""
	}
	if c := m.cache; c.valid && c.version == m.ingested && c.topN == topN && c.budget == budget {
		return c.text
	}

	idx := make([]int, len(m.history))
	for i := range idx {
		idx[i] = len(m.history) - 1 - i // most recent first
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return len(m.history[idx[a]].Citations) > len(m.history[idx[b]].Citations)
	})
	if len(idx) > topN {
		idx = idx[:topN]
	}

	var sb strings.Builder
	for i, j := range idx {
		st := m.history[j]
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "- [%s] %s", st.Phase, strings.TrimSpace(st.Content))
		if n := len(st.Citations); n > 0 {
			fmt.Fprintf(&sb, " (%d citations)", n)
		}
	}
	text := truncateRunes(sb.String(), budget)
	m.cache = summaryCache{version: m.ingested, topN: topN, budget: budget, text: text, valid: true}
	return text
}

func truncateRunes(s string, budget int) string {
	r := []rune(s)
	if len(r) <= budget {
		return s
	}
	if budget <= 3 {
		return string(r[:budget])
	}
	return string(r[:budget-3]) + "..."
}

var stopWords = map[string]struct{}{
	"about": {}, "after": {}, "again": {}, "against": {}, "because": {}, "before": {},
	"being": {}, "between": {}, "could": {}, "other": {}, "should": {}, "their": {},
	"there": {}, "these": {}, "those": {}, "through": {}, "under": {}, "where": {},
	"which": {}, "while": {}, "would": {}, "think": {}, "really": {}, "still": {},
}

// ExtractKeywords returns lower-cased terms of at least five letters,
// excluding common stop words. Duplicates are preserved.
func ExtractKeywords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '-'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "-")
		if len([]rune(f)) < 5 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}
