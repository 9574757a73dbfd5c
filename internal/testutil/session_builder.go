package testutil

import (
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agora/core"
)

// Clock is a manually advanced clock safe for concurrent use.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock at a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Participants returns n participants p1..pn named "Participant i".
func Participants(n int) []core.Participant {
	out := make([]core.Participant, n)
	for i := range out {
		out[i] = core.Participant{
			ID:   fmt.Sprintf("p%d", i+1),
			Name: fmt.Sprintf("Participant %d", i+1),
		}
	}
	return out
}

// SessionBuilder helps construct sessions with fluent chaining for tests.
// Example:
//
//	sess := NewSessionBuilder("s1").Topic("AI safety").Participants(testutil.Participants(3)...).Speak("p1", "hello").Build()
type SessionBuilder struct {
	id           string
	topic        string
	protocol     core.Protocol
	participants []core.Participant
	statements   []core.Statement
	clock        *Clock
	budget       int
}

// NewSessionBuilder creates a new builder for a session with the given id.
func NewSessionBuilder(id string) *SessionBuilder {
	return &SessionBuilder{id: id, topic: "test topic", protocol: core.DefaultProtocol}
}

// Topic sets the debate topic (chainable).
func (b *SessionBuilder) Topic(t string) *SessionBuilder { b.topic = t; return b }

// Protocol sets the protocol (chainable).
func (b *SessionBuilder) Protocol(p core.Protocol) *SessionBuilder { b.protocol = p; return b }

// Participants appends roster entries (chainable).
func (b *SessionBuilder) Participants(ps ...core.Participant) *SessionBuilder {
	b.participants = append(b.participants, ps...)
	return b
}

// Clock injects a fake clock (chainable).
func (b *SessionBuilder) Clock(c *Clock) *SessionBuilder { b.clock = c; return b }

// ModelCallBudget sets the per-session model call budget (chainable).
func (b *SessionBuilder) ModelCallBudget(n int) *SessionBuilder { b.budget = n; return b }

// Statement appends a pre-built statement (chainable).
func (b *SessionBuilder) Statement(st core.Statement) *SessionBuilder {
	b.statements = append(b.statements, st)
	return b
}

// Speak appends a plain statement by participantID (chainable).
func (b *SessionBuilder) Speak(participantID, content string) *SessionBuilder {
	return b.Statement(NewStatementBuilder(participantID).Content(content).Build())
}

// Build returns a *core.Session with the statements recorded in order. It
// panics when a statement is rejected, which is a test setup error.
func (b *SessionBuilder) Build() *core.Session {
	s := core.NewSession(b.id, b.topic, b.protocol, b.participants, func(o *core.SessionOptions) {
		if b.clock != nil {
			o.Now = b.clock.Now
		}
		o.ModelCallBudget = b.budget
	})
	for _, st := range b.statements {
		if _, err := s.RecordStatement(st); err != nil {
			panic(fmt.Sprintf("testutil: record statement: %v", err))
		}
	}
	return s
}

// Snapshot builds the session and returns its snapshot.
func (b *SessionBuilder) Snapshot() core.Snapshot {
	return b.Build().Snapshot()
}
