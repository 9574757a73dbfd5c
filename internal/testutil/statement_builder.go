package testutil

import (
	"github.com/hupe1980/agora/core"
)

// StatementBuilder provides a fluent helper for constructing statements.
// Example:
//
//	st := NewStatementBuilder("p1").Content("According to the report...").Citations("report").Build()
//
// Chain only the parts you need; id, phase and time are assigned when the
// statement is recorded.
type StatementBuilder struct {
	st core.Statement
}

// NewStatementBuilder creates a builder for a statement by participantID.
func NewStatementBuilder(participantID string) *StatementBuilder {
	return &StatementBuilder{st: core.Statement{ParticipantID: participantID}}
}

// ID overrides the generated statement id (chainable).
func (b *StatementBuilder) ID(id string) *StatementBuilder { b.st.ID = id; return b }

// Content sets the text (chainable).
func (b *StatementBuilder) Content(c string) *StatementBuilder { b.st.Content = c; return b }

// Citations appends citations (chainable).
func (b *StatementBuilder) Citations(c ...string) *StatementBuilder {
	b.st.Citations = append(b.st.Citations, c...)
	return b
}

// Tools appends tools used (chainable).
func (b *StatementBuilder) Tools(t ...string) *StatementBuilder {
	b.st.ToolsUsed = append(b.st.ToolsUsed, t...)
	return b
}

// Confidence sets the producing tier's confidence (chainable).
func (b *StatementBuilder) Confidence(c float64) *StatementBuilder { b.st.Confidence = c; return b }

// Build returns the statement value.
func (b *StatementBuilder) Build() core.Statement {
	return b.st.Clone()
}
