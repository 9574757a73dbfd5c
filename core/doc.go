// Package core provides the foundational domain types of agora:
//
//   - Session, the mutable and concurrency safe record of one deliberation
//   - the fixed Phase sequence and its automatic progression table
//   - Statement, Coalition and the derived consensus score
//   - Participant profiles and the per-session Protocol
//   - Event, Broadcaster and Ledger capabilities consumed by the engine
//
// The package keeps orchestration concerns (scheduling, invocation,
// moderation, pooling) out of scope and exposes small interfaces so the
// transport and ledger backends stay pluggable.
package core
