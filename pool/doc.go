// Package pool holds the live deliberation sessions of a process.
//
// The pool is bounded: creating a session at capacity first evicts sessions
// idle beyond the configured timeout and fails with core.ErrCapacityExceeded
// when none qualify. Evicted and deleted sessions are closed, so results of
// work still in flight for them are discarded instead of applied. Eviction
// hooks let the orchestrator cancel that work and drop per-session caches.
//
// There is no global pool; the owner constructs one with New and injects it.
package pool
