// Package ledger contains implementations of core.Ledger and the Recorder
// that feeds them fire and forget.
//
// The debate never waits on the ledger: Recorder queues entries and appends
// them from a background goroutine, logging failures. InMemoryLedger suits
// tests and single-process servers; WriterLedger appends JSON lines to any
// io.Writer (a file opened by the CLI, for example).
package ledger
