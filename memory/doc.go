// Package memory implements per-participant context memory: a bounded
// rolling statement history, a citation weighted keyword map, a coalition
// membership log and a cached digest used when building invocation prompts.
package memory
