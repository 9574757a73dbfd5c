// Package testutil contains fluent builders and a fake clock used across
// package tests to construct sessions, participants and statements with
// little boilerplate. Not intended for production usage.
package testutil
