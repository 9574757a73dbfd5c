// Package model defines the provider-agnostic generative completion
// capability used to produce participant contributions and turn bids.
//
// Core goals:
//   - Unify streaming + non-streaming generation behind a single interface
//   - Classify provider failures (APIError) into retryable and permanent
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (OpenAI, Anthropic) implement the Model interface from this
// package so higher layers (invoker, scheduler) remain decoupled from vendor SDKs.
package model
