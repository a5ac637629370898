// Package run implements the orchestrator that drives one bounded,
// idempotent processing run over a batch of messages.
//
// A run moves through INIT → FETCHING → PROCESSING → FINALIZING and ends
// COMPLETED or ABORTED. Messages are processed strictly one at a time;
// every mutating mail-service call goes through the rate limiter and is
// guarded by the persisted processed-set, so neither a retried run nor an
// overlapping one can act on the same message twice.
//
// The orchestrator depends on the MailService, Repository and Limiter
// interfaces defined here; production wiring lives in cmd/, fakes in the
// package tests.
package run
