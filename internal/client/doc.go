// Package client is the request orchestrator: it binds logical operations
// to a live session and applies the resilience policy.
//
// Ownership boundary:
// - the operation catalogue and result shape
// - request envelopes (token binding at send time)
// - retry, backoff, and single-re-authentication policy
// - the OperationError taxonomy surfaced to the command layer
package client
