// Package session owns the authentication lifecycle.
//
// Ownership boundary:
// - the credential and session models
// - the login state machine and its single entry point EnsureAuthenticated
// - on-disk token persistence
// - session-token claim inspection
// - retry/backoff primitives shared with the orchestrator and live client
package session
