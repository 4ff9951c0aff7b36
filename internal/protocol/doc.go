// Package protocol owns the wire contract for the game-service packet
// protocol.
//
// Ownership boundary:
// - fixed packet header primitives
// - the closed message set and its payload codecs
// - payload transforms (compression)
//
// Encode and Decode are pure: no I/O, no clock reads, no randomness.
// Sequence numbers and timestamps are supplied by callers.
package protocol
