// Package transport owns the raw I/O channels under the wire codec.
//
// Ownership boundary:
// - the HTTP exchange carrier used for request/response operations
// - the framed TCP stream used for live sessions
// - the transport error taxonomy (temporary vs terminal, unauthorized)
//
// Transport never interprets message semantics; it moves complete byte
// ranges between the network and the codec.
package transport
