package protocol

import "errors"

var (
	// ErrShortBuffer signals that the buffer holds only a prefix of a
	// frame. It is a "need more data" outcome, not a decode failure.
	ErrShortBuffer = errors.New("protocol: short buffer")

	ErrTruncatedHeader  = errors.New("protocol: truncated header")
	ErrTruncatedPayload = errors.New("protocol: truncated payload")
	ErrLengthMismatch   = errors.New("protocol: header length mismatch")
	ErrUnsupportedFlags = errors.New("protocol: unsupported header flags")
	ErrMalformedPayload = errors.New("protocol: malformed payload")
	ErrPayloadTooLarge  = errors.New("protocol: payload too large")
)
