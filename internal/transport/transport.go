package transport

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized marks a transport-level authorization rejection
	// (HTTP 401/403). The orchestrator maps it to a session refresh.
	ErrUnauthorized = errors.New("transport: unauthorized")

	ErrClosed = errors.New("transport: closed")
)

// ExchangeRequest is one encoded request ready to leave the process.
type ExchangeRequest struct {
	Body           []byte
	SessionToken   string
	IdempotencyKey string
}

// Carrier performs one request/response exchange of encoded frames.
type Carrier interface {
	Exchange(ctx context.Context, req ExchangeRequest) ([]byte, error)
}

// Error is a transport-level failure, distinct from codec decode errors so
// callers can tell "retry the send" from "the server sent garbage".
type Error struct {
	Op        string
	Status    int
	Temporary bool
	Err       error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transport: %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTemporary reports whether err is a transport failure worth retrying.
func IsTemporary(err error) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Temporary
	}
	return false
}
