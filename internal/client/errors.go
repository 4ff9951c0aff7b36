package client

import "fmt"

// Kind classifies an operation failure for the command layer, which maps
// kinds to process exit codes.
type Kind int

const (
	// KindAuth covers credential rejections and exhausted
	// re-authentication.
	KindAuth Kind = iota + 1
	// KindTransport covers I/O failures that persisted past the retry
	// budget.
	KindTransport
	// KindProtocol covers structural codec failures and unexpected
	// message kinds. Never retried.
	KindProtocol
	// KindRemote covers well-formed server rejections of the operation
	// itself.
	KindRemote
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// OperationError is the orchestrator-level failure wrapper.
type OperationError struct {
	Kind     Kind
	Resource string
	Err      error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("client: %s %s: %v", e.Kind, e.Resource, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }
