package syscoinda

import (
	"github.com/cockroachdb/errors"
	"github.com/syscoin/syscoinda/internal/jsonrpc"
)

// ErrorKind classifies a DAError.
type ErrorKind byte

// Error kinds.
const (
	KindTransport    ErrorKind = 0x01 // network, HTTP or response decoding failure
	KindRemote       ErrorKind = 0x02 // JSON-RPC error envelope
	KindDecode       ErrorKind = 0x03 // blob data is not valid hex
	KindInvalidInput ErrorKind = 0x04 // malformed blob id
)

// String returns the string representation of an ErrorKind.
func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "Transport"
	case KindRemote:
		return "Remote"
	case KindDecode:
		return "Decode"
	case KindInvalidInput:
		return "InvalidInput"
	default:
		return "Unknown"
	}
}

// Error returns the sentinel error for the kind.
func (k ErrorKind) Error() error {
	switch k {
	case KindTransport:
		return ErrTransport
	case KindRemote:
		return ErrRemote
	case KindDecode:
		return ErrDecode
	case KindInvalidInput:
		return ErrInvalidInput
	default:
		return errors.Newf("unknown error kind: %d", k)
	}
}

// Sentinel errors matched by errors.Is against a DAError of the same kind.
var (
	ErrTransport    = errors.New("transport error")
	ErrRemote       = errors.New("remote error")
	ErrDecode       = errors.New("decode error")
	ErrInvalidInput = errors.New("invalid input")
)

// RemoteError is the JSON-RPC error object returned by the node. Its message
// is the remote message, unchanged.
type RemoteError = jsonrpc.Error

// DAError is the error returned by every DataAvailabilityClient operation.
//
// Retriable tells the host whether it may retry the call automatically.
// SyscoinClient never sets it: callers that need resilience retry above the
// client.
type DAError struct {
	Kind      ErrorKind
	Retriable bool
	Err       error
}

// Error returns the message of the underlying cause.
func (e *DAError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Err.Error()
}

// Unwrap returns the underlying cause.
func (e *DAError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *DAError) Is(target error) bool {
	return e.Kind.Error() == target
}

// IsRetriable returns true if err is a DAError marked retriable.
func IsRetriable(err error) bool {
	var daErr *DAError
	if errors.As(err, &daErr) {
		return daErr.Retriable
	}
	return false
}

// newCallError classifies an error returned by the JSON-RPC layer.
func newCallError(err error) *DAError {
	var rpcErr *RemoteError
	if errors.As(err, &rpcErr) {
		return &DAError{Kind: KindRemote, Err: rpcErr}
	}
	return &DAError{Kind: KindTransport, Err: err}
}
