package hubwire

import "errors"

var (
	// ErrConnectionNotFound reports an operation targeting a connection id
	// that is not in the registry.
	ErrConnectionNotFound = errors.New("hubwire: connection not found")

	// ErrInvocationCanceled resolves a pending invocation whose target
	// connection disconnected before replying.
	ErrInvocationCanceled = errors.New("hubwire: invocation canceled by disconnect")

	// ErrUnknownInvocation reports a completion whose correlation id does
	// not match any pending invocation.
	ErrUnknownInvocation = errors.New("hubwire: unknown invocation id")

	// ErrInvalidCompletion reports a completion carrying both an error and
	// a result; the two are mutually exclusive.
	ErrInvalidCompletion = errors.New("hubwire: completion has both error and result")

	// ErrQueueCompleted reports a write to, or an exhausted read from, a
	// message queue whose writer side has been completed.
	ErrQueueCompleted = errors.New("hubwire: message queue completed")

	// ErrUnknownFormat reports a wire format identifier with no registered
	// codec.
	ErrUnknownFormat = errors.New("hubwire: unknown wire format")

	// ErrServerAlreadyRunning reports a second Start on a running server.
	ErrServerAlreadyRunning = errors.New("hubwire: server already running")
)

// RemoteError carries an error string reported by the remote peer in a
// completion. It is a normal invocation outcome, not a transport fault.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return e.Message }
