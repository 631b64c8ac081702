// Package transport moves byte messages between a network socket and a
// connection's queues, and owns the shutdown/close-timeout protocol.
package transport

import "context"

// SocketState is the observable lifecycle state of a socket.
type SocketState int32

const (
	// StateOpen means the socket can send and receive.
	StateOpen SocketState = iota
	// StateClosing means a close frame has been sent; no further
	// application sends are valid.
	StateClosing
	// StateClosed means the peer's close frame has been received.
	StateClosed
	// StateAborted means the socket was hard-closed without a handshake.
	StateAborted
)

func (s SocketState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// FrameKind is the wire-level kind of a received or sent frame.
type FrameKind int

const (
	FrameBinary FrameKind = iota
	FrameText
	FrameClose
)

// CloseCode is the status code sent with a close frame.
type CloseCode int

const (
	// CloseNormal signals a clean shutdown.
	CloseNormal CloseCode = 1000
	// CloseProtocolError signals a malformed inbound message.
	CloseProtocolError CloseCode = 1002
	// ClosePolicyViolation signals a rate-limited peer.
	ClosePolicyViolation CloseCode = 1008
	// CloseInternalError signals shutdown triggered by a fault.
	CloseInternalError CloseCode = 1011
)

// Socket abstracts an upgraded, ready-to-use duplex socket. Implementations
// must allow CloseOutput and Abort concurrently with a blocked Receive or
// Send; Abort must unblock both.
type Socket interface {
	// Receive reads the next frame into buf. final marks the last fragment
	// of a logical message. A received close frame is reported as
	// (0, true, FrameClose, nil) and ends the stream.
	Receive(ctx context.Context, buf []byte) (n int, final bool, kind FrameKind, err error)

	// Send writes data as one frame of the given kind.
	Send(ctx context.Context, data []byte, kind FrameKind, final bool) error

	// CloseOutput sends a close frame with the status code and stops
	// further application sends.
	CloseOutput(code CloseCode, reason string) error

	// Abort hard-closes the socket with no handshake, unblocking any
	// pending Receive or Send. Idempotent.
	Abort()

	// State returns the current socket state.
	State() SocketState
}
