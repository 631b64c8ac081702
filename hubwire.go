package hubwire

import (
	"context"
	"net/http"
)

// TransferMode selects the WebSocket message kind used for outbound messages.
type TransferMode int

const (
	// TransferBinary sends outbound messages as binary WebSocket messages.
	TransferBinary TransferMode = iota
	// TransferText sends outbound messages as text WebSocket messages.
	TransferText
)

func (m TransferMode) String() string {
	switch m {
	case TransferBinary:
		return "binary"
	case TransferText:
		return "text"
	default:
		return "unknown"
	}
}

// Connection is one logical duplex session with a single remote peer.
//
// Connections are created by the server on upgrade and destroyed on
// disconnect. The id is unique among live connections.
type Connection interface {
	// ID returns the unique identifier assigned to this connection.
	ID() string

	// User returns the authenticated identity bound to this connection,
	// or "" when the connection is anonymous.
	User() string

	// Format returns the wire format identifier negotiated for this
	// connection (for example "json" or "msgpack").
	Format() string
}

// HandlerFunc processes one inbound invocation. The returned value (or error)
// is sent back to the peer as a completion when the invocation carried a
// correlation id; for fire-and-forget invocations both are discarded.
type HandlerFunc func(conn Connection, args []any) (any, error)

// Server is a WebSocket endpoint that accepts hubwire connections and routes
// invocations between them.
//
// All broadcast methods return once every send has been accepted by its
// target's outbound queue, not once delivered. A slow consumer therefore
// stalls the broadcast rather than losing messages.
type Server interface {
	// Start begins listening for connections. It returns an error if the
	// server is already running or the address cannot be bound.
	Start(ctx context.Context) error

	// Stop gracefully stops the server and closes all live connections.
	Stop(ctx context.Context) error

	// Handler returns the upgrade endpoint at /ws for mounting into an
	// existing mux instead of using Start's own listener.
	Handler() http.Handler

	// RegisterHandler registers a handler for inbound invocations of the
	// named method. Registering again replaces the previous handler.
	RegisterHandler(method string, handler HandlerFunc)

	// BroadcastAll enqueues an invocation of method onto every live
	// connection.
	BroadcastAll(ctx context.Context, method string, args ...any) error

	// BroadcastGroup enqueues an invocation onto every connection that is
	// a member of the named group at evaluation time.
	BroadcastGroup(ctx context.Context, group, method string, args ...any) error

	// BroadcastUser enqueues an invocation onto every connection whose
	// authenticated identity equals user.
	BroadcastUser(ctx context.Context, user, method string, args ...any) error

	// Invoke sends a correlated invocation to one connection and waits for
	// its completion. It fails immediately with ErrConnectionNotFound when
	// the id is unknown, with ErrInvocationCanceled when the target
	// disconnects first, and with *RemoteError when the peer reports an
	// error.
	Invoke(ctx context.Context, connectionID, method string, args ...any) (any, error)

	// AddGroup adds the connection to the named group. Idempotent.
	AddGroup(connectionID, group string) error

	// RemoveGroup removes the connection from the named group. A no-op if
	// the connection is gone or never joined.
	RemoveGroup(connectionID, group string) error
}
