// Package hub implements the connection model and the hub lifetime manager:
// live-connection registry, group membership, invocation correlation, and
// broadcast/invoke routing.
package hub

import (
	"sync"

	"github.com/google/uuid"

	"github.com/hubwire/hubwire"
	"github.com/hubwire/hubwire/internal/protocol"
)

// DefaultQueueCapacity is the per-direction message queue capacity used when
// Options does not set one.
const DefaultQueueCapacity = 256

// Options configures a new Connection. Zero values get defaults: a random
// uuid ID, the JSON wire format, binary transfer, DefaultQueueCapacity.
type Options struct {
	ID            string
	User          string
	Format        string
	Mode          hubwire.TransferMode
	QueueCapacity int
}

// Connection is the per-session state of one duplex peer: identity, group
// membership, pending-invocation correlator, wire format, transfer mode and
// the two bounded message queues the transport pump moves bytes through.
//
// A Connection is created on connect, owned by the registry while live, and
// destroyed on disconnect.
type Connection struct {
	id     string
	user   string
	format string
	mode   hubwire.TransferMode

	inbound  *MessageQueue
	outbound *MessageQueue
	calls    Correlator

	groupsMu sync.Mutex
	groups   map[string]struct{} // lazily allocated on first join
}

// NewConnection creates a connection with its queues and correlator.
func NewConnection(opts Options) *Connection {
	if opts.ID == "" {
		opts.ID = uuid.New().String()
	}
	if opts.Format == "" {
		opts.Format = protocol.FormatJSON
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = DefaultQueueCapacity
	}
	return &Connection{
		id:       opts.ID,
		user:     opts.User,
		format:   opts.Format,
		mode:     opts.Mode,
		inbound:  NewMessageQueue(opts.QueueCapacity),
		outbound: NewMessageQueue(opts.QueueCapacity),
	}
}

func (c *Connection) ID() string     { return c.id }
func (c *Connection) User() string   { return c.user }
func (c *Connection) Format() string { return c.format }

// TransferMode reports whether the connection sends text or binary messages.
func (c *Connection) TransferMode() hubwire.TransferMode { return c.mode }

// Inbound is the queue of messages received from the socket, consumed by
// dispatch.
func (c *Connection) Inbound() *MessageQueue { return c.inbound }

// Outbound is the queue of messages awaiting the send loop.
func (c *Connection) Outbound() *MessageQueue { return c.outbound }

// Calls is the connection's invocation correlator.
func (c *Connection) Calls() *Correlator { return &c.calls }

// JoinGroup adds the connection to a group. Idempotent.
func (c *Connection) JoinGroup(name string) {
	c.groupsMu.Lock()
	defer c.groupsMu.Unlock()
	if c.groups == nil {
		c.groups = make(map[string]struct{})
	}
	c.groups[name] = struct{}{}
}

// LeaveGroup removes the connection from a group. A no-op if the connection
// never joined any group.
func (c *Connection) LeaveGroup(name string) {
	c.groupsMu.Lock()
	defer c.groupsMu.Unlock()
	if c.groups == nil {
		return
	}
	delete(c.groups, name)
}

// InGroup reports membership at the instant of evaluation. A concurrent
// Join/Leave may be seen or missed by an in-flight broadcast.
func (c *Connection) InGroup(name string) bool {
	c.groupsMu.Lock()
	defer c.groupsMu.Unlock()
	_, ok := c.groups[name]
	return ok
}

// GroupCount returns the number of groups the connection is in.
func (c *Connection) GroupCount() int {
	c.groupsMu.Lock()
	defer c.groupsMu.Unlock()
	return len(c.groups)
}
