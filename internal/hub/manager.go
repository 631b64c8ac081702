package hub

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hubwire/hubwire"
	"github.com/hubwire/hubwire/internal/protocol"
)

// Manager routes broadcast and targeted invocations across the live
// connections and correlates invocation completions back to their callers.
//
// Manager methods run concurrently with each other and with the per-connection
// transport pumps; connections are fully independent of one another.
type Manager struct {
	registry *Registry
	codecs   *protocol.Registry
	log      *slog.Logger
}

// NewManager creates a manager. A nil codec registry gets the default JSON
// and msgpack codecs; a nil logger gets slog.Default().
func NewManager(codecs *protocol.Registry, log *slog.Logger) *Manager {
	if codecs == nil {
		codecs = protocol.DefaultRegistry()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		registry: NewRegistry(),
		codecs:   codecs,
		log:      log,
	}
}

// OnConnect registers a new connection.
func (m *Manager) OnConnect(c *Connection) {
	m.registry.Add(c)
	m.log.Debug("connection registered", "connection_id", c.ID(), "user", c.User(), "format", c.Format())
}

// OnDisconnect cancels every invocation still pending on the connection, so
// suspended callers observe hubwire.ErrInvocationCanceled rather than hanging,
// then removes the connection from the registry.
func (m *Manager) OnDisconnect(c *Connection) {
	c.Calls().CancelAll()
	m.registry.Remove(c)
	m.log.Debug("connection removed", "connection_id", c.ID())
}

// Get returns the live connection with the given id.
func (m *Manager) Get(connectionID string) (*Connection, error) {
	return m.registry.Get(connectionID)
}

// Connections returns a snapshot of the live connections.
func (m *Manager) Connections() []*Connection {
	return m.registry.Snapshot()
}

// BroadcastAll enqueues an invocation of method onto every live connection.
func (m *Manager) BroadcastAll(ctx context.Context, method string, args ...any) error {
	return m.broadcast(ctx, method, args, nil)
}

// BroadcastGroup enqueues an invocation onto the connections that are members
// of the group. Membership is evaluated per candidate at enqueue time.
func (m *Manager) BroadcastGroup(ctx context.Context, group, method string, args ...any) error {
	return m.broadcast(ctx, method, args, func(c *Connection) bool {
		return c.InGroup(group)
	})
}

// BroadcastUser enqueues an invocation onto the connections whose
// authenticated identity equals user.
func (m *Manager) BroadcastUser(ctx context.Context, user, method string, args ...any) error {
	return m.broadcast(ctx, method, args, func(c *Connection) bool {
		return c.User() == user
	})
}

// broadcast iterates a registry snapshot, serializes independently per target
// and enqueues with backpressure. It returns once every send has been accepted
// by its queue, not once delivered; there is no per-call timeout, so a stalled
// consumer stalls the whole call until ctx is done. Targets whose outbound
// queue has completed are skipped.
func (m *Manager) broadcast(ctx context.Context, method string, args []any, match func(*Connection) bool) error {
	inv := &protocol.Invocation{Method: method, Args: args}
	for _, c := range m.registry.Snapshot() {
		if match != nil && !match(c) {
			continue
		}
		data, err := m.encode(c, inv)
		if err != nil {
			return err
		}
		if err := c.Outbound().Write(ctx, data); err != nil {
			if errors.Is(err, hubwire.ErrQueueCompleted) {
				m.log.Debug("skipping closing connection", "connection_id", c.ID(), "method", method)
				continue
			}
			return err
		}
	}
	return nil
}

// Invoke sends a correlated invocation to one connection and suspends until
// the completion arrives, the target disconnects, or ctx is done. An unknown
// id fails immediately with hubwire.ErrConnectionNotFound.
func (m *Manager) Invoke(ctx context.Context, connectionID, method string, args ...any) (any, error) {
	c, err := m.registry.Get(connectionID)
	if err != nil {
		return nil, err
	}
	id, result := c.Calls().Register()
	data, err := m.encode(c, &protocol.Invocation{ID: id, Method: method, Args: args})
	if err != nil {
		c.Calls().Drop(id)
		return nil, err
	}
	if err := c.Outbound().Write(ctx, data); err != nil {
		c.Calls().Drop(id)
		return nil, err
	}
	select {
	case res := <-result:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Value, nil
	case <-ctx.Done():
		c.Calls().Drop(id)
		return nil, ctx.Err()
	}
}

// ResolveCompletion resolves the pending invocation matched by the
// completion's correlation id. A peer-reported error string resolves the
// caller with *hubwire.RemoteError; error and result are mutually exclusive.
func (m *Manager) ResolveCompletion(c *Connection, comp *protocol.Completion) error {
	if comp.Error != "" && comp.Result != nil {
		return hubwire.ErrInvalidCompletion
	}
	if comp.Error != "" {
		return c.Calls().Resolve(comp.ID, Result{Err: &hubwire.RemoteError{Message: comp.Error}})
	}
	return c.Calls().Resolve(comp.ID, Result{Value: comp.Result})
}

// AddGroup adds the connection to the named group. Idempotent; fails with
// hubwire.ErrConnectionNotFound for an unknown connection.
func (m *Manager) AddGroup(connectionID, group string) error {
	c, err := m.registry.Get(connectionID)
	if err != nil {
		return err
	}
	c.JoinGroup(group)
	return nil
}

// RemoveGroup removes the connection from the named group. A no-op when the
// connection is gone or never joined.
func (m *Manager) RemoveGroup(connectionID, group string) error {
	c, err := m.registry.Get(connectionID)
	if err != nil {
		return nil
	}
	c.LeaveGroup(group)
	return nil
}

func (m *Manager) encode(c *Connection, inv *protocol.Invocation) ([]byte, error) {
	codec, err := m.codecs.Get(c.Format())
	if err != nil {
		return nil, err
	}
	return codec.EncodeInvocation(inv)
}
