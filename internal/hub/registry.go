package hub

import (
	"fmt"
	"sync"

	"github.com/hubwire/hubwire"
)

// Registry is the concurrent collection of live connections, keyed by id.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

// NewRegistry returns an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Connection)}
}

// Add inserts a connection. The id must not already be present; a duplicate
// is a programming error and panics.
func (r *Registry) Add(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[c.ID()]; ok {
		panic(fmt.Sprintf("hub: duplicate connection id %q", c.ID()))
	}
	r.conns[c.ID()] = c
}

// Remove deletes a connection. A no-op when absent.
func (r *Registry) Remove(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, c.ID())
}

// Get returns the connection with the given id, or
// hubwire.ErrConnectionNotFound.
func (r *Registry) Get(id string) (*Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", hubwire.ErrConnectionNotFound, id)
	}
	return c, nil
}

// Snapshot returns a copy of the live connections, safe to iterate while
// connects and disconnects proceed concurrently.
func (r *Registry) Snapshot() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Len returns the number of live connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
