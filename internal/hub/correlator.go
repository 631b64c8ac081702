package hub

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/hubwire/hubwire"
)

// Result is the resolution of one pending invocation. Exactly one of Value
// and Err is meaningful.
type Result struct {
	Value any
	Err   error
}

// Correlator issues connection-scoped correlation ids and tracks the pending
// invocations awaiting completion. Ids are a monotonically increasing decimal
// counter; they are unique per connection, not globally, and are never reused
// while outstanding.
type Correlator struct {
	mu      sync.Mutex
	next    uint64
	pending map[string]chan Result
}

// Register allocates the next correlation id and a single-resolution result
// slot for it.
func (c *Correlator) Register() (string, <-chan Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		c.pending = make(map[string]chan Result)
	}
	c.next++
	id := strconv.FormatUint(c.next, 10)
	ch := make(chan Result, 1)
	c.pending[id] = ch
	return id, ch
}

// Resolve removes the pending invocation and delivers its result. It fails
// with hubwire.ErrUnknownInvocation when the id is not pending, which also
// guarantees each slot resolves at most once.
func (c *Correlator) Resolve(id string, res Result) error {
	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", hubwire.ErrUnknownInvocation, id)
	}
	ch <- res
	return nil
}

// Drop removes a pending invocation without resolving it. Used by a caller
// abandoning its own invocation (context cancellation, failed enqueue).
func (c *Correlator) Drop(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// CancelAll resolves every pending invocation with
// hubwire.ErrInvocationCanceled and empties the correlator. Called on
// disconnect so suspended callers fail instead of hanging.
func (c *Correlator) CancelAll() {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, ch := range pending {
		ch <- Result{Err: hubwire.ErrInvocationCanceled}
	}
}

// Len returns the number of pending invocations.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
