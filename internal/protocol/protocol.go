// Package protocol defines the invocation wire descriptors and the codecs
// that encode them. The rest of the module treats encoded messages as opaque
// bytes; only the dispatch loop and the hub manager look inside.
package protocol

import (
	"fmt"
	"sync"

	"github.com/hubwire/hubwire"
)

// MaxMessageSize bounds a single encoded message.
const MaxMessageSize = 10 * 1024 * 1024

// Message kind discriminator carried in every wire envelope.
const (
	kindInvocation = 1
	kindCompletion = 2
)

// Invocation describes a method call sent over the wire. An empty ID marks a
// fire-and-forget invocation that expects no completion.
type Invocation struct {
	ID     string
	Method string
	Args   []any
}

// Completion carries the outcome of a correlated invocation. Error and Result
// are mutually exclusive.
type Completion struct {
	ID     string
	Error  string
	Result any
}

// envelope is the single wire shape shared by both message kinds.
type envelope struct {
	Kind   int    `json:"kind" msgpack:"kind"`
	ID     string `json:"id,omitempty" msgpack:"id,omitempty"`
	Method string `json:"method,omitempty" msgpack:"method,omitempty"`
	Args   []any  `json:"args,omitempty" msgpack:"args,omitempty"`
	Error  string `json:"error,omitempty" msgpack:"error,omitempty"`
	Result any    `json:"result,omitempty" msgpack:"result,omitempty"`
}

// Codec encodes and decodes wire messages for one format identifier.
type Codec interface {
	// Name returns the format identifier this codec is registered under.
	Name() string

	// EncodeInvocation serializes an invocation to one wire message.
	EncodeInvocation(inv *Invocation) ([]byte, error)

	// EncodeCompletion serializes a completion to one wire message.
	EncodeCompletion(c *Completion) ([]byte, error)

	// Decode parses one wire message into either *Invocation or
	// *Completion.
	Decode(data []byte) (any, error)
}

// Registry maps format identifiers to codecs.
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]Codec
}

// NewRegistry returns an empty codec registry.
func NewRegistry() *Registry {
	return &Registry{codecs: make(map[string]Codec)}
}

// DefaultRegistry returns a registry with the built-in JSON and msgpack
// codecs registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(JSONCodec{})
	r.Register(MsgpackCodec{})
	return r
}

// Register adds or replaces the codec for its format identifier.
func (r *Registry) Register(c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[c.Name()] = c
}

// Get returns the codec for the format identifier.
func (r *Registry) Get(name string) (Codec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", hubwire.ErrUnknownFormat, name)
	}
	return c, nil
}

// decodeEnvelope validates a parsed envelope and converts it to its
// descriptor type.
func decodeEnvelope(env *envelope) (any, error) {
	switch env.Kind {
	case kindInvocation:
		if env.Method == "" {
			return nil, fmt.Errorf("protocol: invocation without method")
		}
		return &Invocation{ID: env.ID, Method: env.Method, Args: env.Args}, nil
	case kindCompletion:
		if env.ID == "" {
			return nil, fmt.Errorf("protocol: completion without invocation id")
		}
		if env.Error != "" && env.Result != nil {
			return nil, hubwire.ErrInvalidCompletion
		}
		return &Completion{ID: env.ID, Error: env.Error, Result: env.Result}, nil
	default:
		return nil, fmt.Errorf("protocol: unknown message kind %d", env.Kind)
	}
}

func checkSize(n int) error {
	if n > MaxMessageSize {
		return fmt.Errorf("protocol: message size %d exceeds maximum %d bytes", n, MaxMessageSize)
	}
	return nil
}
