package protocol

import (
	"errors"
	"testing"

	"github.com/hubwire/hubwire"
)

// TestInvocationRoundTrip encodes and decodes invocations with each codec.
func TestInvocationRoundTrip(t *testing.T) {
	t.Parallel()

	codecs := []Codec{JSONCodec{}, MsgpackCodec{}}
	tests := []struct {
		name string
		inv  Invocation
	}{
		{
			name: "correlated invocation with args",
			inv:  Invocation{ID: "7", Method: "Tick", Args: []any{"a", "b"}},
		},
		{
			name: "fire-and-forget without args",
			inv:  Invocation{Method: "Ping"},
		},
	}

	for _, codec := range codecs {
		for _, tt := range tests {
			t.Run(codec.Name()+"/"+tt.name, func(t *testing.T) {
				t.Parallel()

				data, err := codec.EncodeInvocation(&tt.inv)
				if err != nil {
					t.Fatalf("EncodeInvocation() error = %v", err)
				}

				msg, err := codec.Decode(data)
				if err != nil {
					t.Fatalf("Decode() error = %v", err)
				}
				got, ok := msg.(*Invocation)
				if !ok {
					t.Fatalf("Decode() = %T, want *Invocation", msg)
				}
				if got.ID != tt.inv.ID {
					t.Errorf("ID = %q, want %q", got.ID, tt.inv.ID)
				}
				if got.Method != tt.inv.Method {
					t.Errorf("Method = %q, want %q", got.Method, tt.inv.Method)
				}
				if len(got.Args) != len(tt.inv.Args) {
					t.Errorf("len(Args) = %d, want %d", len(got.Args), len(tt.inv.Args))
				}
			})
		}
	}
}

// TestCompletionRoundTrip encodes and decodes completions with each codec.
func TestCompletionRoundTrip(t *testing.T) {
	t.Parallel()

	codecs := []Codec{JSONCodec{}, MsgpackCodec{}}
	tests := []struct {
		name string
		comp Completion
	}{
		{
			name: "result completion",
			comp: Completion{ID: "1", Result: "pong"},
		},
		{
			name: "error completion",
			comp: Completion{ID: "2", Error: "boom"},
		},
		{
			name: "empty completion",
			comp: Completion{ID: "3"},
		},
	}

	for _, codec := range codecs {
		for _, tt := range tests {
			t.Run(codec.Name()+"/"+tt.name, func(t *testing.T) {
				t.Parallel()

				data, err := codec.EncodeCompletion(&tt.comp)
				if err != nil {
					t.Fatalf("EncodeCompletion() error = %v", err)
				}

				msg, err := codec.Decode(data)
				if err != nil {
					t.Fatalf("Decode() error = %v", err)
				}
				got, ok := msg.(*Completion)
				if !ok {
					t.Fatalf("Decode() = %T, want *Completion", msg)
				}
				if got.ID != tt.comp.ID {
					t.Errorf("ID = %q, want %q", got.ID, tt.comp.ID)
				}
				if got.Error != tt.comp.Error {
					t.Errorf("Error = %q, want %q", got.Error, tt.comp.Error)
				}
			})
		}
	}
}

// TestDecodeRejectsAmbiguousCompletion checks that a completion carrying both
// an error and a result never decodes successfully.
func TestDecodeRejectsAmbiguousCompletion(t *testing.T) {
	t.Parallel()

	data := []byte(`{"kind":2,"id":"1","error":"boom","result":42}`)
	_, err := JSONCodec{}.Decode(data)
	if !errors.Is(err, hubwire.ErrInvalidCompletion) {
		t.Fatalf("Decode() error = %v, want ErrInvalidCompletion", err)
	}
}

// TestDecodeInvalidMessages checks malformed envelopes are rejected.
func TestDecodeInvalidMessages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
	}{
		{name: "not json", data: []byte("{{{")},
		{name: "unknown kind", data: []byte(`{"kind":9}`)},
		{name: "invocation without method", data: []byte(`{"kind":1,"id":"1"}`)},
		{name: "completion without id", data: []byte(`{"kind":2,"result":1}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := (JSONCodec{}).Decode(tt.data); err == nil {
				t.Error("Decode() succeeded, want error")
			}
		})
	}
}

// TestRegistryLookup checks format identifiers resolve to codecs and unknown
// identifiers fail with ErrUnknownFormat.
func TestRegistryLookup(t *testing.T) {
	t.Parallel()

	reg := DefaultRegistry()

	for _, name := range []string{FormatJSON, FormatMsgpack} {
		codec, err := reg.Get(name)
		if err != nil {
			t.Fatalf("Get(%q) error = %v", name, err)
		}
		if codec.Name() != name {
			t.Errorf("Get(%q).Name() = %q", name, codec.Name())
		}
	}

	if _, err := reg.Get("protobuf"); !errors.Is(err, hubwire.ErrUnknownFormat) {
		t.Errorf("Get(unknown) error = %v, want ErrUnknownFormat", err)
	}
}
