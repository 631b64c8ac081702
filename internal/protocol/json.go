package protocol

import (
	"encoding/json"
	"fmt"
)

// FormatJSON is the format identifier of the JSON codec.
const FormatJSON = "json"

// JSONCodec encodes wire messages as JSON envelopes. It is the default
// format when a connection negotiates nothing else.
type JSONCodec struct{}

func (JSONCodec) Name() string { return FormatJSON }

func (JSONCodec) EncodeInvocation(inv *Invocation) ([]byte, error) {
	data, err := json.Marshal(envelope{
		Kind:   kindInvocation,
		ID:     inv.ID,
		Method: inv.Method,
		Args:   inv.Args,
	})
	if err != nil {
		return nil, fmt.Errorf("protocol: encode invocation: %w", err)
	}
	if err := checkSize(len(data)); err != nil {
		return nil, err
	}
	return data, nil
}

func (JSONCodec) EncodeCompletion(c *Completion) ([]byte, error) {
	data, err := json.Marshal(envelope{
		Kind:   kindCompletion,
		ID:     c.ID,
		Error:  c.Error,
		Result: c.Result,
	})
	if err != nil {
		return nil, fmt.Errorf("protocol: encode completion: %w", err)
	}
	if err := checkSize(len(data)); err != nil {
		return nil, err
	}
	return data, nil
}

func (JSONCodec) Decode(data []byte) (any, error) {
	if err := checkSize(len(data)); err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("protocol: decode: %w", err)
	}
	return decodeEnvelope(&env)
}
