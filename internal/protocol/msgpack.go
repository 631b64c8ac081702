package protocol

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// FormatMsgpack is the format identifier of the msgpack codec.
const FormatMsgpack = "msgpack"

// MsgpackCodec encodes wire messages as msgpack envelopes. Connections using
// it should run in binary transfer mode.
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string { return FormatMsgpack }

func (MsgpackCodec) EncodeInvocation(inv *Invocation) ([]byte, error) {
	data, err := msgpack.Marshal(envelope{
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

func (MsgpackCodec) EncodeCompletion(c *Completion) ([]byte, error) {
	data, err := msgpack.Marshal(envelope{
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

func (MsgpackCodec) Decode(data []byte) (any, error) {
	if err := checkSize(len(data)); err != nil {
		return nil, err
	}
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("protocol: decode: %w", err)
	}
	return decodeEnvelope(&env)
}
