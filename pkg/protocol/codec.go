package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Common codec errors.
var (
	ErrInvalidMessage = errors.New("invalid message format")
	ErrUnknownCodec   = errors.New("unknown codec type")
)

// Codec handles message encoding/decoding.
type Codec interface {
	// Encode serializes a message to bytes.
	Encode(msg Message) ([]byte, error)

	// Decode deserializes bytes to a message.
	Decode(data []byte) (Message, error)

	// Name returns the codec name.
	Name() string

	// Binary reports whether frames must be sent as binary.
	Binary() bool
}

// JSONCodec implements Codec using JSON encoding.
type JSONCodec struct{}

func (JSONCodec) Encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (JSONCodec) Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if msg.Event == "" {
		return Message{}, ErrInvalidMessage
	}
	return msg, nil
}

func (JSONCodec) Name() string { return "json" }
func (JSONCodec) Binary() bool { return false }

// MsgPackCodec implements Codec using MessagePack encoding.
type MsgPackCodec struct{}

func (MsgPackCodec) Encode(msg Message) ([]byte, error) {
	return msgpack.Marshal(msg)
}

func (MsgPackCodec) Decode(data []byte) (Message, error) {
	var msg Message
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if msg.Event == "" {
		return Message{}, ErrInvalidMessage
	}
	return msg, nil
}

func (MsgPackCodec) Name() string { return "msgpack" }
func (MsgPackCodec) Binary() bool { return true }

// CodecByName returns the codec for name. An empty name selects JSON.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "msgpack":
		return MsgPackCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}
