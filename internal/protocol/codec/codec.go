package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"

	"github.com/palemoky/turnstile/internal/game/session"
	"github.com/palemoky/turnstile/internal/protocol"
	"github.com/palemoky/turnstile/internal/protocol/convert"
)

// Format names accepted by ForFormat
const (
	FormatJSON     = "json"
	FormatProtobuf = "pb"
)

// Codec encodes messages into WebSocket frames.
type Codec interface {
	Encode(msg *protocol.Message) ([]byte, error)
	// Decode returns a pooled message; release it with PutMessage.
	Decode(data []byte) (*protocol.Message, error)
	// Binary reports whether frames must be sent as binary messages.
	Binary() bool
}

// ForFormat picks a codec by name; an empty name selects JSON.
func ForFormat(name string) (Codec, error) {
	switch name {
	case "", FormatJSON:
		return JSON{}, nil
	case FormatProtobuf:
		return Protobuf{}, nil
	}
	return nil, fmt.Errorf("unsupported frame format %q", name)
}

// JSON encodes messages as JSON text frames.
type JSON struct{}

func (JSON) Encode(msg *protocol.Message) ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	if err := json.NewEncoder(buf).Encode(msg); err != nil {
		return nil, err
	}
	// json.Encoder appends a newline
	return bytes.Clone(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

func (JSON) Decode(data []byte) (*protocol.Message, error) {
	msg := GetMessage()
	if err := json.Unmarshal(data, msg); err != nil {
		PutMessage(msg)
		return nil, err
	}
	if msg.Type == "" {
		PutMessage(msg)
		return nil, convert.ErrMissingType
	}
	return msg, nil
}

func (JSON) Binary() bool { return false }

// Protobuf encodes messages as google.protobuf.Struct binary frames
// with "type" and "payload" fields.
type Protobuf struct{}

func (Protobuf) Encode(msg *protocol.Message) ([]byte, error) {
	pb := GetStruct()
	defer PutStruct(pb)

	if err := convert.MessageToProto(msg, pb); err != nil {
		return nil, err
	}
	return proto.Marshal(pb)
}

func (Protobuf) Decode(data []byte) (*protocol.Message, error) {
	pb := GetStruct()
	defer PutStruct(pb)

	if err := proto.Unmarshal(data, pb); err != nil {
		return nil, err
	}
	msg := GetMessage()
	if err := convert.ProtoToMessage(pb, msg); err != nil {
		PutMessage(msg)
		return nil, err
	}
	return msg, nil
}

func (Protobuf) Binary() bool { return true }

// EventMessage wraps an engine event in a message of the same type.
func EventMessage(ev session.Event) (*protocol.Message, error) {
	return protocol.NewMessage(protocol.MessageType(ev.Type), ev)
}

// StateMessage wraps a session view.
func StateMessage(snap *session.Snapshot) (*protocol.Message, error) {
	return protocol.NewMessage(protocol.MsgState, snap)
}
