package codec

import (
	"bytes"
	"sync"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/palemoky/turnstile/internal/protocol"
)

// Message pools for reducing GC pressure
var (
	messagePool = sync.Pool{
		New: func() any {
			return &protocol.Message{}
		},
	}

	structPool = sync.Pool{
		New: func() any {
			return &structpb.Struct{}
		},
	}

	bufferPool = sync.Pool{
		New: func() any {
			return new(bytes.Buffer)
		},
	}
)

// GetMessage retrieves a Message from the pool
func GetMessage() *protocol.Message {
	return messagePool.Get().(*protocol.Message)
}

// PutMessage returns a Message to the pool
// The message fields are reset to prevent memory leaks
func PutMessage(msg *protocol.Message) {
	if msg == nil {
		return
	}
	msg.Type = ""
	msg.Payload = nil
	messagePool.Put(msg)
}

// GetStruct retrieves an empty structpb.Struct from the pool
func GetStruct() *structpb.Struct {
	return structPool.Get().(*structpb.Struct)
}

// PutStruct returns a structpb.Struct to the pool
func PutStruct(s *structpb.Struct) {
	if s == nil {
		return
	}
	s.Reset()
	structPool.Put(s)
}

// GetBuffer retrieves a bytes.Buffer from the pool
func GetBuffer() *bytes.Buffer {
	return bufferPool.Get().(*bytes.Buffer)
}

// PutBuffer returns a bytes.Buffer to the pool
// The buffer is reset but capacity is preserved
func PutBuffer(buf *bytes.Buffer) {
	if buf == nil {
		return
	}
	buf.Reset()
	bufferPool.Put(buf)
}
