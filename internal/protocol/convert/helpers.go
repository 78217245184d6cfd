package convert

import (
	"encoding/json"
	"errors"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/palemoky/turnstile/internal/protocol"
)

const (
	fieldType    = "type"
	fieldPayload = "payload"
)

// ErrMissingType 二进制帧缺少消息类型
var ErrMissingType = errors.New("protobuf frame has no message type")

// --- Payload conversion ---

// JSONToValue JSON 文本转换为 structpb.Value
//
// 数字统一转换为 double，超过 2^53 的整数会丢失精度。
func JSONToValue(raw json.RawMessage) (*structpb.Value, error) {
	if len(raw) == 0 {
		return structpb.NewNullValue(), nil
	}
	v := &structpb.Value{}
	if err := protojson.Unmarshal(raw, v); err != nil {
		return nil, err
	}
	return v, nil
}

// ValueToJSON structpb.Value 转换为 JSON 文本，null 返回 nil
func ValueToJSON(v *structpb.Value) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if _, ok := v.GetKind().(*structpb.Value_NullValue); ok {
		return nil, nil
	}
	return protojson.Marshal(v)
}

// --- Message conversion ---

// MessageToProto 写入 dst，dst 由调用方提供以便复用
func MessageToProto(msg *protocol.Message, dst *structpb.Struct) error {
	payload, err := JSONToValue(msg.Payload)
	if err != nil {
		return err
	}
	if dst.Fields == nil {
		dst.Fields = make(map[string]*structpb.Value, 2)
	}
	dst.Fields[fieldType] = structpb.NewStringValue(string(msg.Type))
	dst.Fields[fieldPayload] = payload
	return nil
}

func ProtoToMessage(src *structpb.Struct, dst *protocol.Message) error {
	t := src.GetFields()[fieldType].GetStringValue()
	if t == "" {
		return ErrMissingType
	}
	payload, err := ValueToJSON(src.GetFields()[fieldPayload])
	if err != nil {
		return err
	}
	dst.Type = protocol.MessageType(t)
	dst.Payload = payload
	return nil
}
