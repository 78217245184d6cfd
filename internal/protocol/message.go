package protocol

import "encoding/json"

// Message 基础消息结构
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MessageType 消息类型
type MessageType string

// 客户端 → 服务端 消息类型
const (
	MsgPing   MessageType = "ping"   // 心跳 ping
	MsgAction MessageType = "action" // 提交操作
	MsgReady  MessageType = "ready"  // 设置准备状态
	MsgLeave  MessageType = "leave"  // 离开会话
	MsgState  MessageType = "state"  // 拉取当前状态（服务端以 state 回复）
)

// 服务端 → 客户端 消息类型
const (
	MsgPong MessageType = "pong" // 心跳 pong

	// 会话事件，与引擎事件类型一一对应
	MsgSessionStarted   MessageType = "session_started"
	MsgTurnStarted      MessageType = "turn_started"
	MsgSessionEnded     MessageType = "session_ended"
	MsgPlayerJoined     MessageType = "player_joined"
	MsgPlayerLeft       MessageType = "player_left"
	MsgPlayerReady      MessageType = "player_ready"
	MsgPlayerConnection MessageType = "player_connection"
	MsgActionApplied    MessageType = "action_applied"

	// 错误
	MsgError MessageType = "error"
)

// IsEvent 是否为会话事件消息
func (t MessageType) IsEvent() bool {
	switch t {
	case MsgSessionStarted, MsgTurnStarted, MsgSessionEnded, MsgPlayerJoined,
		MsgPlayerLeft, MsgPlayerReady, MsgPlayerConnection, MsgActionApplied:
		return true
	}
	return false
}

// NewMessage 创建一个新消息
func NewMessage(msgType MessageType, payload any) (*Message, error) {
	var data json.RawMessage
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return &Message{
		Type:    msgType,
		Payload: data,
	}, nil
}

// MustNewMessage 创建消息，失败时 panic
func MustNewMessage(msgType MessageType, payload any) *Message {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		panic(err)
	}
	return msg
}

// ParsePayload 解析消息的 Payload 到指定类型
func ParsePayload[T any](msg *Message) (*T, error) {
	var payload T
	if len(msg.Payload) == 0 {
		return &payload, nil
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// NewErrorMessage 创建错误消息
func NewErrorMessage(code int) *Message {
	return NewErrorMessageWithText(code, ErrorMessages[code])
}

// NewErrorMessageWithText 创建带自定义文本的错误消息
func NewErrorMessageWithText(code int, text string) *Message {
	msg, _ := NewMessage(MsgError, ErrorPayload{
		Code:    code,
		Message: text,
	})
	return msg
}
