package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage(t *testing.T) {
	t.Parallel()

	msg, err := NewMessage(MsgAction, ActionPayload{Type: "move", Data: map[string]any{"x": 1.0}})
	require.NoError(t, err)
	assert.Equal(t, MsgAction, msg.Type)
	assert.JSONEq(t, `{"type":"move","data":{"x":1}}`, string(msg.Payload))

	payload, err := ParsePayload[ActionPayload](msg)
	require.NoError(t, err)
	assert.Equal(t, "move", payload.Type)
	assert.InDelta(t, 1.0, payload.Data["x"], 0)
}

func TestNewMessage_NilPayload(t *testing.T) {
	t.Parallel()

	msg, err := NewMessage(MsgState, nil)
	require.NoError(t, err)
	assert.Nil(t, msg.Payload)

	// 空 Payload 解析为零值
	payload, err := ParsePayload[ReadyPayload](msg)
	require.NoError(t, err)
	assert.False(t, payload.Ready)
}

func TestNewMessage_Unmarshalable(t *testing.T) {
	t.Parallel()

	_, err := NewMessage(MsgAction, make(chan int))
	assert.Error(t, err)
	assert.Panics(t, func() { MustNewMessage(MsgAction, make(chan int)) })
}

func TestParsePayload_Invalid(t *testing.T) {
	t.Parallel()

	_, err := ParsePayload[ReadyPayload](&Message{Type: MsgReady, Payload: []byte(`{"ready":`)})
	assert.Error(t, err)
}

func TestNewErrorMessage(t *testing.T) {
	t.Parallel()

	msg := NewErrorMessage(ErrCodeNotYourTurn)
	assert.Equal(t, MsgError, msg.Type)

	payload, err := ParsePayload[ErrorPayload](msg)
	require.NoError(t, err)
	assert.Equal(t, ErrCodeNotYourTurn, payload.Code)
	assert.Equal(t, "not your turn", payload.Message)

	custom := NewErrorMessageWithText(ErrCodeInvalidAction, "square occupied")
	payload, err = ParsePayload[ErrorPayload](custom)
	require.NoError(t, err)
	assert.Equal(t, "square occupied", payload.Message)
}

func TestMessageType_IsEvent(t *testing.T) {
	t.Parallel()

	assert.True(t, MsgTurnStarted.IsEvent())
	assert.True(t, MsgActionApplied.IsEvent())
	assert.False(t, MsgPong.IsEvent())
	assert.False(t, MsgError.IsEvent())
}
