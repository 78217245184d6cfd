package codec

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/turnstile/internal/game/session"
	"github.com/palemoky/turnstile/internal/protocol"
	"github.com/palemoky/turnstile/internal/protocol/convert"
)

func TestForFormat(t *testing.T) {
	t.Parallel()

	c, err := ForFormat("")
	require.NoError(t, err)
	assert.False(t, c.Binary())

	c, err = ForFormat(FormatProtobuf)
	require.NoError(t, err)
	assert.True(t, c.Binary())

	_, err = ForFormat("xml")
	assert.Error(t, err)
}

func TestCodecs_RoundTrip(t *testing.T) {
	t.Parallel()

	msg := protocol.MustNewMessage(protocol.MsgAction, protocol.ActionPayload{
		Type: "place",
		Data: map[string]any{"row": 1.0, "col": 2.0},
	})

	for _, c := range []Codec{JSON{}, Protobuf{}} {
		data, err := c.Encode(msg)
		require.NoError(t, err)

		out, err := c.Decode(data)
		require.NoError(t, err)
		assert.Equal(t, protocol.MsgAction, out.Type)
		assert.JSONEq(t, string(msg.Payload), string(out.Payload))

		payload, err := protocol.ParsePayload[protocol.ActionPayload](out)
		require.NoError(t, err)
		assert.Equal(t, "place", payload.Type)
		PutMessage(out)
	}
}

func TestCodecs_MessageWithoutPayload(t *testing.T) {
	t.Parallel()

	msg := protocol.MustNewMessage(protocol.MsgState, nil)
	for _, c := range []Codec{JSON{}, Protobuf{}} {
		data, err := c.Encode(msg)
		require.NoError(t, err)

		out, err := c.Decode(data)
		require.NoError(t, err)
		assert.Equal(t, protocol.MsgState, out.Type)
		assert.Empty(t, out.Payload)
	}
}

func TestJSON_EncodeHasNoTrailingNewline(t *testing.T) {
	t.Parallel()

	data, err := JSON{}.Encode(protocol.MustNewMessage(protocol.MsgPong, nil))
	require.NoError(t, err)
	assert.Equal(t, `{"type":"pong"}`, string(data))
}

func TestDecode_Invalid(t *testing.T) {
	t.Parallel()

	_, err := JSON{}.Decode([]byte("not json"))
	assert.Error(t, err)

	_, err = JSON{}.Decode([]byte(`{"payload":{}}`))
	assert.ErrorIs(t, err, convert.ErrMissingType)

	_, err = Protobuf{}.Decode([]byte{0xff, 0xff, 0xff})
	assert.Error(t, err)
}

func TestEventMessage(t *testing.T) {
	t.Parallel()

	ev := session.Event{
		ID:         "ev-1",
		Type:       session.EventTurnStarted,
		SessionID:  "s-1",
		PlayerID:   "p1",
		TurnNumber: 2,
		Deadline:   time.Date(2024, 1, 1, 0, 0, 30, 0, time.UTC),
		At:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	msg, err := EventMessage(ev)
	require.NoError(t, err)
	assert.Equal(t, protocol.MsgTurnStarted, msg.Type)
	assert.True(t, msg.Type.IsEvent())

	var decoded session.Event
	require.NoError(t, json.Unmarshal(msg.Payload, &decoded))
	assert.Equal(t, ev.PlayerID, decoded.PlayerID)
	assert.Equal(t, ev.TurnNumber, decoded.TurnNumber)
	assert.True(t, ev.Deadline.Equal(decoded.Deadline))
}
