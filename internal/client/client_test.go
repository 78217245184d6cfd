package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/turnstile/internal/events"
	"github.com/palemoky/turnstile/internal/game/session"
	"github.com/palemoky/turnstile/internal/protocol"
	"github.com/palemoky/turnstile/internal/transport/ws"
)

type harness struct {
	engine *session.Engine
	srv    *httptest.Server
	url    string
}

func newHarness(t *testing.T, wrap func(http.Handler) http.Handler) *harness {
	t.Helper()
	hub := events.NewHub(64)
	engine := session.NewEngine(session.EngineDeps{
		Events:    hub,
		Scheduler: session.NewManualScheduler(),
		Shuffle:   func(int, func(i, j int)) {},
		Go:        func(f func()) { f() },
	})
	var handler http.Handler = ws.NewHandler(engine, hub, ws.Options{})
	if wrap != nil {
		handler = wrap(handler)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
		engine.Close()
	})
	return &harness{
		engine: engine,
		srv:    srv,
		url:    "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
	}
}

func (h *harness) session(t *testing.T, players ...string) string {
	t.Helper()
	snap, err := h.engine.CreateSession(session.Config{MinPlayers: 1, MaxPlayers: 4})
	require.NoError(t, err)
	for _, p := range players {
		require.NoError(t, h.engine.AddPlayer(snap.ID, session.PlayerInfo{ID: p, Name: p}))
	}
	return snap.ID
}

func (h *harness) dial(t *testing.T, opts Options) *Client {
	t.Helper()
	opts.URL = h.url
	c, err := Dial(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

// next 读取直到出现指定类型的消息
func next(t *testing.T, c *Client, want protocol.MessageType) *protocol.Message {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case msg, ok := <-c.Messages():
			require.True(t, ok, "stream closed before %s", want)
			if msg.Type == want {
				return msg
			}
		case <-timeout:
			t.Fatalf("no %s message received", want)
			return nil
		}
	}
}

// drained 等待消息通道关闭
func drained(t *testing.T, c *Client) {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case _, ok := <-c.Messages():
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("message stream was not closed")
		}
	}
}

func TestDial_Validation(t *testing.T) {
	_, err := Dial(context.Background(), Options{URL: "ws://localhost/ws"})
	assert.Error(t, err)

	_, err = Dial(context.Background(), Options{URL: "ws://localhost/ws", SessionID: "s", Format: "xml"})
	assert.Error(t, err)
}

func TestDial_Rejected(t *testing.T) {
	h := newHarness(t, nil)

	_, err := Dial(context.Background(), Options{URL: h.url, SessionID: "missing"})
	var he *HandshakeError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusNotFound, he.Status)
}

func TestClient_PlaysTurns(t *testing.T) {
	h := newHarness(t, nil)
	id := h.session(t, "p1", "p2")
	c1 := h.dial(t, Options{SessionID: id, PlayerID: "p1"})

	state := next(t, c1, protocol.MsgState)
	snap, err := protocol.ParsePayload[session.Snapshot](state)
	require.NoError(t, err)
	assert.Equal(t, id, snap.ID)

	require.NoError(t, h.engine.StartSession(id))
	next(t, c1, protocol.MsgTurnStarted)

	require.NoError(t, c1.Action("move", map[string]any{"x": 1}))
	applied := next(t, c1, protocol.MsgActionApplied)
	ev, err := protocol.ParsePayload[session.Event](applied)
	require.NoError(t, err)
	require.NotNil(t, ev.Action)
	assert.Equal(t, "move", ev.Action.Type)

	require.NoError(t, c1.Action("move", nil))
	errMsg := next(t, c1, protocol.MsgError)
	p, err := protocol.ParsePayload[protocol.ErrorPayload](errMsg)
	require.NoError(t, err)
	assert.Equal(t, protocol.ErrCodeNotYourTurn, p.Code)
}

func TestClient_PingAndState(t *testing.T) {
	h := newHarness(t, nil)
	id := h.session(t, "p1")
	c := h.dial(t, Options{SessionID: id, PlayerID: "p1"})
	next(t, c, protocol.MsgState)

	require.NoError(t, c.Ping())
	pong := next(t, c, protocol.MsgPong)
	p, err := protocol.ParsePayload[protocol.PongPayload](pong)
	require.NoError(t, err)
	assert.Positive(t, p.ClientTimestamp)
	assert.GreaterOrEqual(t, c.Latency(), time.Duration(0))

	require.NoError(t, c.RequestState())
	next(t, c, protocol.MsgState)
}

func TestClient_Ready(t *testing.T) {
	h := newHarness(t, nil)
	id := h.session(t, "p1")
	c := h.dial(t, Options{SessionID: id, PlayerID: "p1", Format: "pb"})
	next(t, c, protocol.MsgState)

	require.NoError(t, c.Ready(true))
	next(t, c, protocol.MsgPlayerReady)

	snap, err := h.engine.GetState(id, "")
	require.NoError(t, err)
	p, _ := snap.Player("p1")
	assert.True(t, p.Ready)
}

func TestClient_SessionEndClosesStream(t *testing.T) {
	h := newHarness(t, nil)
	id := h.session(t, "p1")
	c := h.dial(t, Options{SessionID: id, PlayerID: "p1", ReconnectInterval: 10 * time.Millisecond})
	next(t, c, protocol.MsgState)

	require.NoError(t, h.engine.EndSession(id, "", ""))
	next(t, c, protocol.MsgSessionEnded)
	drained(t, c)
	assert.False(t, c.IsReconnecting())
}

func TestClient_Leave(t *testing.T) {
	h := newHarness(t, nil)
	id := h.session(t, "p1", "p2")
	c := h.dial(t, Options{SessionID: id, PlayerID: "p1", ReconnectInterval: 10 * time.Millisecond})
	next(t, c, protocol.MsgState)

	require.NoError(t, c.Leave())
	drained(t, c)

	snap, err := h.engine.GetState(id, "")
	require.NoError(t, err)
	_, ok := snap.Player("p1")
	assert.False(t, ok)
}

func TestClient_ReconnectsAfterDrop(t *testing.T) {
	var attempts atomic.Int32
	upgrader := websocket.Upgrader{}
	h := newHarness(t, func(inner http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if attempts.Add(1) == 1 {
				// 第一次连接建立后立即断开
				if conn, err := upgrader.Upgrade(w, r, nil); err == nil {
					_ = conn.Close()
				}
				return
			}
			inner.ServeHTTP(w, r)
		})
	})
	id := h.session(t, "p1")

	var reconnected atomic.Bool
	c := h.dial(t, Options{
		SessionID:         id,
		PlayerID:          "p1",
		ReconnectInterval: 10 * time.Millisecond,
		OnReconnect:       func() { reconnected.Store(true) },
	})

	next(t, c, protocol.MsgState)
	assert.True(t, reconnected.Load())
	assert.GreaterOrEqual(t, attempts.Load(), int32(2))

	assert.Eventually(t, func() bool {
		snap, err := h.engine.GetState(id, "")
		if err != nil {
			return false
		}
		p, _ := snap.Player("p1")
		return p.Connected
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClient_GivesUpWhenRejected(t *testing.T) {
	var attempts atomic.Int32
	upgrader := websocket.Upgrader{}
	h := newHarness(t, func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if attempts.Add(1) == 1 {
				if conn, err := upgrader.Upgrade(w, r, nil); err == nil {
					_ = conn.Close()
				}
				return
			}
			http.NotFound(w, r)
		})
	})
	id := h.session(t, "p1")

	var tries atomic.Int32
	c := h.dial(t, Options{
		SessionID:         id,
		PlayerID:          "p1",
		ReconnectInterval: 10 * time.Millisecond,
		OnReconnecting:    func(int, int) { tries.Add(1) },
	})

	drained(t, c)
	assert.Equal(t, int32(1), tries.Load())
}

func TestClient_Close(t *testing.T) {
	h := newHarness(t, nil)
	id := h.session(t, "p1")
	c := h.dial(t, Options{SessionID: id, PlayerID: "p1"})
	next(t, c, protocol.MsgState)

	c.Close()
	c.Close()
	drained(t, c)
	assert.ErrorIs(t, c.Send(protocol.MustNewMessage(protocol.MsgPing, nil)), ErrClosed)

	assert.Eventually(t, func() bool {
		snap, err := h.engine.GetState(id, "")
		if err != nil {
			return false
		}
		p, _ := snap.Player("p1")
		return !p.Connected
	}, 2*time.Second, 10*time.Millisecond)
}
