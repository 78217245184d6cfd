// Package ws 通过 WebSocket 向玩家推送会话事件并接收玩家操作
package ws

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/palemoky/turnstile/internal/apperrors"
	"github.com/palemoky/turnstile/internal/events"
	"github.com/palemoky/turnstile/internal/game/session"
	"github.com/palemoky/turnstile/internal/protocol"
	"github.com/palemoky/turnstile/internal/protocol/codec"
)

// Engine 连接需要的引擎操作
type Engine interface {
	GetState(sessionID, viewerID string) (*session.Snapshot, error)
	SetConnected(sessionID, playerID string, connected bool) error
	SetReady(sessionID, playerID string, ready bool) error
	RemovePlayer(sessionID, playerID string) error
	ProcessAction(sessionID, playerID string, action session.Action) error
}

// Options 连接限制
type Options struct {
	AllowedOrigins       []string
	MaxConnections       int // 0 不限制
	MaxMessagesPerSecond int // 0 不限速
}

// Handler 处理 /ws?session=&player=&format=json|pb
//
// 不带 player 时以旁观者身份只读订阅。
type Handler struct {
	engine   Engine
	hub      *events.Hub
	upgrader websocket.Upgrader
	opts     Options

	semaphore chan struct{}
	now       func() time.Time
}

// NewHandler 创建 WebSocket 处理器
func NewHandler(engine Engine, hub *events.Hub, opts Options) *Handler {
	origins := NewOriginChecker(opts.AllowedOrigins)
	h := &Handler{
		engine: engine,
		hub:    hub,
		opts:   opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.Check,
		},
		now: time.Now,
	}
	if opts.MaxConnections > 0 {
		h.semaphore = make(chan struct{}, opts.MaxConnections)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.semaphore != nil {
		select {
		case h.semaphore <- struct{}{}:
			defer func() { <-h.semaphore }()
		default:
			log.Warn().Int("max", h.opts.MaxConnections).Msg("🚫 达到最大连接数限制")
			http.Error(w, "server full", http.StatusServiceUnavailable)
			return
		}
	}

	q := r.URL.Query()
	sessionID, playerID := q.Get("session"), q.Get("player")
	if sessionID == "" {
		http.Error(w, "session is required", http.StatusBadRequest)
		return
	}
	cdc, err := codec.ForFormat(q.Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	snap, err := h.engine.GetState(sessionID, playerID)
	if err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}
	if playerID != "" {
		if _, ok := snap.Player(playerID); !ok {
			http.Error(w, apperrors.ErrPlayerNotFound.Error(), http.StatusNotFound)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已写入错误响应
		log.Debug().Err(err).Msg("WebSocket 升级失败")
		return
	}

	// 先订阅再发送初始状态，避免漏掉两者之间的事件
	sub := h.hub.Subscribe(sessionID)
	c := newClient(h, conn, cdc, sub, sessionID, playerID)

	snap, err = h.engine.GetState(sessionID, playerID)
	if err == nil {
		err = c.writeNow(mustStateMessage(snap))
	}
	if err != nil {
		h.hub.Unsubscribe(sub)
		_ = conn.Close()
		return
	}

	if playerID != "" {
		if err := h.engine.SetConnected(sessionID, playerID, true); err != nil && !errors.Is(err, apperrors.ErrInvalidState) {
			log.Warn().Err(err).Str("session_id", sessionID).Str("player_id", playerID).Msg("更新连接状态失败")
		}
	}
	log.Info().
		Str("session_id", sessionID).
		Str("player_id", playerID).
		Str("format", q.Get("format")).
		Msg("✅ WebSocket 已连接")

	go c.writePump()
	c.readPump()
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrSessionNotFound), errors.Is(err, apperrors.ErrPlayerNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func mustStateMessage(snap *session.Snapshot) *protocol.Message {
	msg, err := codec.StateMessage(snap)
	if err != nil {
		return protocol.NewErrorMessage(protocol.ErrCodeUnknown)
	}
	return msg
}
