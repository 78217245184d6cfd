package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/palemoky/turnstile/internal/apperrors"
	"github.com/palemoky/turnstile/internal/events"
	"github.com/palemoky/turnstile/internal/game/session"
	"github.com/palemoky/turnstile/internal/logger"
	"github.com/palemoky/turnstile/internal/protocol"
	"github.com/palemoky/turnstile/internal/protocol/codec"
)

const (
	// 写入超时
	writeWait = 10 * time.Second

	// 读取超时（pong 等待时间）
	pongWait = 60 * time.Second

	// ping 发送间隔（必须小于 pongWait）
	pingPeriod = (pongWait * 9) / 10

	// 消息最大大小
	maxMessageSize = 64 * 1024

	sendBuffer = 64

	// 超速警告次数超过该值断开连接
	maxRateWarnings = 5
)

// client 一个 WebSocket 连接
type client struct {
	h         *Handler
	conn      *websocket.Conn
	codec     codec.Codec
	sub       *events.Subscription
	sessionID string
	playerID  string // 为空表示旁观者

	send chan *protocol.Message // 对请求的直接回复
	done chan struct{}
	once sync.Once
	rate *messageRate
}

func newClient(h *Handler, conn *websocket.Conn, cdc codec.Codec, sub *events.Subscription, sessionID, playerID string) *client {
	return &client{
		h:         h,
		conn:      conn,
		codec:     cdc,
		sub:       sub,
		sessionID: sessionID,
		playerID:  playerID,
		send:      make(chan *protocol.Message, sendBuffer),
		done:      make(chan struct{}),
		rate:      newMessageRate(h.opts.MaxMessagesPerSecond),
	}
}

// readPump 读取客户端消息，返回时连接已结束
func (c *client) readPump() {
	defer c.handleDisconnect()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("session_id", c.sessionID).Msg("读取错误")
			}
			return
		}

		allowed, warning := c.rate.allow(c.h.now())
		if !allowed {
			if c.rate.warnings > maxRateWarnings {
				log.Warn().Str("session_id", c.sessionID).Str("player_id", c.playerID).Msg("🚫 客户端因多次超速被断开连接")
				return
			}
			c.reply(protocol.NewErrorMessage(protocol.ErrCodeRateLimit))
			continue
		}
		if warning {
			log.Debug().Str("player_id", c.playerID).Msg("客户端消息接近速率上限")
		}

		msg, err := c.codec.Decode(data)
		if err != nil {
			c.reply(protocol.NewErrorMessageWithText(protocol.ErrCodeInvalidMsg, err.Error()))
			continue
		}
		keep := c.handle(msg)
		codec.PutMessage(msg)
		if !keep {
			return
		}
	}
}

// handle 处理一条消息，返回 false 表示应断开连接
func (c *client) handle(msg *protocol.Message) bool {
	switch msg.Type {
	case protocol.MsgPing:
		p, err := protocol.ParsePayload[protocol.PingPayload](msg)
		if err != nil {
			c.reply(protocol.NewErrorMessage(protocol.ErrCodeInvalidMsg))
			return true
		}
		c.reply(protocol.MustNewMessage(protocol.MsgPong, protocol.PongPayload{
			ClientTimestamp: p.Timestamp,
			ServerTimestamp: c.h.now().UnixMilli(),
		}))

	case protocol.MsgState:
		snap, err := c.h.engine.GetState(c.sessionID, c.playerID)
		if err != nil {
			c.replyError(err)
			return true
		}
		c.reply(mustStateMessage(snap))

	case protocol.MsgAction:
		if !c.requirePlayer() {
			return true
		}
		p, err := protocol.ParsePayload[protocol.ActionPayload](msg)
		if err != nil || p.Type == "" {
			c.reply(protocol.NewErrorMessage(protocol.ErrCodeInvalidMsg))
			return true
		}
		err = c.h.engine.ProcessAction(c.sessionID, c.playerID, session.Action{Type: p.Type, Data: p.Data})
		if err != nil {
			c.replyError(err)
		}

	case protocol.MsgReady:
		if !c.requirePlayer() {
			return true
		}
		p, err := protocol.ParsePayload[protocol.ReadyPayload](msg)
		if err != nil {
			c.reply(protocol.NewErrorMessage(protocol.ErrCodeInvalidMsg))
			return true
		}
		if err := c.h.engine.SetReady(c.sessionID, c.playerID, p.Ready); err != nil {
			c.replyError(err)
		}

	case protocol.MsgLeave:
		if !c.requirePlayer() {
			return true
		}
		if err := c.h.engine.RemovePlayer(c.sessionID, c.playerID); err != nil {
			c.replyError(err)
			return true
		}
		c.playerID = ""
		return false

	default:
		c.reply(protocol.NewErrorMessageWithText(protocol.ErrCodeInvalidMsg, "unsupported message type "+string(msg.Type)))
	}
	return true
}

func (c *client) requirePlayer() bool {
	if c.playerID == "" {
		c.replyError(apperrors.ErrPlayerNotFound)
		return false
	}
	return true
}

func (c *client) replyError(err error) {
	msg := protocol.ErrorMessages[protocol.ErrCodeUnknown]
	var ge *apperrors.GameError
	if errors.As(err, &ge) {
		msg = ge.Message
	} else {
		log.Error().Err(err).Str("session_id", c.sessionID).Msg("处理客户端消息失败")
	}
	c.reply(protocol.NewErrorMessageWithText(apperrors.CodeOf(err), msg))
}

// reply 发送缓冲区满时断开连接
func (c *client) reply(msg *protocol.Message) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		log.Warn().Str("session_id", c.sessionID).Str("player_id", c.playerID).Msg("发送缓冲区已满")
		c.close()
	}
}

// writePump 转发会话事件与直接回复，并定时发送 ping
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r)
		}
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.sub.C:
			if !ok {
				c.writeClose(websocket.CloseGoingAway, "server shutting down")
				return
			}
			msg, err := codec.EventMessage(ev)
			if err != nil {
				log.Error().Err(err).Str("event", string(ev.Type)).Msg("事件编码失败")
				continue
			}
			if err := c.writeNow(msg); err != nil {
				return
			}
			if ev.Type == session.EventSessionEnded {
				c.writeClose(websocket.CloseNormalClosure, "session ended")
				return
			}

		case msg := <-c.send:
			if err := c.writeNow(msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// writeNow 直接写入一帧，只能在 writePump 启动前或 writePump 内调用
func (c *client) writeNow(msg *protocol.Message) error {
	data, err := c.codec.Encode(msg)
	if err != nil {
		return err
	}
	frameType := websocket.TextMessage
	if c.codec.Binary() {
		frameType = websocket.BinaryMessage
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(frameType, data)
}

func (c *client) writeClose(code int, text string) {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// handleDisconnect 取消订阅并标记玩家离线
func (c *client) handleDisconnect() {
	c.close()
	_ = c.conn.Close()
	c.h.hub.Unsubscribe(c.sub)

	if c.playerID != "" {
		err := c.h.engine.SetConnected(c.sessionID, c.playerID, false)
		if err != nil && !errors.Is(err, apperrors.ErrInvalidState) && !errors.Is(err, apperrors.ErrSessionNotFound) {
			log.Warn().Err(err).Str("session_id", c.sessionID).Str("player_id", c.playerID).Msg("更新连接状态失败")
		}
	}
	log.Info().Str("session_id", c.sessionID).Str("player_id", c.playerID).Msg("❌ WebSocket 已断开")
}
