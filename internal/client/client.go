// Package client 会话服务器的 WebSocket 客户端
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/palemoky/turnstile/internal/protocol"
	"github.com/palemoky/turnstile/internal/protocol/codec"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	bufferSize = 256

	defaultMaxReconnects     = 5
	defaultReconnectInterval = 2 * time.Second
	maxBackoff               = 30 * time.Second
)

// ErrClosed 客户端已关闭
var ErrClosed = errors.New("connection closed")

// ErrSendBufferFull 发送缓冲区已满
var ErrSendBufferFull = errors.New("send buffer full")

// Options 连接参数
type Options struct {
	URL       string // 例如 ws://localhost:1780/ws
	SessionID string
	PlayerID  string // 为空时以旁观者身份连接
	Format    string // json 或 pb

	MaxReconnects     int // 0 使用默认值，负数不重连
	ReconnectInterval time.Duration

	OnReconnecting func(attempt, max int)
	OnReconnect    func()
}

// Client WebSocket 客户端，断线后自动重连
//
// 服务端在每次连接建立时推送完整状态，重连后无需额外同步。
type Client struct {
	opts   Options
	codec  codec.Codec
	target string
	dialer websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	send    chan *protocol.Message
	receive chan *protocol.Message
	done    chan struct{}

	latency      atomic.Int64
	reconnecting atomic.Bool
	leaving      atomic.Bool
}

// Dial 连接服务器
func Dial(ctx context.Context, opts Options) (*Client, error) {
	cdc, err := codec.ForFormat(opts.Format)
	if err != nil {
		return nil, err
	}
	target, err := buildURL(opts)
	if err != nil {
		return nil, err
	}
	if opts.MaxReconnects == 0 {
		opts.MaxReconnects = defaultMaxReconnects
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = defaultReconnectInterval
	}

	c := &Client{
		opts:    opts,
		codec:   cdc,
		target:  target,
		dialer:  websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		send:    make(chan *protocol.Message, bufferSize),
		receive: make(chan *protocol.Message, bufferSize),
		done:    make(chan struct{}),
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	go c.run(conn)
	return c, nil
}

func buildURL(opts Options) (string, error) {
	if opts.SessionID == "" {
		return "", errors.New("session id is required")
	}
	u, err := url.Parse(opts.URL)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	q := u.Query()
	q.Set("session", opts.SessionID)
	if opts.PlayerID != "" {
		q.Set("player", opts.PlayerID)
	}
	if opts.Format != "" {
		q.Set("format", opts.Format)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// HandshakeError 服务端拒绝了连接
type HandshakeError struct {
	Status int
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake rejected: %d %s", e.Status, http.StatusText(e.Status))
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.target, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if errors.Is(err, websocket.ErrBadHandshake) && resp != nil {
			return nil, &HandshakeError{Status: resp.StatusCode}
		}
		return nil, err
	}
	return conn, nil
}

// run 管理连接生命周期，返回时关闭 Messages 通道
func (c *Client) run(conn *websocket.Conn) {
	defer close(c.receive)

	for {
		stop := make(chan struct{})
		go c.writePump(conn, stop)
		err := c.readPump(conn)
		close(stop)
		_ = conn.Close()

		if c.isClosed() || c.leaving.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			return
		}
		log.Debug().Err(err).Str("session_id", c.opts.SessionID).Msg("连接断开")

		conn = c.reconnect()
		if conn == nil {
			return
		}
	}
}

// reconnect 指数退避重连，失败返回 nil
func (c *Client) reconnect() *websocket.Conn {
	if c.opts.MaxReconnects < 0 {
		return nil
	}
	c.reconnecting.Store(true)
	defer c.reconnecting.Store(false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	backoff := c.opts.ReconnectInterval
	for attempt := 1; attempt <= c.opts.MaxReconnects; attempt++ {
		if c.opts.OnReconnecting != nil {
			c.opts.OnReconnecting(attempt, c.opts.MaxReconnects)
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil
		}
		backoff = min(backoff*2, maxBackoff)

		conn, err := c.dial(ctx)
		if err != nil {
			var he *HandshakeError
			if errors.As(err, &he) && he.Status < http.StatusInternalServerError {
				// 会话已不存在或玩家已被移除
				log.Warn().Err(err).Msg("❌ 重连被拒绝")
				return nil
			}
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close()
			return nil
		}
		c.conn = conn
		c.mu.Unlock()

		log.Info().Int("attempt", attempt).Msg("✅ 重连成功")
		if c.opts.OnReconnect != nil {
			c.opts.OnReconnect()
		}
		return conn
	}

	log.Warn().Int("attempts", c.opts.MaxReconnects).Msg("❌ 重连失败，已达最大尝试次数")
	return nil
}

// readPump 读取消息直到连接出错
func (c *Client) readPump(conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		decoded, err := c.codec.Decode(data)
		if err != nil {
			log.Warn().Err(err).Msg("消息解析错误")
			continue
		}
		// 解码结果来自对象池，交给调用方前复制一份
		msg := &protocol.Message{Type: decoded.Type, Payload: append([]byte(nil), decoded.Payload...)}
		codec.PutMessage(decoded)

		if msg.Type == protocol.MsgPong {
			c.recordLatency(msg)
		}

		select {
		case c.receive <- msg:
		default:
			log.Warn().Str("type", string(msg.Type)).Msg("接收缓冲区已满，丢弃消息")
		}
	}
}

func (c *Client) recordLatency(msg *protocol.Message) {
	p, err := protocol.ParsePayload[protocol.PongPayload](msg)
	if err != nil || p.ClientTimestamp == 0 {
		return
	}
	c.latency.Store(time.Now().UnixMilli() - p.ClientTimestamp)
}

// writePump 发送消息并定时 ping，stop 关闭时退出
func (c *Client) writePump(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	frameType := websocket.TextMessage
	if c.codec.Binary() {
		frameType = websocket.BinaryMessage
	}

	for {
		select {
		case msg := <-c.send:
			data, err := c.codec.Encode(msg)
			if err != nil {
				log.Warn().Err(err).Msg("消息编码错误")
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(frameType, data); err != nil {
				_ = conn.Close()
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}

		case <-stop:
			return
		case <-c.done:
			return
		}
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Messages 服务端推送的消息，连接最终结束后关闭
func (c *Client) Messages() <-chan *protocol.Message { return c.receive }

// Send 发送消息
func (c *Client) Send(msg *protocol.Message) error {
	if c.isClosed() {
		return ErrClosed
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close 正常关闭连接，不再重连
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	if c.conn != nil {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		_ = c.conn.Close()
	}
}

// Latency 最近一次 ping 的往返时延
func (c *Client) Latency() time.Duration {
	return time.Duration(c.latency.Load()) * time.Millisecond
}

// IsReconnecting 是否正在重连
func (c *Client) IsReconnecting() bool {
	return c.reconnecting.Load()
}
