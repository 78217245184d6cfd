package client

import (
	"time"

	"github.com/palemoky/turnstile/internal/protocol"
)

// Action 提交操作
func (c *Client) Action(actionType string, data map[string]any) error {
	return c.Send(protocol.MustNewMessage(protocol.MsgAction, protocol.ActionPayload{
		Type: actionType,
		Data: data,
	}))
}

// Ready 设置准备状态
func (c *Client) Ready(ready bool) error {
	return c.Send(protocol.MustNewMessage(protocol.MsgReady, protocol.ReadyPayload{Ready: ready}))
}

// Leave 离开会话，服务端随后关闭连接
func (c *Client) Leave() error {
	c.leaving.Store(true)
	return c.Send(protocol.MustNewMessage(protocol.MsgLeave, nil))
}

// RequestState 请求当前状态
func (c *Client) RequestState() error {
	return c.Send(protocol.MustNewMessage(protocol.MsgState, nil))
}

// Ping 发送心跳，收到 pong 后更新 Latency
func (c *Client) Ping() error {
	return c.Send(protocol.MustNewMessage(protocol.MsgPing, protocol.PingPayload{
		Timestamp: time.Now().UnixMilli(),
	}))
}

// StartHeartbeat 按 interval 发送心跳直到客户端关闭
func (c *Client) StartHeartbeat(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if !c.IsReconnecting() {
					_ = c.Ping()
				}
			case <-c.done:
				return
			}
		}
	}()
}
