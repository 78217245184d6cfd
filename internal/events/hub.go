// Package events 进程内事件中心，把引擎事件分发给各个连接
package events

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/palemoky/turnstile/internal/game/session"
)

const defaultBuffer = 64

// Subscription 一个订阅者，事件从 C 读取
//
// 缓冲区满时新事件被丢弃，Dropped 记录丢弃数量。
type Subscription struct {
	C <-chan session.Event

	ch        chan session.Event
	sessionID string
	dropped   atomic.Int64
}

// Dropped 因缓冲区满而丢弃的事件数
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Hub 实现 session.EventSink，Publish 不阻塞
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{} // sessionID → 订阅者，"" 表示全部会话
	buffer int
	closed bool
}

// NewHub 创建事件中心，buffer 为每个订阅者的缓冲大小
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Subscribe 订阅某个会话的事件，sessionID 为空时订阅全部会话
func (h *Hub) Subscribe(sessionID string) *Subscription {
	ch := make(chan session.Event, h.buffer)
	sub := &Subscription{C: ch, ch: ch, sessionID: sessionID}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(ch)
		return sub
	}
	set, ok := h.subs[sessionID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[sessionID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Unsubscribe 取消订阅并关闭通道，可重复调用
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[sub.sessionID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.sessionID)
	}
	close(sub.ch)
}

// Publish 实现 session.EventSink
func (h *Hub) Publish(ev session.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}
	h.deliver(h.subs[ev.SessionID], ev)
	if ev.SessionID != "" {
		h.deliver(h.subs[""], ev)
	}
}

func (h *Hub) deliver(set map[*Subscription]struct{}, ev session.Event) {
	for sub := range set {
		select {
		case sub.ch <- ev:
		default:
			n := sub.dropped.Add(1)
			log.Warn().
				Str("session_id", ev.SessionID).
				Str("event", string(ev.Type)).
				Int64("dropped", n).
				Msg("订阅者缓冲区已满，丢弃事件")
		}
	}
}

// SubscriberCount 某个会话的订阅者数量
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}

// Close 关闭所有订阅
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, set := range h.subs {
		for sub := range set {
			close(sub.ch)
		}
		delete(h.subs, id)
	}
}
