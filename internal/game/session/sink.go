package session

import (
	"context"
	"time"
)

// EventType 引擎对外发布的事件类型
type EventType string

const (
	EventSessionStarted   EventType = "session_started"
	EventTurnStarted      EventType = "turn_started"
	EventSessionEnded     EventType = "session_ended"
	EventPlayerJoined     EventType = "player_joined"
	EventPlayerLeft       EventType = "player_left"
	EventPlayerReady      EventType = "player_ready"
	EventPlayerConnection EventType = "player_connection"
	EventActionApplied    EventType = "action_applied"
)

// Event 会话事件
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	SessionID  string    `json:"session_id"`
	PlayerID   string    `json:"player_id,omitempty"`
	TurnNumber int       `json:"turn_number,omitempty"`
	Deadline   time.Time `json:"deadline,omitzero"`
	Action     *Action   `json:"action,omitempty"`
	Forced     bool      `json:"forced,omitempty"`    // 超时由引擎代为执行
	Ready      bool      `json:"ready,omitempty"`     // player_ready
	Connected  bool      `json:"connected,omitempty"` // player_connection
	Reason     string    `json:"reason,omitempty"`
	Winner     string    `json:"winner,omitempty"`
	State      *Snapshot `json:"state,omitempty"` // session_ended 时为旁观者视角的最终状态
	At         time.Time `json:"at"`
}

// EventSink 接收事件并转发给传输层
//
// Publish 在会话锁内被调用，实现必须立即返回。
type EventSink interface {
	Publish(ev Event)
}

// EventSinkFunc 函数形式的 EventSink
type EventSinkFunc func(ev Event)

func (f EventSinkFunc) Publish(ev Event) { f(ev) }

type discardEvents struct{}

func (discardEvents) Publish(Event) {}

// PersistenceSink 持久化已结束会话的最终记录，引擎只写不读
type PersistenceSink interface {
	Save(ctx context.Context, rec Snapshot) error
}

type discardStore struct{}

func (discardStore) Save(context.Context, Snapshot) error { return nil }

// Timer 可取消的计时器句柄
type Timer interface {
	Stop() bool
}

// Scheduler 创建计时器
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
