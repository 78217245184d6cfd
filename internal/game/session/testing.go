//go:build !production

package session

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

// ManualScheduler 手动触发的计时器，测试中替代 time.AfterFunc
type ManualScheduler struct {
	mu     sync.Mutex
	timers []*ManualTimer
}

// ManualTimer ManualScheduler 创建的计时器
type ManualTimer struct {
	Duration time.Duration

	f       func()
	mu      sync.Mutex
	stopped bool
	fired   bool
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

func (m *ManualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	t := &ManualTimer{Duration: d, f: f}
	m.mu.Lock()
	m.timers = append(m.timers, t)
	m.mu.Unlock()
	return t
}

// Pending 返回尚未触发也未停止的计时器
func (m *ManualScheduler) Pending() []*ManualTimer {
	m.mu.Lock()
	all := append([]*ManualTimer(nil), m.timers...)
	m.mu.Unlock()

	pending := make([]*ManualTimer, 0, len(all))
	for _, t := range all {
		if t.Active() {
			pending = append(pending, t)
		}
	}
	return pending
}

// PendingWith 返回时长为 d 的待触发计时器
func (m *ManualScheduler) PendingWith(d time.Duration) []*ManualTimer {
	var list []*ManualTimer
	for _, t := range m.Pending() {
		if t.Duration == d {
			list = append(list, t)
		}
	}
	return list
}

// Fire 触发所有时长为 d 的待触发计时器，返回触发的数量
func (m *ManualScheduler) Fire(d time.Duration) int {
	n := 0
	for _, t := range m.PendingWith(d) {
		if t.Fire() {
			n++
		}
	}
	return n
}

// Stop 实现 Timer
func (t *ManualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Active 是否仍在等待触发
func (t *ManualTimer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped && !t.fired
}

// Fire 触发计时器，已停止或已触发时返回 false
func (t *ManualTimer) Fire() bool {
	t.mu.Lock()
	if t.stopped || t.fired {
		t.mu.Unlock()
		return false
	}
	t.fired = true
	t.mu.Unlock()

	t.f()
	return true
}

// FireStale 无视停止状态执行回调，模拟 Stop 与到期同时发生
func (t *ManualTimer) FireStale() {
	t.f()
}

// EventRecorder 记录所有事件
type EventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *EventRecorder) Publish(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events 返回已记录事件的副本
func (r *EventRecorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType 返回指定类型的事件
func (r *EventRecorder) OfType(t EventType) []Event {
	var list []Event
	for _, ev := range r.Events() {
		if ev.Type == t {
			list = append(list, ev)
		}
	}
	return list
}

// Types 按顺序返回事件类型
func (r *EventRecorder) Types() []EventType {
	events := r.Events()
	types := make([]EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

func (r *EventRecorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// MemoryStore 内存 PersistenceSink
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Snapshot
}

func (s *MemoryStore) Save(_ context.Context, rec Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.records == nil {
		s.records = make(map[string]Snapshot)
	}
	s.records[rec.ID] = rec
	return nil
}

// Get 获取某个会话的记录
func (s *MemoryStore) Get(id string) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	return rec, ok
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// MockPersistenceSink PersistenceSink mock
type MockPersistenceSink struct {
	mock.Mock
}

func (m *MockPersistenceSink) Save(ctx context.Context, rec Snapshot) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}
