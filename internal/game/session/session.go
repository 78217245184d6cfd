package session

import (
	"slices"
	"sync"
	"time"
)

// Session 一局游戏，所有字段由 mu 保护
type Session struct {
	id     string
	config Config
	status Status

	players      []*Participant // 按加入顺序
	turnOrder    []string       // 开局时确定，之后不再变化
	currentTurn  string
	turnNumber   int
	turnDeadline time.Time
	gameData     any

	createdAt time.Time
	startedAt time.Time
	endedAt   time.Time
	updatedAt time.Time
	endReason string
	winner    string

	hooks hooks

	// 计时器
	turnTimer  Timer
	gameTimer  Timer
	purgeTimer Timer
	turnSeq    uint64 // 每次重新计时递增，用于识别过期的回调

	purged bool // 已从引擎移除，游戏类型实例已关闭

	mu sync.Mutex
}

// ID 会话 ID
func (s *Session) ID() string { return s.id }

func (s *Session) indexOf(playerID string) int {
	return slices.IndexFunc(s.players, func(p *Participant) bool { return p.ID == playerID })
}

func (s *Session) player(playerID string) *Participant {
	if i := s.indexOf(playerID); i >= 0 {
		return s.players[i]
	}
	return nil
}

func (s *Session) allReady() bool {
	for _, p := range s.players {
		if !p.Ready {
			return false
		}
	}
	return len(s.players) > 0
}

// touch 更新时间戳，保证 updatedAt 单调不减
func (s *Session) touch(now time.Time) {
	if now.After(s.updatedAt) {
		s.updatedAt = now
	}
}

// snapshotLocked 生成完整副本（包含未过滤的游戏数据）
func (s *Session) snapshotLocked() *Snapshot {
	players := make([]Participant, len(s.players))
	for i, p := range s.players {
		players[i] = *p
	}
	return &Snapshot{
		ID:           s.id,
		Config:       s.config.clone(),
		Status:       s.status,
		Players:      players,
		TurnOrder:    slices.Clone(s.turnOrder),
		CurrentTurn:  s.currentTurn,
		TurnNumber:   s.turnNumber,
		TurnDeadline: s.turnDeadline,
		GameData:     s.gameData,
		CreatedAt:    s.createdAt,
		StartedAt:    s.startedAt,
		EndedAt:      s.endedAt,
		UpdatedAt:    s.updatedAt,
		EndReason:    s.endReason,
		Winner:       s.winner,
	}
}

// viewLocked 生成某个观察者可见的副本
func (s *Session) viewLocked(viewerID string) (*Snapshot, error) {
	snap := s.snapshotLocked()
	if snap.GameData == nil {
		return snap, nil
	}
	filtered, err := s.hooks.filter(snap.GameData, viewerID)
	if err != nil {
		return nil, err
	}
	snap.GameData = filtered
	return snap, nil
}

func (s *Session) stopTurnTimerLocked() {
	if s.turnTimer != nil {
		s.turnTimer.Stop()
		s.turnTimer = nil
	}
	s.turnSeq++
}

func (s *Session) stopTimersLocked() {
	s.stopTurnTimerLocked()
	if s.gameTimer != nil {
		s.gameTimer.Stop()
		s.gameTimer = nil
	}
}
