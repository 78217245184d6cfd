package session

import (
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/palemoky/turnstile/internal/apperrors"
	"github.com/palemoky/turnstile/internal/idgen"
)

const (
	defaultTurnTimeout = 30 * time.Second
	defaultGameTimeout = 2 * time.Hour
	defaultRetention   = 5 * time.Minute
	defaultSaveTimeout = 5 * time.Second
)

// EngineDeps 引擎依赖，零值字段使用默认实现
type EngineDeps struct {
	Events    EventSink
	Store     PersistenceSink
	GameTypes Resolver
	Scheduler Scheduler

	Now     func() time.Time
	Shuffle func(n int, swap func(i, j int))
	Go      func(f func()) // 执行持久化等后台任务

	DefaultTurnTimeout time.Duration
	DefaultGameTimeout time.Duration
	Retention          time.Duration // 会话结束后在内存中保留的时长
	SaveTimeout        time.Duration
}

// Engine 会话引擎，持有所有活跃会话
type Engine struct {
	deps     EngineDeps
	sessions map[string]*Session
	mu       sync.RWMutex

	saves sync.WaitGroup // 进行中的持久化任务
}

// NewEngine 创建会话引擎
func NewEngine(deps EngineDeps) *Engine {
	if deps.Events == nil {
		deps.Events = discardEvents{}
	}
	if deps.Store == nil {
		deps.Store = discardStore{}
	}
	if deps.GameTypes == nil {
		deps.GameTypes = inertResolver{}
	}
	if deps.Scheduler == nil {
		deps.Scheduler = realScheduler{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Shuffle == nil {
		deps.Shuffle = rand.Shuffle
	}
	if deps.Go == nil {
		deps.Go = func(f func()) { go f() }
	}
	if deps.DefaultTurnTimeout <= 0 {
		deps.DefaultTurnTimeout = defaultTurnTimeout
	}
	if deps.DefaultGameTimeout <= 0 {
		deps.DefaultGameTimeout = defaultGameTimeout
	}
	if deps.Retention <= 0 {
		deps.Retention = defaultRetention
	}
	if deps.SaveTimeout <= 0 {
		deps.SaveTimeout = defaultSaveTimeout
	}
	e := &Engine{
		deps:     deps,
		sessions: make(map[string]*Session),
	}
	spawn := deps.Go
	e.deps.Go = func(f func()) {
		e.saves.Add(1)
		spawn(func() {
			defer e.saves.Done()
			f()
		})
	}
	return e
}

// CreateSession 创建会话并启动游戏总时长计时器
func (e *Engine) CreateSession(cfg Config) (*Snapshot, error) {
	cfg = cfg.clone()
	if cfg.TurnTimeLimit == 0 {
		cfg.TurnTimeLimit = e.deps.DefaultTurnTimeout
	}
	if cfg.GameTimeLimit == 0 {
		cfg.GameTimeLimit = e.deps.DefaultGameTimeout
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	gt, err := resolveGameType(e.deps.GameTypes, cfg)
	if err != nil {
		return nil, err
	}

	now := e.deps.Now()
	s := &Session{
		id:        idgen.NewSessionID(),
		config:    cfg,
		status:    StatusWaiting,
		players:   make([]*Participant, 0, cfg.MaxPlayers),
		hooks:     hooks{gt: gt},
		createdAt: now,
		updatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e.mu.Lock()
	e.sessions[s.id] = s
	e.mu.Unlock()

	s.gameTimer = e.deps.Scheduler.AfterFunc(cfg.GameTimeLimit, func() {
		e.handleGameTimeout(s)
	})

	log.Info().
		Str("session_id", s.id).
		Str("game_type", cfg.GameType).
		Int("min_players", cfg.MinPlayers).
		Int("max_players", cfg.MaxPlayers).
		Msg("🏠 会话已创建")

	return s.snapshotLocked(), nil
}

// lookup 按 ID 获取会话
func (e *Engine) lookup(sessionID string) (*Session, error) {
	e.mu.RLock()
	s, ok := e.sessions[sessionID]
	e.mu.RUnlock()
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}
	return s, nil
}

// acquire 获取会话并加锁，已清理的会话视为不存在；成功时由调用方解锁
func (e *Engine) acquire(sessionID string) (*Session, error) {
	s, err := e.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.purged {
		s.mu.Unlock()
		return nil, apperrors.ErrSessionNotFound
	}
	return s, nil
}

// GetState 获取会话状态，GameData 按 viewerID 过滤；viewerID 为空表示旁观者
func (e *Engine) GetState(sessionID, viewerID string) (*Snapshot, error) {
	s, err := e.acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	return s.viewLocked(viewerID)
}

// ListSessions 列出会话，status 为空时返回全部
func (e *Engine) ListSessions(status Status) []Summary {
	e.mu.RLock()
	all := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		all = append(all, s)
	}
	e.mu.RUnlock()

	list := make([]Summary, 0, len(all))
	for _, s := range all {
		s.mu.Lock()
		if !s.purged && (status == "" || s.status == status) {
			list = append(list, Summary{
				ID:          s.id,
				GameType:    s.config.GameType,
				Status:      s.status,
				PlayerCount: len(s.players),
				MaxPlayers:  s.config.MaxPlayers,
				CreatedAt:   s.createdAt,
			})
		}
		s.mu.Unlock()
	}
	slices.SortFunc(list, func(a, b Summary) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return list
}

// ActiveCount 获取进行中的会话数量
func (e *Engine) ActiveCount() int {
	return len(e.ListSessions(StatusActive))
}

// Close 停止所有会话的计时器并等待进行中的保存，最多等待 SaveTimeout；会话状态保持不变
func (e *Engine) Close() {
	e.mu.RLock()
	all := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		all = append(all, s)
	}
	e.mu.RUnlock()

	for _, s := range all {
		s.mu.Lock()
		s.stopTimersLocked()
		if s.purgeTimer != nil {
			s.purgeTimer.Stop()
			s.purgeTimer = nil
		}
		s.mu.Unlock()
	}
	log.Info().Int("sessions", len(all)).Msg("⏹️ 会话引擎已停止全部计时器")

	done := make(chan struct{})
	go func() {
		e.saves.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(e.deps.SaveTimeout):
		log.Warn().Dur("timeout", e.deps.SaveTimeout).Msg("⚠️ 等待会话记录保存超时")
	}
}

// purge 宽限期结束后从内存中移除会话
func (e *Engine) purge(s *Session) {
	e.mu.Lock()
	if cur, ok := e.sessions[s.id]; ok && cur == s {
		delete(e.sessions, s.id)
	}
	e.mu.Unlock()

	s.mu.Lock()
	s.purged = true
	s.purgeTimer = nil
	err := s.hooks.close()
	s.mu.Unlock()

	if err != nil {
		log.Warn().Err(err).Str("session_id", s.id).Msg("关闭游戏类型实例失败")
	}
	log.Debug().Str("session_id", s.id).Msg("🧹 会话已清理")
}

// publish 发布事件，调用方持有会话锁
func (e *Engine) publish(ev Event) {
	ev.ID = idgen.NewEventID()
	ev.At = e.deps.Now()
	e.deps.Events.Publish(ev)
}
