package session

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/palemoky/turnstile/internal/apperrors"
)

// AddPlayer 玩家加入会话，仅在等待阶段允许
func (e *Engine) AddPlayer(sessionID string, info PlayerInfo) error {
	s, err := e.acquire(sessionID)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	if s.status != StatusWaiting {
		return apperrors.ErrInvalidState
	}
	if len(s.players) >= s.config.MaxPlayers {
		return apperrors.ErrGameFull
	}
	if s.indexOf(info.ID) >= 0 {
		return apperrors.ErrDuplicatePlayer
	}

	now := e.deps.Now()
	s.players = append(s.players, &Participant{
		ID:           info.ID,
		Name:         info.Name,
		Ready:        info.Ready,
		Connected:    true,
		JoinedAt:     now,
		LastActiveAt: now,
	})
	s.touch(now)

	log.Info().Str("session_id", s.id).Str("player_id", info.ID).Int("players", len(s.players)).Msg("👤 玩家加入会话")
	e.publish(Event{Type: EventPlayerJoined, SessionID: s.id, PlayerID: info.ID})

	if len(s.players) >= s.config.MinPlayers {
		e.maybeAutoStartLocked(s)
	}
	return nil
}

// RemovePlayer 玩家离开会话
//
// 进行中的会话人数低于下限时以 insufficient_players 结束；离开的是当前回合玩家则立即轮转。
func (e *Engine) RemovePlayer(sessionID, playerID string) error {
	s, err := e.acquire(sessionID)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	idx := s.indexOf(playerID)
	if idx < 0 {
		return apperrors.ErrPlayerNotFound
	}
	if s.status == StatusEnded {
		return apperrors.ErrInvalidState
	}

	s.players = slices.Delete(s.players, idx, idx+1)
	s.touch(e.deps.Now())

	log.Info().Str("session_id", s.id).Str("player_id", playerID).Int("players", len(s.players)).Msg("👋 玩家离开会话")
	e.publish(Event{Type: EventPlayerLeft, SessionID: s.id, PlayerID: playerID})

	if s.status != StatusActive {
		return nil
	}
	if len(s.players) < s.config.MinPlayers {
		e.endLocked(s, ReasonInsufficientPlayers, "")
		return nil
	}
	if s.currentTurn == playerID {
		e.nextTurnLocked(s)
	}
	return nil
}

// SetReady 设置玩家准备状态，仅在等待阶段允许
func (e *Engine) SetReady(sessionID, playerID string, ready bool) error {
	s, err := e.acquire(sessionID)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	p := s.player(playerID)
	if p == nil {
		return apperrors.ErrPlayerNotFound
	}
	if s.status != StatusWaiting {
		return apperrors.ErrInvalidState
	}

	now := e.deps.Now()
	p.Ready = ready
	p.LastActiveAt = now
	s.touch(now)
	e.publish(Event{Type: EventPlayerReady, SessionID: s.id, PlayerID: playerID, Ready: ready})

	e.maybeAutoStartLocked(s)
	return nil
}

// SetConnected 更新玩家连接状态，由传输层在连接建立和断开时调用
func (e *Engine) SetConnected(sessionID, playerID string, connected bool) error {
	s, err := e.acquire(sessionID)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	p := s.player(playerID)
	if p == nil {
		return apperrors.ErrPlayerNotFound
	}
	if s.status == StatusEnded {
		return apperrors.ErrInvalidState
	}
	if p.Connected == connected {
		return nil
	}

	now := e.deps.Now()
	p.Connected = connected
	p.LastActiveAt = now
	s.touch(now)

	if connected {
		log.Info().Str("session_id", s.id).Str("player_id", playerID).Msg("📶 玩家重新连接")
	} else {
		log.Info().Str("session_id", s.id).Str("player_id", playerID).Msg("📴 玩家断开连接")
	}
	e.publish(Event{Type: EventPlayerConnection, SessionID: s.id, PlayerID: playerID, Connected: connected})
	return nil
}

// StartSession 显式开始游戏
func (e *Engine) StartSession(sessionID string) error {
	s, err := e.acquire(sessionID)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	return e.startLocked(s)
}

// EndSession 结束会话，对已结束的会话重复调用不产生任何效果
func (e *Engine) EndSession(sessionID, reason, winner string) error {
	s, err := e.acquire(sessionID)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	if reason == "" {
		reason = ReasonAborted
	}
	e.endLocked(s, reason, winner)
	return nil
}

// maybeAutoStartLocked 开启自动开始时，所有玩家准备好且人数达到下限即开局
func (e *Engine) maybeAutoStartLocked(s *Session) {
	if !s.config.AutoStart || s.status != StatusWaiting {
		return
	}
	if len(s.players) < s.config.MinPlayers || !s.allReady() {
		return
	}
	if err := e.startLocked(s); err != nil {
		log.Error().Err(err).Str("session_id", s.id).Msg("自动开始失败")
	}
}

// startLocked waiting → active，显式开始与自动开始共用此入口
func (e *Engine) startLocked(s *Session) error {
	if s.status != StatusWaiting {
		return apperrors.ErrInvalidState
	}
	if len(s.players) < s.config.MinPlayers {
		return apperrors.ErrNotEnoughPlayers
	}

	// Fisher–Yates 洗牌确定行动顺序
	order := make([]string, len(s.players))
	for i, p := range s.players {
		order[i] = p.ID
	}
	e.deps.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})

	view := s.snapshotLocked()
	view.Status = StatusActive
	view.TurnOrder = slices.Clone(order)
	view.CurrentTurn = order[0]
	data, err := s.hooks.initialize(view)
	if err != nil {
		return fmt.Errorf("initialize game data: %w", err)
	}

	now := e.deps.Now()
	s.turnOrder = order
	s.gameData = data
	s.status = StatusActive
	s.startedAt = now
	s.touch(now)

	log.Info().Str("session_id", s.id).Strs("turn_order", order).Msg("🎮 游戏开始")
	e.publish(Event{Type: EventSessionStarted, SessionID: s.id})

	e.beginTurnLocked(s, order[0])
	return nil
}

// endLocked * → ended：停止计时器、记录结果、异步持久化并安排清理
func (e *Engine) endLocked(s *Session, reason, winner string) {
	if s.status == StatusEnded {
		return
	}

	s.stopTimersLocked()

	now := e.deps.Now()
	s.status = StatusEnded
	s.endedAt = now
	s.endReason = reason
	s.winner = winner
	s.currentTurn = ""
	s.turnDeadline = time.Time{}
	s.touch(now)

	record := *s.snapshotLocked()
	e.deps.Go(func() { e.persist(record) })

	final, err := s.viewLocked("")
	if err != nil {
		log.Warn().Err(err).Str("session_id", s.id).Msg("过滤最终状态失败")
		final = nil
	}

	log.Info().Str("session_id", s.id).Str("reason", reason).Str("winner", winner).Msg("🏁 游戏结束")
	e.publish(Event{Type: EventSessionEnded, SessionID: s.id, Reason: reason, Winner: winner, State: final})

	s.purgeTimer = e.deps.Scheduler.AfterFunc(e.deps.Retention, func() { e.purge(s) })
}

// persist 保存最终记录，失败只记录日志
func (e *Engine) persist(record Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), e.deps.SaveTimeout)
	defer cancel()

	if err := e.deps.Store.Save(ctx, record); err != nil {
		log.Error().Err(err).Str("session_id", record.ID).Msg("保存会话记录失败")
		return
	}
	log.Debug().Str("session_id", record.ID).Msg("💾 会话记录已保存")
}
