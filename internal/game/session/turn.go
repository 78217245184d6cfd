package session

import (
	"maps"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/palemoky/turnstile/internal/apperrors"
)

// ProcessAction 处理当前回合玩家提交的操作
func (e *Engine) ProcessAction(sessionID, playerID string, action Action) error {
	s, err := e.acquire(sessionID)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	if s.status != StatusActive {
		return apperrors.ErrInvalidState
	}
	if s.currentTurn != playerID {
		return apperrors.ErrNotYourTurn
	}
	return e.applyActionLocked(s, playerID, action, false)
}

// applyActionLocked 校验 → 执行 → 提交 → 结束或轮转
//
// 校验失败或执行出错时会话状态不变，回合也不推进。
func (e *Engine) applyActionLocked(s *Session, playerID string, action Action, forced bool) error {
	action = Action{Type: action.Type, Data: maps.Clone(action.Data)}

	view := s.snapshotLocked()
	if v := s.hooks.validate(view, playerID, action); !v.Valid {
		return apperrors.InvalidAction(v.Reason)
	}

	res, err := s.hooks.execute(view, playerID, action)
	if err != nil {
		log.Error().Err(err).Str("session_id", s.id).Str("player_id", playerID).Msg("执行操作失败")
		return err
	}

	now := e.deps.Now()
	s.gameData = res.GameData
	if p := s.player(playerID); p != nil && !forced {
		p.LastActiveAt = now
	}
	s.touch(now)

	log.Debug().
		Str("session_id", s.id).
		Str("player_id", playerID).
		Str("action", action.Type).
		Bool("forced", forced).
		Msg("🎯 操作已执行")
	e.publish(Event{
		Type:       EventActionApplied,
		SessionID:  s.id,
		PlayerID:   playerID,
		TurnNumber: s.turnNumber,
		Action:     &action,
		Forced:     forced,
	})

	if res.GameEnded {
		reason := res.EndReason
		if reason == "" {
			reason = ReasonCompleted
		}
		e.endLocked(s, reason, res.Winner)
		return nil
	}

	e.nextTurnLocked(s)
	return nil
}

// nextTurnLocked 轮到下一位仍在会话中的玩家
func (e *Engine) nextTurnLocked(s *Session) {
	s.stopTurnTimerLocked()

	next, ok := s.nextHolder()
	if !ok {
		// 行动顺序中已无在场玩家
		e.endLocked(s, ReasonInsufficientPlayers, "")
		return
	}
	e.beginTurnLocked(s, next)
}

// nextHolder 从当前玩家在 turnOrder 中的位置向后循环查找，跳过已离开的玩家
//
// 当前玩家已离开时，其位置仍保留在 turnOrder 中，因此查找起点不变。
func (s *Session) nextHolder() (string, bool) {
	k := len(s.turnOrder)
	if k == 0 {
		return "", false
	}
	start := slices.Index(s.turnOrder, s.currentTurn)
	for step := 1; step <= k; step++ {
		id := s.turnOrder[(start+step+k)%k]
		if s.indexOf(id) >= 0 {
			return id, true
		}
	}
	return "", false
}

// beginTurnLocked 设置当前回合玩家并重新计时
func (e *Engine) beginTurnLocked(s *Session, playerID string) {
	now := e.deps.Now()
	s.currentTurn = playerID
	s.turnNumber++
	s.turnDeadline = now.Add(s.config.TurnTimeLimit)
	s.touch(now)

	e.armTurnTimerLocked(s)

	log.Debug().
		Str("session_id", s.id).
		Str("player_id", playerID).
		Int("turn", s.turnNumber).
		Msg("⏳ 回合开始")
	e.publish(Event{
		Type:       EventTurnStarted,
		SessionID:  s.id,
		PlayerID:   playerID,
		TurnNumber: s.turnNumber,
		Deadline:   s.turnDeadline,
	})
}
