package session

import (
	"github.com/rs/zerolog/log"

	"github.com/palemoky/turnstile/internal/logger"
)

// armTurnTimerLocked 取消旧的回合计时器并为当前玩家重新计时
func (e *Engine) armTurnTimerLocked(s *Session) {
	s.stopTurnTimerLocked()
	seq := s.turnSeq
	s.turnTimer = e.deps.Scheduler.AfterFunc(s.config.TurnTimeLimit, func() {
		e.onTurnTimeout(s, seq)
	})
}

// onTurnTimeout 回合超时：执行默认操作，没有默认操作则跳过该玩家
func (e *Engine) onTurnTimeout(s *Session, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 计时器已被取消或替换
	if s.purged || s.status != StatusActive || seq != s.turnSeq {
		return
	}

	playerID := s.currentTurn
	turn := s.turnNumber
	log.Info().Str("session_id", s.id).Str("player_id", playerID).Int("turn", turn).Msg("⏰ 回合超时")

	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r)
		}
		// 无论默认操作是否成功，会话仍在进行且回合未推进时强制跳过
		if s.status == StatusActive && s.turnNumber == turn {
			e.nextTurnLocked(s)
		}
	}()

	action, err := s.hooks.defaultAction(s.snapshotLocked(), playerID)
	switch {
	case err != nil:
		log.Warn().Err(err).Str("session_id", s.id).Str("player_id", playerID).Msg("获取默认操作失败，跳过该回合")
	case action != nil:
		err = e.applyActionLocked(s, playerID, *action, true)
		if err == nil {
			return
		}
		log.Warn().Err(err).Str("session_id", s.id).Str("player_id", playerID).Msg("默认操作被拒绝，跳过该回合")
	}

	e.publish(Event{
		Type:       EventActionApplied,
		SessionID:  s.id,
		PlayerID:   playerID,
		TurnNumber: turn,
		Forced:     true,
	})
}

// handleGameTimeout 游戏总时长到达，无论处于哪个阶段都结束会话
func (e *Engine) handleGameTimeout(s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.purged || s.status == StatusEnded {
		return
	}
	s.gameTimer = nil
	log.Info().Str("session_id", s.id).Str("status", string(s.status)).Msg("⌛ 游戏总时长已到")
	e.endLocked(s, ReasonTimeout, "")
}
