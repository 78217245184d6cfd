package ui

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/palemoky/turnstile/internal/game/session"
	"github.com/palemoky/turnstile/internal/protocol"
)

func (m *Model) handleServerMessage(msg *protocol.Message) {
	switch {
	case msg.Type == protocol.MsgState:
		snap, err := protocol.ParsePayload[session.Snapshot](msg)
		if err != nil {
			log.Debug().Err(err).Msg("状态解析失败")
			return
		}
		m.state = snap

	case msg.Type == protocol.MsgPong:
		m.notice = fmt.Sprintf("延迟 %dms", m.conn.Latency().Milliseconds())

	case msg.Type == protocol.MsgError:
		p, err := protocol.ParsePayload[protocol.ErrorPayload](msg)
		if err != nil {
			return
		}
		m.err = fmt.Sprintf("❌ %s (%d)", p.Message, p.Code)

	case msg.Type.IsEvent():
		ev, err := protocol.ParsePayload[session.Event](msg)
		if err != nil {
			log.Debug().Err(err).Msg("事件解析失败")
			return
		}
		m.handleEvent(ev)
	}
}

func (m *Model) handleEvent(ev *session.Event) {
	m.appendLog(m.describeEvent(ev))

	switch ev.Type {
	case session.EventTurnStarted:
		if m.isMe(ev.PlayerID) {
			m.play(CueTurn)
		}
	case session.EventPlayerJoined:
		m.play(CueJoined)
	case session.EventActionApplied:
		if m.isMe(ev.PlayerID) {
			m.err = ""
		}
	case session.EventSessionEnded:
		m.play(CueEnded)
		if ev.State != nil {
			m.state = ev.State
		}
		return
	}

	// 事件只携带增量，重新拉取本视角的完整状态
	if err := m.conn.RequestState(); err != nil {
		m.err = err.Error()
	}
}

func (m *Model) playerName(id string) string {
	if m.state != nil {
		if p, ok := m.state.Player(id); ok && p.Name != "" {
			return p.Name
		}
	}
	return id
}

func (m *Model) describeEvent(ev *session.Event) string {
	name := m.playerName(ev.PlayerID)
	if m.isMe(ev.PlayerID) {
		name += " (你)"
	}

	var text string
	switch ev.Type {
	case session.EventSessionStarted:
		text = "🎮 会话开始"
	case session.EventTurnStarted:
		text = fmt.Sprintf("⏳ 第 %d 回合: %s", ev.TurnNumber, name)
	case session.EventActionApplied:
		actionType := ""
		if ev.Action != nil {
			actionType = ev.Action.Type
		}
		text = fmt.Sprintf("%s %s: %s", TurnIcon, name, actionType)
		if ev.Forced {
			text += " [超时代操作]"
		}
	case session.EventPlayerJoined:
		text = fmt.Sprintf("➕ %s 加入", name)
	case session.EventPlayerLeft:
		text = fmt.Sprintf("➖ %s 离开", name)
	case session.EventPlayerReady:
		if ev.Ready {
			text = fmt.Sprintf("%s %s 已准备", ReadyIcon, name)
		} else {
			text = fmt.Sprintf("%s 取消准备", name)
		}
	case session.EventPlayerConnection:
		if ev.Connected {
			text = fmt.Sprintf("%s %s 上线", OnlineIcon, name)
		} else {
			text = fmt.Sprintf("%s %s 离线", OfflineIcon, name)
		}
	case session.EventSessionEnded:
		text = "🏁 会话结束: " + ev.Reason
		if ev.Winner != "" {
			text += "，胜者 " + m.playerName(ev.Winner)
		}
	default:
		text = string(ev.Type)
	}

	if ev.At.IsZero() {
		return text
	}
	return ev.At.Local().Format("15:04:05") + " " + text
}
