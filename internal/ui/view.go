package ui

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/palemoky/turnstile/internal/game/session"
)

const maxGameDataLines = 12

func (m *Model) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle(fmt.Sprintf("Turnstile · 会话 %s", m.opts.SessionID)))
	sb.WriteString("\n\n")

	if m.state == nil {
		sb.WriteString(dimStyle.Render("等待服务器状态..."))
	} else {
		sb.WriteString(m.renderStatus())
		sb.WriteString("\n\n")
		sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			boxStyle.Render(m.renderPlayers()),
			" ",
			boxStyle.Render(m.renderGameData()),
		))
	}

	if len(m.log) > 0 {
		sb.WriteString("\n")
		sb.WriteString(boxStyle.Render(strings.Join(m.log, "\n")))
	}

	if m.notice != "" {
		sb.WriteString("\n")
		sb.WriteString(noticeStyle.Render(m.notice))
	}
	if m.err != "" {
		sb.WriteString("\n")
		sb.WriteString(errorStyle.Render(m.err))
	}

	if !m.closed && !m.left {
		sb.WriteString(promptStyle.Render(m.input.View()))
		sb.WriteString("\n")
		sb.WriteString(dimStyle.Render(helpText))
	}

	return docStyle.Render(sb.String())
}

func (m *Model) renderStatus() string {
	s := m.state
	parts := []string{"状态 " + string(s.Status)}
	if s.Config.GameType != "" {
		parts = append(parts, "游戏 "+s.Config.GameType)
	}

	switch s.Status {
	case session.StatusActive:
		parts = append(parts, fmt.Sprintf("回合 %d", s.TurnNumber))
		if s.CurrentTurn != "" {
			current := m.playerName(s.CurrentTurn)
			if m.isMe(s.CurrentTurn) {
				current = currentStyle.Render("轮到你了")
			}
			parts = append(parts, "当前 "+current)
		}
		if !s.TurnDeadline.IsZero() {
			remaining := max(s.TurnDeadline.Sub(m.now()), 0).Round(time.Second)
			parts = append(parts, "剩余 "+remaining.String())
		}
	case session.StatusEnded:
		parts = append(parts, "原因 "+s.EndReason)
		if s.Winner != "" {
			parts = append(parts, "胜者 "+m.playerName(s.Winner))
		}
	}

	if m.opts.PlayerID == "" {
		parts = append(parts, SpectatorIcon+" 旁观")
	}
	return strings.Join(parts, " | ")
}

func (m *Model) renderPlayers() string {
	lines := []string{fmt.Sprintf("玩家 %d/%d", len(m.state.Players), m.state.Config.MaxPlayers)}
	for _, p := range m.state.Players {
		marker := "  "
		if p.ID == m.state.CurrentTurn {
			marker = TurnIcon + " "
		}
		status := OfflineIcon
		if p.Connected {
			status = OnlineIcon
		}
		line := fmt.Sprintf("%s%s %s (%s)", marker, status, p.Name, p.ID)
		if p.Ready && m.state.Status == session.StatusWaiting {
			line += " " + ReadyIcon
		}
		if m.isMe(p.ID) {
			line = currentStyle.Render(line + " 你")
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderGameData() string {
	if m.state.GameData == nil {
		return dimStyle.Render("暂无游戏数据")
	}
	data, err := json.MarshalIndent(m.state.GameData, "", "  ")
	if err != nil {
		return errorStyle.Render(err.Error())
	}
	lines := strings.Split(string(data), "\n")
	if len(lines) > maxGameDataLines {
		lines = append(lines[:maxGameDataLines], "...")
	}
	return strings.Join(lines, "\n")
}
