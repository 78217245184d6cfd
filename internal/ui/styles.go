package ui

import "github.com/charmbracelet/lipgloss"

// 图标
const (
	TurnIcon      = "▶"
	OnlineIcon    = "🟢"
	OfflineIcon   = "🔴"
	ReadyIcon     = "✓"
	SpectatorIcon = "👀"
)

var (
	docStyle     = lipgloss.NewStyle().Margin(1, 2)
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("228")).Bold(true).Render
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	promptStyle  = lipgloss.NewStyle().MarginTop(1)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	currentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
)
