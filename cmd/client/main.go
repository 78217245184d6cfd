package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/palemoky/turnstile/internal/client"
	"github.com/palemoky/turnstile/internal/logger"
	"github.com/palemoky/turnstile/internal/sound"
	"github.com/palemoky/turnstile/internal/ui"
)

func main() {
	serverAddr := flag.String("server", "localhost:1780", "服务器地址")
	sessionID := flag.String("session", "", "会话 ID")
	playerID := flag.String("player", "", "玩家 ID，留空以旁观者身份连接")
	format := flag.String("format", "json", "帧格式: json 或 pb")
	soundDir := flag.String("sounds", "assets/sounds", "音效目录")
	logFile := flag.String("log", "", "日志文件，留空不记录")
	flag.Parse()

	if err := run(*serverAddr, *sessionID, *playerID, *format, *soundDir, *logFile); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run(serverAddr, sessionID, playerID, format, soundDir, logFile string) error {
	if err := logger.Init(logger.Options{Level: "debug", File: logFile, FileOnly: true}); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer logger.Close()

	notices := make(chan tea.Msg, 8)
	notify := func(msg tea.Msg) {
		select {
		case notices <- msg:
		default:
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, err := client.Dial(ctx, client.Options{
		URL:       fmt.Sprintf("ws://%s/ws", serverAddr),
		SessionID: sessionID,
		PlayerID:  playerID,
		Format:    format,
		OnReconnecting: func(attempt, maxTries int) {
			notify(ui.ReconnectingMsg{Attempt: attempt, Max: maxTries})
		},
		OnReconnect: func() { notify(ui.ReconnectedMsg{}) },
	})
	if err != nil {
		return fmt.Errorf("连接服务器失败: %w", err)
	}
	defer conn.Close()
	conn.StartHeartbeat(5 * time.Second)

	player := sound.New(soundDir)
	go func() {
		_ = player.Init()
	}()
	defer player.Close()

	model := ui.New(conn, ui.Options{
		SessionID: sessionID,
		PlayerID:  playerID,
		Notices:   notices,
		Sound:     player,
	})
	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("启动客户端时出错: %w", err)
	}
	return nil
}
