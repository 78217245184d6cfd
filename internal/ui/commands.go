package ui

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

const helpText = "命令: ready | unready | act <类型> [JSON] | state | ping | leave | quit"

type commandKind int

const (
	cmdReady commandKind = iota
	cmdUnready
	cmdAction
	cmdState
	cmdPing
	cmdLeave
	cmdQuit
	cmdHelp
)

type command struct {
	kind       commandKind
	actionType string
	data       map[string]any
}

var errEmptyCommand = errors.New("请输入命令")

// parseCommand 解析输入行
func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}, errEmptyCommand
	}
	name, rest, _ := strings.Cut(line, " ")

	switch strings.ToLower(name) {
	case "ready", "r":
		return command{kind: cmdReady}, nil
	case "unready":
		return command{kind: cmdUnready}, nil
	case "state", "s":
		return command{kind: cmdState}, nil
	case "ping":
		return command{kind: cmdPing}, nil
	case "leave":
		return command{kind: cmdLeave}, nil
	case "quit", "q":
		return command{kind: cmdQuit}, nil
	case "help", "h", "?":
		return command{kind: cmdHelp}, nil
	case "act", "a":
		actionType, raw, _ := strings.Cut(strings.TrimSpace(rest), " ")
		if actionType == "" {
			return command{}, errors.New("用法: act <类型> [JSON 数据]")
		}
		cmd := command{kind: cmdAction, actionType: actionType}
		if raw = strings.TrimSpace(raw); raw != "" {
			if err := json.Unmarshal([]byte(raw), &cmd.data); err != nil || cmd.data == nil {
				return command{}, errors.New("操作数据必须是 JSON 对象")
			}
		}
		return cmd, nil
	}
	return command{}, fmt.Errorf("未知命令: %s", name)
}

// execute 执行一条输入命令
func (m *Model) execute(line string) tea.Cmd {
	cmd, err := parseCommand(line)
	if err != nil {
		m.err = err.Error()
		return nil
	}
	m.err = ""

	if cmd.kind == cmdQuit {
		return tea.Quit
	}
	if cmd.kind == cmdHelp {
		m.notice = helpText
		return nil
	}
	if m.closed {
		m.err = "连接已关闭"
		return nil
	}
	if m.opts.PlayerID == "" && cmd.kind != cmdState && cmd.kind != cmdPing {
		m.err = "旁观者只能查看状态"
		return nil
	}

	switch cmd.kind {
	case cmdReady:
		err = m.conn.Ready(true)
	case cmdUnready:
		err = m.conn.Ready(false)
	case cmdAction:
		err = m.conn.Action(cmd.actionType, cmd.data)
	case cmdState:
		err = m.conn.RequestState()
	case cmdPing:
		err = m.conn.Ping()
	case cmdLeave:
		if err = m.conn.Leave(); err == nil {
			m.left = true
			m.notice = "已离开会话"
		}
	}
	if err != nil {
		m.err = err.Error()
	}
	return nil
}
