// Package ui 会话的终端客户端界面
package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/palemoky/turnstile/internal/game/session"
	"github.com/palemoky/turnstile/internal/protocol"
)

const defaultLogSize = 10

// Conn 界面依赖的连接能力，由 client.Client 实现
type Conn interface {
	Messages() <-chan *protocol.Message
	Action(actionType string, data map[string]any) error
	Ready(ready bool) error
	Leave() error
	RequestState() error
	Ping() error
	Latency() time.Duration
}

// Sound 提示音
type Sound interface {
	Play(name string)
}

// 提示音名称，对应音效目录下的文件名
const (
	CueTurn   = "turn"
	CueJoined = "joined"
	CueEnded  = "ended"
)

// Options 界面参数
type Options struct {
	SessionID string
	PlayerID  string // 为空表示旁观
	Notices   <-chan tea.Msg
	Sound     Sound
	LogSize   int
}

// ReconnectingMsg 客户端正在重连
type ReconnectingMsg struct {
	Attempt, Max int
}

// ReconnectedMsg 客户端重连成功
type ReconnectedMsg struct{}

type serverMsg struct{ msg *protocol.Message }

type streamClosedMsg struct{}

// Model 会话界面
type Model struct {
	conn Conn
	opts Options

	state  *session.Snapshot
	log    []string
	input  textinput.Model
	notice string
	err    string
	closed bool
	left   bool
	width  int

	now func() time.Time
}

// New 创建界面
func New(conn Conn, opts Options) *Model {
	if opts.LogSize <= 0 {
		opts.LogSize = defaultLogSize
	}
	ti := textinput.New()
	ti.Placeholder = "输入命令，例如 ready 或 act move {\"x\":1}"
	ti.CharLimit = 256
	ti.Width = 60
	ti.Focus()

	return &Model{
		conn:  conn,
		opts:  opts,
		input: ti,
		now:   time.Now,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.listen(), m.listenNotices())
}

// listen 等待下一条服务端消息
func (m *Model) listen() tea.Cmd {
	ch := m.conn.Messages()
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return serverMsg{msg: msg}
	}
}

func (m *Model) listenNotices() tea.Cmd {
	if m.opts.Notices == nil {
		return nil
	}
	ch := m.opts.Notices
	return func() tea.Msg {
		return <-ch
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEsc:
			if m.closed {
				return m, tea.Quit
			}
			m.input.SetValue("")
			m.err = ""
			return m, nil
		case tea.KeyEnter:
			line := m.input.Value()
			m.input.SetValue("")
			return m, m.execute(line)
		}

	case serverMsg:
		m.handleServerMessage(msg.msg)
		return m, m.listen()

	case streamClosedMsg:
		m.closed = true
		m.notice = "连接已关闭，按 Esc 退出"
		return m, nil

	case ReconnectingMsg:
		m.notice = fmt.Sprintf("🔄 正在重连 (%d/%d)", msg.Attempt, msg.Max)
		return m, m.listenNotices()

	case ReconnectedMsg:
		m.notice = "✅ 重连成功"
		return m, m.listenNotices()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) isMe(playerID string) bool {
	return m.opts.PlayerID != "" && playerID == m.opts.PlayerID
}

func (m *Model) play(cue string) {
	if m.opts.Sound != nil {
		m.opts.Sound.Play(cue)
	}
}

func (m *Model) appendLog(line string) {
	m.log = append(m.log, line)
	if len(m.log) > m.opts.LogSize {
		m.log = m.log[len(m.log)-m.opts.LogSize:]
	}
}

// State 最近一次收到的会话状态
func (m *Model) State() *session.Snapshot { return m.state }
