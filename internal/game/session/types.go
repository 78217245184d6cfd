package session

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/palemoky/turnstile/internal/apperrors"
)

// Status 会话状态，只能单向推进：waiting → active → ended
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusActive  Status = "active"
	StatusEnded   Status = "ended"
)

// 结束原因
const (
	ReasonCompleted           = "completed"
	ReasonTimeout             = "timeout"
	ReasonInsufficientPlayers = "insufficient_players"
	ReasonAborted             = "aborted"
)

// Config 会话创建参数，创建后不可变
type Config struct {
	GameType      string
	MinPlayers    int
	MaxPlayers    int
	TurnTimeLimit time.Duration
	GameTimeLimit time.Duration
	AutoStart     bool           // 所有玩家准备且人数达到下限时自动开始
	Rules         map[string]any // 交给游戏类型解释的规则参数
}

type configJSON struct {
	GameType        string         `json:"game_type"`
	MinPlayers      int            `json:"min_players"`
	MaxPlayers      int            `json:"max_players"`
	TurnTimeLimitMs int64          `json:"turn_time_limit_ms"`
	GameTimeLimitMs int64          `json:"game_time_limit_ms"`
	AutoStart       bool           `json:"auto_start,omitempty"`
	Rules           map[string]any `json:"rules,omitempty"`
}

// MarshalJSON 时长以毫秒输出
func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(configJSON{
		GameType:        c.GameType,
		MinPlayers:      c.MinPlayers,
		MaxPlayers:      c.MaxPlayers,
		TurnTimeLimitMs: c.TurnTimeLimit.Milliseconds(),
		GameTimeLimitMs: c.GameTimeLimit.Milliseconds(),
		AutoStart:       c.AutoStart,
		Rules:           c.Rules,
	})
}

// UnmarshalJSON 读取毫秒时长
func (c *Config) UnmarshalJSON(data []byte) error {
	var raw configJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Config{
		GameType:      raw.GameType,
		MinPlayers:    raw.MinPlayers,
		MaxPlayers:    raw.MaxPlayers,
		TurnTimeLimit: time.Duration(raw.TurnTimeLimitMs) * time.Millisecond,
		GameTimeLimit: time.Duration(raw.GameTimeLimitMs) * time.Millisecond,
		AutoStart:     raw.AutoStart,
		Rules:         raw.Rules,
	}
	return nil
}

// Validate 检查配置约束
func (c Config) Validate() error {
	switch {
	case c.MinPlayers < 1:
		return apperrors.InvalidConfig("min_players must be at least 1")
	case c.MaxPlayers < c.MinPlayers:
		return apperrors.InvalidConfig(fmt.Sprintf("max_players (%d) is below min_players (%d)", c.MaxPlayers, c.MinPlayers))
	case c.TurnTimeLimit <= 0:
		return apperrors.InvalidConfig("turn time limit must be positive")
	case c.GameTimeLimit <= 0:
		return apperrors.InvalidConfig("game time limit must be positive")
	}
	return nil
}

func (c Config) clone() Config {
	c.Rules = maps.Clone(c.Rules)
	return c
}

// PlayerInfo 加入会话时提供的玩家信息
type PlayerInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Ready bool   `json:"ready,omitempty"`
}

// Participant 会话中的玩家
type Participant struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Ready        bool      `json:"ready"`
	Connected    bool      `json:"connected"`
	JoinedAt     time.Time `json:"joined_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// Action 玩家提交的操作，内容由游戏类型解释
type Action struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// Validation 游戏类型对操作的校验结果
type Validation struct {
	Valid  bool
	Reason string
}

// Valid 校验通过
func Valid() Validation { return Validation{Valid: true} }

// Invalid 校验失败并附带原因
func Invalid(reason string) Validation { return Validation{Reason: reason} }

// ExecuteResult 游戏类型执行操作后的结果
type ExecuteResult struct {
	GameData  any
	GameEnded bool
	EndReason string
	Winner    string
}

// Snapshot 会话在某一时刻的只读副本
//
// 传给游戏类型钩子时 GameData 为完整数据；GetState 返回的 GameData 已按观察者过滤。
type Snapshot struct {
	ID           string        `json:"id"`
	Config       Config        `json:"config"`
	Status       Status        `json:"status"`
	Players      []Participant `json:"players"`
	TurnOrder    []string      `json:"turn_order,omitempty"`
	CurrentTurn  string        `json:"current_turn,omitempty"`
	TurnNumber   int           `json:"turn_number"`
	TurnDeadline time.Time     `json:"turn_deadline,omitzero"`
	GameData     any           `json:"game_data,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	StartedAt    time.Time     `json:"started_at,omitzero"`
	EndedAt      time.Time     `json:"ended_at,omitzero"`
	UpdatedAt    time.Time     `json:"updated_at"`
	EndReason    string        `json:"end_reason,omitempty"`
	Winner       string        `json:"winner,omitempty"`
}

// Player 按 ID 查找玩家
func (s *Snapshot) Player(id string) (Participant, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}

// Summary 会话列表条目
type Summary struct {
	ID          string    `json:"id"`
	GameType    string    `json:"game_type"`
	Status      Status    `json:"status"`
	PlayerCount int       `json:"player_count"`
	MaxPlayers  int       `json:"max_players"`
	CreatedAt   time.Time `json:"created_at"`
}
