package protocol

// 错误码
const (
	ErrCodeUnknown        = 1000
	ErrCodeInvalidMsg     = 1001
	ErrCodeInvalidConfig  = 1002 // 会话配置非法
	ErrCodeUnknownGame    = 1003 // 未注册的游戏类型
	ErrCodeRateLimit      = 1004
	ErrCodeNotFound       = 2001 // 会话不存在
	ErrCodeGameFull       = 2002
	ErrCodePlayerNotFound = 2003
	ErrCodeDuplicate      = 2004 // 玩家已在会话中
	ErrCodeInvalidState   = 3001
	ErrCodeNotYourTurn    = 3002
	ErrCodeInvalidAction  = 3003
	ErrCodeNotEnough      = 3004 // 人数不足
)

// ErrorMessages 错误码对应的消息
var ErrorMessages = map[int]string{
	ErrCodeUnknown:        "unknown error",
	ErrCodeInvalidMsg:     "invalid message",
	ErrCodeInvalidConfig:  "invalid session config",
	ErrCodeUnknownGame:    "unknown game type",
	ErrCodeRateLimit:      "too many messages",
	ErrCodeNotFound:       "session not found",
	ErrCodeGameFull:       "game is full",
	ErrCodePlayerNotFound: "player not found",
	ErrCodeDuplicate:      "player already joined",
	ErrCodeInvalidState:   "operation not allowed in current state",
	ErrCodeNotYourTurn:    "not your turn",
	ErrCodeInvalidAction:  "invalid action",
	ErrCodeNotEnough:      "not enough players",
}
