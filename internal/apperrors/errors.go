package apperrors

import (
	"errors"

	"github.com/palemoky/turnstile/internal/protocol"
)

// GameError 会话引擎错误，Code 对应 protocol 中的错误码
type GameError struct {
	Code    int
	Message string
}

func (e *GameError) Error() string {
	return e.Message
}

// Is 按错误码匹配，InvalidAction 携带不同原因时仍能匹配 ErrInvalidAction
func (e *GameError) Is(target error) bool {
	var t *GameError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// 预定义错误
var (
	ErrInvalidConfig    = newError(protocol.ErrCodeInvalidConfig)
	ErrUnknownGameType  = newError(protocol.ErrCodeUnknownGame)
	ErrSessionNotFound  = newError(protocol.ErrCodeNotFound)
	ErrGameFull         = newError(protocol.ErrCodeGameFull)
	ErrDuplicatePlayer  = newError(protocol.ErrCodeDuplicate)
	ErrPlayerNotFound   = newError(protocol.ErrCodePlayerNotFound)
	ErrInvalidState     = newError(protocol.ErrCodeInvalidState)
	ErrNotYourTurn      = newError(protocol.ErrCodeNotYourTurn)
	ErrInvalidAction    = newError(protocol.ErrCodeInvalidAction)
	ErrNotEnoughPlayers = newError(protocol.ErrCodeNotEnough)
)

func newError(code int) *GameError {
	return &GameError{Code: code, Message: protocol.ErrorMessages[code]}
}

// InvalidAction 创建携带校验原因的 InvalidAction 错误
func InvalidAction(reason string) *GameError {
	if reason == "" {
		reason = protocol.ErrorMessages[protocol.ErrCodeInvalidAction]
	}
	return &GameError{Code: protocol.ErrCodeInvalidAction, Message: reason}
}

// InvalidConfig 创建携带具体原因的配置错误
func InvalidConfig(reason string) *GameError {
	return &GameError{Code: protocol.ErrCodeInvalidConfig, Message: "invalid session config: " + reason}
}

// CodeOf 提取错误码，非 GameError 返回 ErrCodeUnknown
func CodeOf(err error) int {
	var ge *GameError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return protocol.ErrCodeUnknown
}
