package session

import (
	"fmt"
	"io"

	"github.com/palemoky/turnstile/internal/apperrors"
)

// GameType 游戏类型策略
//
// 除 Name 之外的能力都是可选接口，未实现的能力使用引擎的默认行为：
// 空游戏数据、所有操作合法、执行不改变数据、超时无默认操作、数据不过滤。
type GameType interface {
	Name() string
}

// DataInitializer 开局时生成初始游戏数据
type DataInitializer interface {
	InitializeGameData(view *Snapshot) (any, error)
}

// ActionValidator 校验操作，不得修改状态
type ActionValidator interface {
	ValidateAction(view *Snapshot, playerID string, action Action) Validation
}

// ActionExecutor 执行操作，是游戏规则修改数据的唯一入口
type ActionExecutor interface {
	ExecuteAction(view *Snapshot, playerID string, action Action) (ExecuteResult, error)
}

// DefaultActionProvider 回合超时时提供默认操作，返回 nil 表示跳过
type DefaultActionProvider interface {
	DefaultAction(view *Snapshot, playerID string) (*Action, error)
}

// PrivateDataFilter 生成某个玩家可见的游戏数据
type PrivateDataFilter interface {
	FilterPrivateData(gameData any, playerID string) any
}

// Resolver 按配置为每个会话创建游戏类型实例
type Resolver interface {
	Resolve(cfg Config) (GameType, error)
}

// ResolverFunc 函数形式的 Resolver
type ResolverFunc func(cfg Config) (GameType, error)

func (f ResolverFunc) Resolve(cfg Config) (GameType, error) { return f(cfg) }

// Inert 不带任何规则的游戏类型
type Inert struct {
	TypeName string
}

func (g Inert) Name() string { return g.TypeName }

// inertResolver 任何游戏类型都解析为 Inert
type inertResolver struct{}

func (inertResolver) Resolve(cfg Config) (GameType, error) {
	return Inert{TypeName: cfg.GameType}, nil
}

// hooks 包装游戏类型，补齐默认行为并把钩子中的 panic 转为错误
type hooks struct {
	gt GameType
}

func (h hooks) initialize(view *Snapshot) (data any, err error) {
	init, ok := h.gt.(DataInitializer)
	if !ok {
		return nil, nil
	}
	defer recoverHook("initialize_game_data", &err)
	return init.InitializeGameData(view)
}

func (h hooks) validate(view *Snapshot, playerID string, action Action) (v Validation) {
	validator, ok := h.gt.(ActionValidator)
	if !ok {
		return Valid()
	}
	defer func() {
		if r := recover(); r != nil {
			v = Invalid(fmt.Sprintf("validate_action panicked: %v", r))
		}
	}()
	return validator.ValidateAction(view, playerID, action)
}

func (h hooks) execute(view *Snapshot, playerID string, action Action) (res ExecuteResult, err error) {
	exec, ok := h.gt.(ActionExecutor)
	if !ok {
		return ExecuteResult{GameData: view.GameData}, nil
	}
	defer recoverHook("execute_action", &err)
	return exec.ExecuteAction(view, playerID, action)
}

func (h hooks) defaultAction(view *Snapshot, playerID string) (action *Action, err error) {
	provider, ok := h.gt.(DefaultActionProvider)
	if !ok {
		return nil, nil
	}
	defer recoverHook("default_action", &err)
	return provider.DefaultAction(view, playerID)
}

func (h hooks) filter(gameData any, playerID string) (filtered any, err error) {
	f, ok := h.gt.(PrivateDataFilter)
	if !ok {
		return gameData, nil
	}
	defer recoverHook("filter_private_data", &err)
	return f.FilterPrivateData(gameData, playerID), nil
}

func (h hooks) close() error {
	if c, ok := h.gt.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func recoverHook(name string, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%s panicked: %v", name, r)
	}
}

// resolveGameType 解析游戏类型，未知类型统一返回 ErrUnknownGameType
func resolveGameType(r Resolver, cfg Config) (GameType, error) {
	gt, err := r.Resolve(cfg)
	if err != nil {
		return nil, err
	}
	if gt == nil {
		return nil, apperrors.ErrUnknownGameType
	}
	return gt, nil
}
