// Package gametype 游戏类型注册表，按配置中的 game_type 标签创建策略实例
package gametype

import (
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/palemoky/turnstile/internal/apperrors"
	"github.com/palemoky/turnstile/internal/game/session"
)

// FreePlay 内置的无规则游戏类型
const FreePlay = "freeplay"

// Factory 为一个会话创建游戏类型实例
type Factory func(cfg session.Config) (session.GameType, error)

// Registry 游戏类型注册表，实现 session.Resolver
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry 创建注册表，已包含 freeplay
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.factories[FreePlay] = func(session.Config) (session.GameType, error) {
		return session.Inert{TypeName: FreePlay}, nil
	}
	return r
}

// Register 注册游戏类型，名称不可重复
func (r *Registry) Register(name string, f Factory) error {
	if name == "" || f == nil {
		return fmt.Errorf("invalid game type registration %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("game type %q already registered", name)
	}
	r.factories[name] = f
	log.Info().Str("game_type", name).Msg("🧩 游戏类型已注册")
	return nil
}

// Resolve 实现 session.Resolver，未注册的类型返回 ErrUnknownGameType
func (r *Registry) Resolve(cfg session.Config) (session.GameType, error) {
	r.mu.RLock()
	f, ok := r.factories[cfg.GameType]
	r.mu.RUnlock()

	if !ok {
		return nil, apperrors.ErrUnknownGameType
	}
	gt, err := f(cfg)
	if err != nil {
		return nil, fmt.Errorf("create game type %q: %w", cfg.GameType, err)
	}
	return gt, nil
}

// Names 已注册的游戏类型，按名称排序
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
