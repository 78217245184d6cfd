package gametype

import (
	"github.com/palemoky/turnstile/internal/config"
	"github.com/palemoky/turnstile/internal/game/scripted"
)

// LoadScripts 编译配置中的 Lua 游戏类型并注册
func (r *Registry) LoadScripts(types []config.GameTypeConfig) error {
	for _, gt := range types {
		script, err := scripted.LoadFile(gt.Name, gt.Script, gt.InstructionLimit)
		if err != nil {
			return err
		}
		if err := r.Register(gt.Name, script.NewGame); err != nil {
			return err
		}
	}
	return nil
}
