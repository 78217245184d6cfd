//go:build ci

// Package sound 终端客户端的提示音
package sound

// Player CI 环境下不访问音频设备
type Player struct{}

func New(string) *Player { return &Player{} }

func (*Player) Init() error     { return nil }
func (*Player) Load() error     { return nil }
func (*Player) Has(string) bool { return false }
func (*Player) Play(string)     {}
func (*Player) Close()          {}
