package scripted

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/palemoky/turnstile/internal/game/session"
)

// Hook names a script may define as globals.
const (
	HookInitialize = "initialize_game_data"
	HookValidate   = "validate_action"
	HookExecute    = "execute_action"
	HookDefault    = "default_action"
	HookFilter     = "filter_private_data"
)

// Script is a compiled rule set. It is immutable and shared by every
// session of its game type.
type Script struct {
	name  string
	proto *lua.FunctionProto
	limit int
}

// Compile parses and compiles src.
func Compile(name, src string, instructionLimit int) (*Script, error) {
	chunk, err := parse.Parse(strings.NewReader(src), name)
	if err != nil {
		return nil, fmt.Errorf("parse script %s: %w", name, err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, fmt.Errorf("compile script %s: %w", name, err)
	}
	return &Script{name: name, proto: proto, limit: instructionLimit}, nil
}

// LoadFile compiles the script at path.
func LoadFile(name, path string, instructionLimit int) (*Script, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script %s: %w", path, err)
	}
	return Compile(name, string(src), instructionLimit)
}

// Name is the game type tag.
func (s *Script) Name() string { return s.name }

// NewGame starts a fresh VM for one session. cfg.Rules is exposed to the
// script as the global table "rules".
func (s *Script) NewGame(cfg session.Config) (session.GameType, error) {
	L := newSandboxedState()

	rules, err := toLua(L, map[string]any(cfg.Rules))
	if err != nil {
		L.Close()
		return nil, fmt.Errorf("convert rules: %w", err)
	}
	L.SetGlobal("rules", rules)

	err = withBudget(L, s.limit, func() error {
		L.Push(L.NewFunctionFromProto(s.proto))
		return L.PCall(0, lua.MultRet, nil)
	})
	if err != nil {
		L.Close()
		return nil, fmt.Errorf("run script %s: %w", s.name, err)
	}

	g := &Game{script: s, L: L}
	log.Debug().Str("game_type", s.name).Strs("hooks", g.definedHooks()).Msg("📜 脚本实例已创建")
	return g, nil
}
