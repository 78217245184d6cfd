package scripted

import (
	"errors"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/palemoky/turnstile/internal/game/session"
)

// Game is one session's instance of a script. Hooks the script does not
// define fall back to the engine's inert behavior.
//
// A Game is not safe for concurrent use; the engine calls it under the
// session lock.
type Game struct {
	script *Script
	L      *lua.LState
}

func (g *Game) Name() string { return g.script.name }

func (g *Game) definedHooks() []string {
	var hooks []string
	for _, name := range []string{HookInitialize, HookValidate, HookExecute, HookDefault, HookFilter} {
		if g.hook(name) != nil {
			hooks = append(hooks, name)
		}
	}
	return hooks
}

func (g *Game) hook(name string) *lua.LFunction {
	fn, ok := g.L.GetGlobal(name).(*lua.LFunction)
	if !ok {
		return nil
	}
	return fn
}

// call invokes the named hook with Go arguments and returns nret Lua results.
func (g *Game) call(name string, fn *lua.LFunction, nret int, args ...any) ([]lua.LValue, error) {
	largs := make([]lua.LValue, len(args))
	for i, a := range args {
		lv, err := toLua(g.L, a)
		if err != nil {
			return nil, err
		}
		largs[i] = lv
	}

	var rets []lua.LValue
	err := withBudget(g.L, g.script.limit, func() error {
		if err := g.L.CallByParam(lua.P{Fn: fn, NRet: nret, Protect: true}, largs...); err != nil {
			return err
		}
		rets = make([]lua.LValue, nret)
		for i := range nret {
			rets[i] = g.L.Get(-nret + i)
		}
		g.L.Pop(nret)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return rets, nil
}

func (g *Game) InitializeGameData(view *session.Snapshot) (any, error) {
	fn := g.hook(HookInitialize)
	if fn == nil {
		return nil, nil
	}
	rets, err := g.call(HookInitialize, fn, 1, view)
	if err != nil {
		return nil, err
	}
	return fromLua(rets[0])
}

// ValidateAction expects validate_action to return (ok, reason).
func (g *Game) ValidateAction(view *session.Snapshot, playerID string, action session.Action) session.Validation {
	fn := g.hook(HookValidate)
	if fn == nil {
		return session.Valid()
	}
	rets, err := g.call(HookValidate, fn, 2, view, playerID, action)
	if err != nil {
		return session.Invalid("script error: " + err.Error())
	}
	if lua.LVAsBool(rets[0]) {
		return session.Valid()
	}
	return session.Invalid(lua.LVAsString(rets[1]))
}

// ExecuteAction expects execute_action to return a table
// {game_data=..., game_ended=bool, end_reason=string, winner=string}.
func (g *Game) ExecuteAction(view *session.Snapshot, playerID string, action session.Action) (session.ExecuteResult, error) {
	fn := g.hook(HookExecute)
	if fn == nil {
		return session.ExecuteResult{GameData: view.GameData}, nil
	}
	rets, err := g.call(HookExecute, fn, 1, view, playerID, action)
	if err != nil {
		return session.ExecuteResult{}, err
	}
	tbl, ok := rets[0].(*lua.LTable)
	if !ok {
		return session.ExecuteResult{}, fmt.Errorf("%s must return a table, got %s", HookExecute, rets[0].Type())
	}

	data, err := fromLua(tbl.RawGetString("game_data"))
	if err != nil {
		return session.ExecuteResult{}, err
	}
	return session.ExecuteResult{
		GameData:  data,
		GameEnded: lua.LVAsBool(tbl.RawGetString("game_ended")),
		EndReason: lua.LVAsString(tbl.RawGetString("end_reason")),
		Winner:    lua.LVAsString(tbl.RawGetString("winner")),
	}, nil
}

// DefaultAction expects default_action to return nil or {type=..., data=...}.
func (g *Game) DefaultAction(view *session.Snapshot, playerID string) (*session.Action, error) {
	fn := g.hook(HookDefault)
	if fn == nil {
		return nil, nil
	}
	rets, err := g.call(HookDefault, fn, 1, view, playerID)
	if err != nil {
		return nil, err
	}
	if rets[0] == lua.LNil {
		return nil, nil
	}
	tbl, ok := rets[0].(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("%s must return a table or nil, got %s", HookDefault, rets[0].Type())
	}

	action := &session.Action{Type: lua.LVAsString(tbl.RawGetString("type"))}
	if action.Type == "" {
		return nil, errors.New("default action has no type")
	}
	data, err := fromLua(tbl.RawGetString("data"))
	if err != nil {
		return nil, err
	}
	switch d := data.(type) {
	case nil:
	case map[string]any:
		action.Data = d
	default:
		return nil, fmt.Errorf("default action data must be a table with string keys, got %T", data)
	}
	return action, nil
}

// FilterPrivateData panics on script errors; the engine recovers hook
// panics and reports them to the caller.
func (g *Game) FilterPrivateData(gameData any, playerID string) any {
	fn := g.hook(HookFilter)
	if fn == nil {
		return gameData
	}
	rets, err := g.call(HookFilter, fn, 1, gameData, playerID)
	if err != nil {
		panic(err)
	}
	filtered, err := fromLua(rets[0])
	if err != nil {
		panic(err)
	}
	return filtered
}

// Close releases the VM.
func (g *Game) Close() error {
	g.L.Close()
	return nil
}
