package scripted

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/turnstile/internal/apperrors"
	"github.com/palemoky/turnstile/internal/game/session"
)

// raceScript 先累计到 rules.target 分的玩家获胜
const raceScript = `
function initialize_game_data(state)
  local scores = {}
  for _, id in ipairs(state.turn_order) do
    scores[id] = 0
  end
  return { scores = scores, target = rules.target or 3, moves = {} }
end

function validate_action(state, player_id, action)
  if action.type ~= "add" and action.type ~= "skip" then
    return false, "unknown action " .. tostring(action.type)
  end
  if action.type == "add" and (action.data == nil or action.data.amount == nil) then
    return false, "amount required"
  end
  return true
end

function execute_action(state, player_id, action)
  local data = state.game_data
  if action.type == "add" then
    data.scores[player_id] = data.scores[player_id] + action.data.amount
  end
  table.insert(data.moves, player_id)
  if data.scores[player_id] >= data.target then
    return { game_data = data, game_ended = true, winner = player_id }
  end
  return { game_data = data }
end

function default_action(state, player_id)
  return { type = "add", data = { amount = 1 } }
end

function filter_private_data(data, player_id)
  return { scores = data.scores, target = data.target }
end
`

func newGame(t *testing.T, src string, limit int, rules map[string]any) *Game {
	t.Helper()
	script, err := Compile("race", src, limit)
	require.NoError(t, err)
	gt, err := script.NewGame(session.Config{GameType: "race", Rules: rules})
	require.NoError(t, err)
	g := gt.(*Game)
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func TestCompile_SyntaxError(t *testing.T) {
	t.Parallel()

	_, err := Compile("broken", "function (", 0)
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "race.lua")
	require.NoError(t, os.WriteFile(path, []byte(raceScript), 0o600))

	script, err := LoadFile("race", path, 0)
	require.NoError(t, err)
	assert.Equal(t, "race", script.Name())

	_, err = LoadFile("missing", filepath.Join(t.TempDir(), "missing.lua"), 0)
	assert.Error(t, err)
}

func TestNewGame_Sandboxed(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"os", "io", "debug", "dofile", "loadfile", "load", "require"} {
		script, err := Compile("probe", `assert(`+name+` == nil, "`+name+` is available")`, 0)
		require.NoError(t, err)
		g, err := script.NewGame(session.Config{})
		require.NoError(t, err, name)
		require.NoError(t, g.(*Game).Close())
	}

	script, err := Compile("escape", `os.exit(1)`, 0)
	require.NoError(t, err)
	_, err = script.NewGame(session.Config{})
	assert.Error(t, err)
}

func TestNewGame_InstructionLimitOnLoad(t *testing.T) {
	t.Parallel()

	script, err := Compile("spin", `while true do end`, 1000)
	require.NoError(t, err)
	_, err = script.NewGame(session.Config{})
	assert.Error(t, err)
}

func TestGame_InstructionLimitPerCall(t *testing.T) {
	t.Parallel()

	g := newGame(t, `
function validate_action(state, player_id, action)
  if action.type == "spin" then
    while true do end
  end
  return true
end
`, 10_000, nil)

	v := g.ValidateAction(&session.Snapshot{}, "p1", session.Action{Type: "spin"})
	assert.False(t, v.Valid)
	assert.Contains(t, v.Reason, "script error")

	// 每次调用重新计算指令预算
	v = g.ValidateAction(&session.Snapshot{}, "p1", session.Action{Type: "ok"})
	assert.True(t, v.Valid)
}

func TestGame_MissingHooksAreInert(t *testing.T) {
	t.Parallel()
	g := newGame(t, `-- no hooks`, 0, nil)

	assert.Empty(t, g.definedHooks())

	data, err := g.InitializeGameData(&session.Snapshot{})
	require.NoError(t, err)
	assert.Nil(t, data)

	assert.True(t, g.ValidateAction(&session.Snapshot{}, "p1", session.Action{Type: "x"}).Valid)

	view := &session.Snapshot{GameData: map[string]any{"k": "v"}}
	res, err := g.ExecuteAction(view, "p1", session.Action{Type: "x"})
	require.NoError(t, err)
	assert.Equal(t, view.GameData, res.GameData)
	assert.False(t, res.GameEnded)

	action, err := g.DefaultAction(view, "p1")
	require.NoError(t, err)
	assert.Nil(t, action)

	assert.Equal(t, view.GameData, g.FilterPrivateData(view.GameData, "p1"))
}

func TestGame_Hooks(t *testing.T) {
	t.Parallel()
	g := newGame(t, raceScript, 0, map[string]any{"target": 2})

	assert.Len(t, g.definedHooks(), 5)

	view := &session.Snapshot{TurnOrder: []string{"p1", "p2"}, CurrentTurn: "p1"}
	data, err := g.InitializeGameData(view)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"scores": map[string]any{"p1": 0.0, "p2": 0.0},
		"target": 2.0,
		"moves":  map[string]any{},
	}, data)

	v := g.ValidateAction(view, "p1", session.Action{Type: "jump"})
	assert.False(t, v.Valid)
	assert.Equal(t, "unknown action jump", v.Reason)

	v = g.ValidateAction(view, "p1", session.Action{Type: "add"})
	assert.Equal(t, "amount required", v.Reason)

	view.GameData = data
	res, err := g.ExecuteAction(view, "p1", session.Action{Type: "add", Data: map[string]any{"amount": 2}})
	require.NoError(t, err)
	assert.True(t, res.GameEnded)
	assert.Equal(t, "p1", res.Winner)
	assert.Equal(t, []any{"p1"}, res.GameData.(map[string]any)["moves"])

	action, err := g.DefaultAction(view, "p2")
	require.NoError(t, err)
	assert.Equal(t, &session.Action{Type: "add", Data: map[string]any{"amount": 1.0}}, action)

	filtered := g.FilterPrivateData(res.GameData, "p2").(map[string]any)
	assert.NotContains(t, filtered, "moves")
}

func TestGame_ExecuteMustReturnTable(t *testing.T) {
	t.Parallel()
	g := newGame(t, `function execute_action() return 42 end`, 0, nil)

	_, err := g.ExecuteAction(&session.Snapshot{}, "p1", session.Action{Type: "x"})
	assert.ErrorContains(t, err, "must return a table")
}

func TestGame_ExecuteRejectsNonFiniteData(t *testing.T) {
	t.Parallel()
	g := newGame(t, `function execute_action() return { game_data = { score = 0/0 } } end`, 0, nil)

	_, err := g.ExecuteAction(&session.Snapshot{}, "p1", session.Action{Type: "x"})
	assert.ErrorIs(t, err, errNonFinite)
}

func TestGame_RuntimeErrors(t *testing.T) {
	t.Parallel()
	g := newGame(t, `
function initialize_game_data() error("no deck") end
function default_action() return { data = {} } end
function filter_private_data() error("filter broke") end
`, 0, nil)

	_, err := g.InitializeGameData(&session.Snapshot{})
	assert.ErrorContains(t, err, "no deck")

	_, err = g.DefaultAction(&session.Snapshot{}, "p1")
	assert.ErrorContains(t, err, "no type")

	assert.Panics(t, func() { g.FilterPrivateData(map[string]any{}, "p1") })
}

func TestGame_WithEngine(t *testing.T) {
	t.Parallel()

	script, err := Compile("race", raceScript, 0)
	require.NoError(t, err)

	sched := session.NewManualScheduler()
	events := &session.EventRecorder{}
	engine := session.NewEngine(session.EngineDeps{
		Events:    events,
		GameTypes: session.ResolverFunc(script.NewGame),
		Scheduler: sched,
		Shuffle:   func(int, func(i, j int)) {},
		Go:        func(f func()) { f() },
	})
	t.Cleanup(engine.Close)

	snap, err := engine.CreateSession(session.Config{
		GameType:      "race",
		MinPlayers:    2,
		MaxPlayers:    2,
		TurnTimeLimit: time.Second,
		GameTimeLimit: time.Hour,
		Rules:         map[string]any{"target": 2},
	})
	require.NoError(t, err)
	require.NoError(t, engine.AddPlayer(snap.ID, session.PlayerInfo{ID: "p1"}))
	require.NoError(t, engine.AddPlayer(snap.ID, session.PlayerInfo{ID: "p2"}))
	require.NoError(t, engine.StartSession(snap.ID))

	err = engine.ProcessAction(snap.ID, "p1", session.Action{Type: "jump"})
	require.ErrorIs(t, err, apperrors.ErrInvalidAction)
	assert.Equal(t, "unknown action jump", err.Error())

	require.NoError(t, engine.ProcessAction(snap.ID, "p1", session.Action{Type: "add", Data: map[string]any{"amount": 1}}))

	// p2 超时，脚本提供默认操作
	require.Equal(t, 1, sched.Fire(time.Second))
	state, err := engine.GetState(snap.ID, "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", state.CurrentTurn)
	assert.Equal(t, map[string]any{"p1": 1.0, "p2": 1.0}, state.GameData.(map[string]any)["scores"])
	assert.NotContains(t, state.GameData.(map[string]any), "moves")

	require.NoError(t, engine.ProcessAction(snap.ID, "p1", session.Action{Type: "add", Data: map[string]any{"amount": 1}}))
	state, err = engine.GetState(snap.ID, "")
	require.NoError(t, err)
	assert.Equal(t, session.StatusEnded, state.Status)
	assert.Equal(t, "p1", state.Winner)
	assert.Equal(t, session.ReasonCompleted, state.EndReason)

	forced := 0
	for _, ev := range events.OfType(session.EventActionApplied) {
		if ev.Forced {
			forced++
		}
	}
	assert.Equal(t, 1, forced)
}
