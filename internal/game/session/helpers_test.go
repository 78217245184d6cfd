package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	testTurn = 10 * time.Second
	testGame = time.Hour
)

// testClock 每次调用前进一毫秒
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

type harness struct {
	engine *Engine
	sched  *ManualScheduler
	events *EventRecorder
	store  *MemoryStore
}

// newHarness 创建测试引擎：手动计时器、同步持久化、行动顺序等于加入顺序
func newHarness(t *testing.T, games Resolver) *harness {
	t.Helper()
	h := &harness{
		sched:  NewManualScheduler(),
		events: &EventRecorder{},
		store:  &MemoryStore{},
	}
	h.engine = NewEngine(EngineDeps{
		Events:    h.events,
		Store:     h.store,
		GameTypes: games,
		Scheduler: h.sched,
		Now:       newTestClock().Now,
		Shuffle:   func(int, func(i, j int)) {},
		Go:        func(f func()) { f() },
		Retention: time.Minute,
	})
	t.Cleanup(h.engine.Close)
	return h
}

func testConfig(minPlayers, maxPlayers int) Config {
	return Config{
		GameType:      "test",
		MinPlayers:    minPlayers,
		MaxPlayers:    maxPlayers,
		TurnTimeLimit: testTurn,
		GameTimeLimit: testGame,
	}
}

// create 创建会话并加入玩家 p1..pn
func (h *harness) create(t *testing.T, cfg Config, players int) string {
	t.Helper()
	snap, err := h.engine.CreateSession(cfg)
	require.NoError(t, err)
	for i := 1; i <= players; i++ {
		require.NoError(t, h.engine.AddPlayer(snap.ID, PlayerInfo{ID: playerID(i), Name: fmt.Sprintf("Player %d", i)}))
	}
	return snap.ID
}

// started 创建并开始会话
func (h *harness) started(t *testing.T, cfg Config, players int) string {
	t.Helper()
	id := h.create(t, cfg, players)
	require.NoError(t, h.engine.StartSession(id))
	return id
}

func (h *harness) state(t *testing.T, id string) *Snapshot {
	t.Helper()
	snap, err := h.engine.GetState(id, "")
	require.NoError(t, err)
	return snap
}

func playerID(i int) string { return fmt.Sprintf("p%d", i) }

// counterGame 每次 "add" 累加计数，达到 target 时结束；"bad" 操作被拒绝
type counterGame struct {
	target      int
	withDefault bool
	closed      bool
}

type counterData struct {
	Count int
	Last  string
	Hands map[string]int
}

func (g *counterGame) Name() string { return "counter" }

func (g *counterGame) InitializeGameData(view *Snapshot) (any, error) {
	hands := make(map[string]int, len(view.TurnOrder))
	for i, id := range view.TurnOrder {
		hands[id] = i + 1
	}
	return &counterData{Hands: hands}, nil
}

func (g *counterGame) ValidateAction(_ *Snapshot, _ string, action Action) Validation {
	switch action.Type {
	case "add", "pass", "fail":
		return Valid()
	case "boom":
		panic("validator exploded")
	}
	return Invalid("unsupported action " + action.Type)
}

func (g *counterGame) ExecuteAction(view *Snapshot, playerID string, action Action) (ExecuteResult, error) {
	if action.Type == "fail" {
		return ExecuteResult{}, errors.New("execute failed")
	}
	prev := view.GameData.(*counterData)
	next := &counterData{Count: prev.Count, Last: playerID, Hands: prev.Hands}
	if action.Type == "add" {
		next.Count++
	}
	if g.target > 0 && next.Count >= g.target {
		return ExecuteResult{GameData: next, GameEnded: true, Winner: playerID}, nil
	}
	return ExecuteResult{GameData: next}, nil
}

func (g *counterGame) DefaultAction(_ *Snapshot, _ string) (*Action, error) {
	if !g.withDefault {
		return nil, nil
	}
	return &Action{Type: "pass"}, nil
}

func (g *counterGame) FilterPrivateData(gameData any, playerID string) any {
	d := gameData.(*counterData)
	out := &counterData{Count: d.Count, Last: d.Last, Hands: map[string]int{}}
	if v, ok := d.Hands[playerID]; ok {
		out.Hands[playerID] = v
	}
	return out
}

func (g *counterGame) Close() error {
	g.closed = true
	return nil
}

// singleGame 所有会话共享同一个游戏类型实例
func singleGame(gt GameType) Resolver {
	return ResolverFunc(func(Config) (GameType, error) { return gt, nil })
}
