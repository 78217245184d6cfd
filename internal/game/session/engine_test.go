package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/turnstile/internal/apperrors"
)

func TestCreateSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	snap, err := h.engine.CreateSession(testConfig(2, 4))
	require.NoError(t, err)

	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, StatusWaiting, snap.Status)
	assert.Empty(t, snap.Players)
	assert.Empty(t, snap.CurrentTurn)
	assert.False(t, snap.CreatedAt.IsZero())

	// 整局计时器在创建时启动
	assert.Len(t, h.sched.PendingWith(testGame), 1)
	assert.Empty(t, h.sched.PendingWith(testTurn))
}

func TestCreateSession_AppliesDefaultLimits(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	snap, err := h.engine.CreateSession(Config{GameType: "test", MinPlayers: 1, MaxPlayers: 2})
	require.NoError(t, err)
	assert.Equal(t, defaultTurnTimeout, snap.Config.TurnTimeLimit)
	assert.Equal(t, defaultGameTimeout, snap.Config.GameTimeLimit)
}

func TestCreateSession_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero min players", Config{MinPlayers: 0, MaxPlayers: 2, TurnTimeLimit: time.Second, GameTimeLimit: time.Minute}},
		{"max below min", Config{MinPlayers: 3, MaxPlayers: 2, TurnTimeLimit: time.Second, GameTimeLimit: time.Minute}},
		{"negative turn limit", Config{MinPlayers: 1, MaxPlayers: 2, TurnTimeLimit: -time.Second, GameTimeLimit: time.Minute}},
		{"negative game limit", Config{MinPlayers: 1, MaxPlayers: 2, TurnTimeLimit: time.Second, GameTimeLimit: -time.Minute}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, nil)
			_, err := h.engine.CreateSession(tt.cfg)
			assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)
			assert.Empty(t, h.engine.ListSessions(""))
		})
	}
}

func TestCreateSession_UnknownGameType(t *testing.T) {
	t.Parallel()

	h := newHarness(t, ResolverFunc(func(Config) (GameType, error) { return nil, nil }))
	_, err := h.engine.CreateSession(testConfig(1, 2))
	assert.ErrorIs(t, err, apperrors.ErrUnknownGameType)

	resolveErr := errors.New("registry offline")
	h = newHarness(t, ResolverFunc(func(Config) (GameType, error) { return nil, resolveErr }))
	_, err = h.engine.CreateSession(testConfig(1, 2))
	assert.ErrorIs(t, err, resolveErr)
}

func TestCreateSession_CopiesRules(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	cfg := testConfig(1, 2)
	cfg.Rules = map[string]any{"deck": "standard"}
	snap, err := h.engine.CreateSession(cfg)
	require.NoError(t, err)

	cfg.Rules["deck"] = "changed"
	assert.Equal(t, "standard", h.state(t, snap.ID).Config.Rules["deck"])
}

func TestGetState_NotFound(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	_, err := h.engine.GetState("missing", "")
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestGetState_FiltersPrivateData(t *testing.T) {
	t.Parallel()
	h := newHarness(t, singleGame(&counterGame{}))
	id := h.started(t, testConfig(2, 3), 3)

	own, err := h.engine.GetState(id, "p2")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"p2": 2}, own.GameData.(*counterData).Hands)

	spectator := h.state(t, id)
	assert.Empty(t, spectator.GameData.(*counterData).Hands)
}

func TestGetState_ReturnsCopy(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	id := h.started(t, testConfig(2, 2), 2)

	snap := h.state(t, id)
	snap.TurnOrder[0] = "mallory"
	snap.Players[0].Name = "mallory"

	fresh := h.state(t, id)
	assert.Equal(t, "p1", fresh.TurnOrder[0])
	assert.Equal(t, "Player 1", fresh.Players[0].Name)
}

func TestListSessions(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	waiting := h.create(t, testConfig(2, 4), 1)
	active := h.started(t, testConfig(2, 4), 2)

	all := h.engine.ListSessions("")
	require.Len(t, all, 2)
	assert.Equal(t, waiting, all[0].ID)
	assert.Equal(t, active, all[1].ID)
	assert.Equal(t, 1, all[0].PlayerCount)
	assert.Equal(t, 4, all[0].MaxPlayers)

	onlyActive := h.engine.ListSessions(StatusActive)
	require.Len(t, onlyActive, 1)
	assert.Equal(t, active, onlyActive[0].ID)
	assert.Equal(t, 1, h.engine.ActiveCount())
}

func TestClose_StopsAllTimers(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	h.started(t, testConfig(2, 2), 2)
	ended := h.started(t, testConfig(1, 2), 1)
	require.NoError(t, h.engine.EndSession(ended, "", ""))
	require.NotEmpty(t, h.sched.Pending())

	h.engine.Close()
	assert.Empty(t, h.sched.Pending())
}

func TestPurge_RemovesSessionAfterRetention(t *testing.T) {
	t.Parallel()
	game := &counterGame{}
	h := newHarness(t, singleGame(game))
	id := h.started(t, testConfig(1, 2), 1)

	require.NoError(t, h.engine.EndSession(id, ReasonAborted, ""))

	// 结束后仍可查询
	snap := h.state(t, id)
	assert.Equal(t, StatusEnded, snap.Status)

	assert.Equal(t, 1, h.sched.Fire(time.Minute))
	_, err := h.engine.GetState(id, "")
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	assert.True(t, game.closed)
}

func TestPurge_StaleReferenceSeesNotFound(t *testing.T) {
	t.Parallel()
	h := newHarness(t, singleGame(&counterGame{}))
	id := h.started(t, testConfig(1, 2), 1)
	require.NoError(t, h.engine.EndSession(id, ReasonAborted, ""))

	h.engine.mu.RLock()
	s := h.engine.sessions[id]
	h.engine.mu.RUnlock()
	require.NotNil(t, s)

	require.Equal(t, 1, h.sched.Fire(time.Minute))

	// 模拟在清理之前已经拿到会话指针的调用方
	h.engine.mu.Lock()
	h.engine.sessions[id] = s
	h.engine.mu.Unlock()

	_, err := h.engine.GetState(id, "")
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	assert.ErrorIs(t, h.engine.AddPlayer(id, PlayerInfo{ID: "p9"}), apperrors.ErrSessionNotFound)
	assert.ErrorIs(t, h.engine.RemovePlayer(id, "p1"), apperrors.ErrSessionNotFound)
	assert.ErrorIs(t, h.engine.SetReady(id, "p1", true), apperrors.ErrSessionNotFound)
	assert.ErrorIs(t, h.engine.SetConnected(id, "p1", false), apperrors.ErrSessionNotFound)
	assert.ErrorIs(t, h.engine.StartSession(id), apperrors.ErrSessionNotFound)
	assert.ErrorIs(t, h.engine.EndSession(id, ReasonAborted, ""), apperrors.ErrSessionNotFound)
	assert.ErrorIs(t, h.engine.ProcessAction(id, "p1", Action{Type: "add"}), apperrors.ErrSessionNotFound)
	assert.Empty(t, h.engine.ListSessions(""))
}

// slowStore 模拟耗时的持久化
type slowStore struct {
	delay time.Duration
	saved atomic.Bool
}

func (s *slowStore) Save(ctx context.Context, _ Snapshot) error {
	select {
	case <-time.After(s.delay):
		s.saved.Store(true)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestClose_WaitsForPendingSaves(t *testing.T) {
	t.Parallel()
	store := &slowStore{delay: 100 * time.Millisecond}
	engine := NewEngine(EngineDeps{
		Store:       store,
		GameTypes:   singleGame(&counterGame{}),
		Scheduler:   NewManualScheduler(),
		SaveTimeout: 5 * time.Second,
	})

	snap, err := engine.CreateSession(testConfig(1, 2))
	require.NoError(t, err)
	require.NoError(t, engine.AddPlayer(snap.ID, PlayerInfo{ID: "p1"}))
	require.NoError(t, engine.StartSession(snap.ID))
	require.NoError(t, engine.EndSession(snap.ID, ReasonAborted, ""))

	engine.Close()
	assert.True(t, store.saved.Load())
}

func TestClose_SaveWaitIsBounded(t *testing.T) {
	t.Parallel()
	store := &slowStore{delay: time.Hour}
	release := make(chan struct{})
	engine := NewEngine(EngineDeps{
		Store:     store,
		GameTypes: singleGame(&counterGame{}),
		Scheduler: NewManualScheduler(),
		// 保存任务在测试结束前一直阻塞
		Go: func(f func()) {
			go func() {
				<-release
				f()
			}()
		},
		SaveTimeout: 50 * time.Millisecond,
	})
	t.Cleanup(func() { close(release) })

	snap, err := engine.CreateSession(testConfig(1, 2))
	require.NoError(t, err)
	require.NoError(t, engine.AddPlayer(snap.ID, PlayerInfo{ID: "p1"}))
	require.NoError(t, engine.StartSession(snap.ID))
	require.NoError(t, engine.EndSession(snap.ID, ReasonAborted, ""))

	start := time.Now()
	engine.Close()
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, store.saved.Load())
}
