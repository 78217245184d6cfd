package gametype

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/turnstile/internal/apperrors"
	"github.com/palemoky/turnstile/internal/game/session"
)

func TestRegistry_FreePlay(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	gt, err := r.Resolve(session.Config{GameType: FreePlay})
	require.NoError(t, err)
	assert.Equal(t, FreePlay, gt.Name())
	assert.Equal(t, []string{FreePlay}, r.Names())
}

func TestRegistry_Unknown(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	_, err := r.Resolve(session.Config{GameType: "chess"})
	assert.ErrorIs(t, err, apperrors.ErrUnknownGameType)
}

func TestRegistry_Register(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	calls := 0
	require.NoError(t, r.Register("chess", func(cfg session.Config) (session.GameType, error) {
		calls++
		return session.Inert{TypeName: cfg.GameType}, nil
	}))

	// 每个会话一个实例
	_, err := r.Resolve(session.Config{GameType: "chess"})
	require.NoError(t, err)
	_, err = r.Resolve(session.Config{GameType: "chess"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	assert.Error(t, r.Register("chess", func(session.Config) (session.GameType, error) { return nil, nil }))
	assert.Error(t, r.Register("", func(session.Config) (session.GameType, error) { return nil, nil }))
	assert.Error(t, r.Register("go", nil))
	assert.Equal(t, []string{"chess", FreePlay}, r.Names())
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	require.NoError(t, r.Register("broken", func(session.Config) (session.GameType, error) {
		return nil, assert.AnError
	}))

	_, err := r.Resolve(session.Config{GameType: "broken"})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestRegistry_WithEngine(t *testing.T) {
	t.Parallel()

	engine := session.NewEngine(session.EngineDeps{
		GameTypes: NewRegistry(),
		Scheduler: session.NewManualScheduler(),
	})
	t.Cleanup(engine.Close)

	_, err := engine.CreateSession(session.Config{GameType: "chess", MinPlayers: 1, MaxPlayers: 2})
	assert.ErrorIs(t, err, apperrors.ErrUnknownGameType)

	snap, err := engine.CreateSession(session.Config{GameType: FreePlay, MinPlayers: 1, MaxPlayers: 2})
	require.NoError(t, err)
	assert.Equal(t, session.StatusWaiting, snap.Status)
}
