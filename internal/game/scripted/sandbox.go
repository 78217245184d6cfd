// Package scripted implements game types whose rules are written in Lua.
// Each session gets its own sandboxed GopherLua state.
package scripted

import (
	"context"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
)

// DefaultInstructionLimit is the opcode budget of a single hook call when
// the game type does not configure one.
const DefaultInstructionLimit = 1_000_000

// countingContext cancels itself after Done() has been called limit times.
// GopherLua calls Done() once per opcode, so this is an exact instruction budget.
type countingContext struct {
	context.Context
	cancel    context.CancelFunc
	remaining *atomic.Int64
}

func (c *countingContext) Done() <-chan struct{} {
	if c.remaining.Add(-1) <= 0 {
		c.cancel()
	}
	return c.Context.Done()
}

func newCountingContext(limit int) (context.Context, context.CancelFunc) {
	base, cancel := context.WithCancel(context.Background())
	rem := &atomic.Int64{}
	rem.Store(int64(limit))
	return &countingContext{
		Context:   base,
		cancel:    cancel,
		remaining: rem,
	}, cancel
}

// newSandboxedState creates a state with only base, table, string and math
// loaded and the file/loader globals removed.
func newSandboxedState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "collectgarbage", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

// withBudget runs f with a fresh instruction budget installed on L.
func withBudget(L *lua.LState, limit int, f func() error) error {
	if limit <= 0 {
		limit = DefaultInstructionLimit
	}
	ctx, cancel := newCountingContext(limit)
	defer cancel()

	L.SetContext(ctx)
	defer L.RemoveContext()
	return f()
}
