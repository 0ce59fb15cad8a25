package scripting

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/petervdpas/substrata-client/internal/world"
)

// Engine is a sandboxed gopher-lua VM bound to one WorldObject, exposing a
// restricted stdlib plus a `sub.*` API table. Directly grounded on the
// teacher's internal/lua package: newSandboxedVM's library allowlist and
// goop.* table injection become NewEngine's allowlist and injectSubTable's
// `sub.*` table here; memoryMonitor is carried in spirit as memoryMonitor in
// memlimit.go.
type Engine struct {
	L       *lua.LState
	ob      *world.WorldObject
	scriptID string

	memMon *memoryMonitor
	dead   atomic.Bool

	maxExecTime time.Duration
}

// NewEngine compiles source for ob and returns a ready-to-call Engine.
// maxMemMB <= 0 disables the memory monitor; maxExecTime bounds a single
// handler invocation (spec §5 "Suspension points" excludes scripts from
// blocking indefinitely on the foreground thread).
func NewEngine(ob *world.WorldObject, scriptID, source string, maxMemMB int, maxExecTime time.Duration) (*Engine, error) {
	L := lua.NewState(lua.Options{
		SkipOpenLibs:        true,
		CallStackSize:       128,
		RegistrySize:        2048,
		RegistryMaxSize:     8192,
		RegistryGrowStep:    32,
		MinimizeStackMemory: true,
	})

	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, name := range []string{"dofile", "loadfile", "require"} {
		L.SetGlobal(name, lua.LNil)
	}

	e := &Engine{L: L, ob: ob, scriptID: scriptID, memMon: newMemoryMonitor(maxMemMB), maxExecTime: maxExecTime}
	e.injectSubTable()

	if err := L.DoString(source); err != nil {
		L.Close()
		return nil, fmt.Errorf("scripting: compile %s: %w", scriptID, err)
	}
	return e, nil
}

// injectSubTable builds the script-visible `sub.*` API: the read-only
// object_uid value and the get_pos accessor, mirroring the shape (not the
// content) of the teacher's goop.* table.
func (e *Engine) injectSubTable() {
	sub := e.L.NewTable()

	sub.RawSetString("object_uid", lua.LNumber(e.ob.UID))
	sub.RawSetString("get_pos", e.L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(e.ob.Pos.X))
		L.Push(lua.LNumber(e.ob.Pos.Y))
		L.Push(lua.LNumber(e.ob.Pos.Z))
		return 3
	}))

	e.L.SetGlobal("sub", sub)
}

// HasFunction reports whether the script defined a global function of the
// given name, used after compilation to decide which handler lists to
// register this engine on.
func (e *Engine) HasFunction(name string) bool {
	if e.dead.Load() {
		return false
	}
	_, ok := e.L.GetGlobal(name).(*lua.LFunction)
	return ok
}

// Alive implements Evaluator: false once the VM has been closed, either by
// explicit Close or by the memory monitor killing it.
func (e *Engine) Alive() bool {
	return !e.dead.Load()
}

// CallHandler invokes the named global function with args converted to Lua
// values, bounded by maxExecTime and the memory monitor (spec §4.L, §5).
// Per spec §7's propagation policy, a script error never escapes: it is
// returned to the caller, which is expected to convert it to a log message.
func (e *Engine) CallHandler(fnRef string, args ...any) error {
	if e.dead.Load() {
		return fmt.Errorf("scripting: engine for %s is dead", e.scriptID)
	}

	fn := e.L.GetGlobal(fnRef)
	if fn == lua.LNil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.maxExecTime)
	defer cancel()
	stopMon := e.memMon.watch(ctx, e.L, e.scriptID)
	defer stopMon()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("scripting: panic in %s.%s: %v", e.scriptID, fnRef, r)
			}
		}()
		e.L.Push(fn)
		for _, a := range args {
			e.L.Push(toLuaValue(a))
		}
		done <- e.L.PCall(len(args), 0, nil)
	}()

	select {
	case err := <-done:
		if e.memMon.wasExceeded() {
			e.dead.Store(true)
		}
		return err
	case <-ctx.Done():
		e.dead.Store(true)
		e.L.Close()
		return fmt.Errorf("scripting: %s.%s exceeded %s", e.scriptID, fnRef, e.maxExecTime)
	}
}

func toLuaValue(a any) lua.LValue {
	switch v := a.(type) {
	case string:
		return lua.LString(v)
	case float64:
		return lua.LNumber(v)
	case int:
		return lua.LNumber(v)
	case bool:
		return lua.LBool(v)
	case world.UID:
		return lua.LNumber(v)
	default:
		return lua.LNil
	}
}

// Close releases the underlying VM.
func (e *Engine) Close() {
	if e.dead.CompareAndSwap(false, true) {
		e.L.Close()
	}
}
