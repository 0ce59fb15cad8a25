package scripting

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// memoryMonitor watches process memory growth during a script's handler
// invocation and kills the VM if the allocation delta exceeds the
// configured limit. Carried over nearly verbatim from the teacher's
// internal/lua/memlimit.go: gopher-lua has no per-VM memory accounting, so
// this uses runtime.MemStats as a process-wide approximation, acceptable as
// a safety net rather than a precise per-script quota.
type memoryMonitor struct {
	limitBytes uint64
	baseline   uint64
	exceeded   atomic.Bool
}

// newMemoryMonitor returns nil (monitoring disabled) if maxMB <= 0.
func newMemoryMonitor(maxMB int) *memoryMonitor {
	if maxMB <= 0 {
		return nil
	}
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return &memoryMonitor{limitBytes: uint64(maxMB) * 1024 * 1024, baseline: stats.Alloc}
}

// watch polls memory every 100ms until ctx is cancelled, closing L if the
// limit is exceeded. Returns a no-op cancel func if m is nil.
func (m *memoryMonitor) watch(ctx context.Context, L *lua.LState, scriptID string) context.CancelFunc {
	if m == nil {
		return func() {}
	}
	monCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-monCtx.Done():
				return
			case <-ticker.C:
				var stats runtime.MemStats
				runtime.ReadMemStats(&stats)
				delta := uint64(0)
				if stats.Alloc > m.baseline {
					delta = stats.Alloc - m.baseline
				}
				if delta > m.limitBytes {
					m.exceeded.Store(true)
					L.Close()
					return
				}
			}
		}
	}()
	return cancel
}

func (m *memoryMonitor) wasExceeded() bool {
	if m == nil {
		return false
	}
	return m.exceeded.Load()
}
