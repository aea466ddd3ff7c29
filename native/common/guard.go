package common

import (
	"errors"
	"sync/atomic"
)

// ErrReentrantCall is returned when a guarded entry point is invoked while a
// previous invocation is still in flight, including re-entry through an
// external gateway callback.
var ErrReentrantCall = errors.New("reentrant call")

// CallGuard is a two-state mutual-exclusion lock wrapping every state-mutating
// campaign entry point. Unlike a sync.Mutex it never blocks: entering a held
// guard fails immediately so the offending call aborts before touching state.
type CallGuard struct {
	held atomic.Bool
}

// Enter acquires the guard. The caller must release it on every exit path,
// normally via defer Exit.
func (g *CallGuard) Enter() error {
	if g == nil {
		return nil
	}
	if !g.held.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

// Exit releases the guard. Calling Exit on a free guard is a no-op.
func (g *CallGuard) Exit() {
	if g == nil {
		return
	}
	g.held.Store(false)
}

// Held reports whether the guard is currently acquired.
func (g *CallGuard) Held() bool {
	if g == nil {
		return false
	}
	return g.held.Load()
}
