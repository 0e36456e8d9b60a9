// Package lifecycle enforces the single-call disposal contract shared by the
// registry, pump and strategies.
//
// Disposal is a programming contract, not a recoverable condition: calling
// Dispose twice or using a component after disposal panics. Components that
// are garbage collected without being disposed are reported at error level,
// since Go offers no deterministic point to assert on.
package lifecycle

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
)

// Guard tracks whether its owner has been disposed.
// The zero value is not usable; create guards with NewGuard.
type Guard struct {
	name     string
	disposed atomic.Bool
}

// NewGuard creates a guard for the named component.
func NewGuard(name string) *Guard {
	return &Guard{name: name}
}

// Dispose marks the owner as disposed.
// Panics if the owner was already disposed.
func (g *Guard) Dispose() {
	if !g.disposed.CompareAndSwap(false, true) {
		panic(fmt.Sprintf("%s: Dispose called twice", g.name))
	}
}

// Check panics if the owner has been disposed.
// Call it at the top of every operation that is illegal after disposal.
func (g *Guard) Check() {
	if g.disposed.Load() {
		panic(fmt.Sprintf("%s: used after Dispose", g.name))
	}
}

// Disposed reports whether Dispose has been called.
func (g *Guard) Disposed() bool {
	return g.disposed.Load()
}

// Track installs a finalizer on owner that reports a missing Dispose.
// owner must be a pointer to the component holding g.
func Track[T any](owner *T, g *Guard) {
	runtime.SetFinalizer(owner, func(*T) {
		if !g.disposed.Load() {
			slog.Error("component released without Dispose", "component", g.name)
		}
	})
}
