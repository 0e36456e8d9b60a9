// Package registry aggregates request generators into a single pull API.
//
// A Registry captures an ordered list of sources once, at construction. The
// order is the priority order: NextRequest always asks the first source
// before the second. Sources that hold resources are registered with Own and
// are disposed together with the registry; the rest are registered with Use.
package registry

import (
	"github.com/roach88/pushsync/internal/ir"
	"github.com/roach88/pushsync/internal/lifecycle"
)

// Generator yields at most one request per call, or nil when it has nothing
// to send right now.
type Generator interface {
	NextRequest() *ir.Request
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func() *ir.Request

// NextRequest calls f.
func (f GeneratorFunc) NextRequest() *ir.Request {
	return f()
}

// Source owns a generator.
type Source interface {
	Generator() Generator
}

// DisposableSource is a Source that must be disposed with its registry.
type DisposableSource interface {
	Source
	Dispose()
}

// Entry is one registered source.
type Entry struct {
	gen     Generator
	dispose func()
}

// Own registers a source whose Dispose is called by Registry.Dispose.
func Own(src DisposableSource) Entry {
	return Entry{gen: src.Generator(), dispose: src.Dispose}
}

// Use registers a source the registry does not dispose.
func Use(src Source) Entry {
	return Entry{gen: src.Generator()}
}

// UseGenerator registers a bare generator.
func UseGenerator(g Generator) Entry {
	return Entry{gen: g}
}

// Registry polls its generators in construction order.
type Registry struct {
	entries []Entry
	guard   *lifecycle.Guard
}

// New creates a registry over entries. The order of entries is fixed for the
// lifetime of the registry.
func New(entries ...Entry) *Registry {
	r := &Registry{
		entries: append([]Entry(nil), entries...),
		guard:   lifecycle.NewGuard("registry"),
	}
	lifecycle.Track(r, r.guard)
	return r
}

// NextRequest returns the first request yielded by a generator, polling in
// priority order. Generators after the first one that yields are not polled.
// Returns nil only when every generator yields nothing.
func (r *Registry) NextRequest() *ir.Request {
	r.guard.Check()
	for _, e := range r.entries {
		if req := e.gen.NextRequest(); req != nil {
			return req
		}
	}
	return nil
}

// Len returns the number of registered generators.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Dispose disposes every owned source in registration order.
// Panics if called twice.
func (r *Registry) Dispose() {
	r.guard.Dispose()
	for _, e := range r.entries {
		if e.dispose != nil {
			e.dispose()
		}
	}
	r.entries = nil
}
