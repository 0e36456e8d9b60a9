// Package pump drains request generators into the transport boundary.
//
// A Pump wakes on the shared wake bus and runs drain passes on the account's
// serial loop. Wake signals are coalesced: any number of signals that arrive
// while a pass is already scheduled collapse into that pass.
package pump

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/roach88/pushsync/internal/ir"
	"github.com/roach88/pushsync/internal/lifecycle"
	"github.com/roach88/pushsync/internal/metrics"
	"github.com/roach88/pushsync/internal/registry"
	"github.com/roach88/pushsync/internal/runloop"
	"github.com/roach88/pushsync/internal/wake"
)

// Transport is the outbound request boundary.
//
// TryEnqueue calls next at most once. When the transport is at capacity it
// returns without calling next. Completion is reported through the request's
// Complete callback, posted onto the owning loop.
type Transport interface {
	TryEnqueue(next func() *ir.Request) ir.EnqueueResult
}

// Pump is the signal-driven drain of a registry.
type Pump struct {
	loop      *runloop.Loop
	source    registry.Generator
	transport Transport
	sub       *wake.Subscription
	metrics   *metrics.Metrics
	scheduled atomic.Bool
	guard     *lifecycle.Guard
}

// Option configures a Pump.
type Option func(*Pump)

// WithMetrics records drain passes and enqueue attempts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pump) {
		p.metrics = m
	}
}

// New creates a pump over source and subscribes it to bus.
// source is usually a *registry.Registry.
func New(loop *runloop.Loop, source registry.Generator, transport Transport, bus *wake.Bus, opts ...Option) *Pump {
	p := &Pump{
		loop:      loop,
		source:    source,
		transport: transport,
		guard:     lifecycle.NewGuard("pump"),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.sub = bus.Subscribe(p.signal)
	lifecycle.Track(p, p.guard)
	return p
}

// signal schedules a drain pass unless one is already pending.
// Safe from any goroutine.
func (p *Pump) signal() {
	if p.guard.Disposed() {
		return
	}
	if !p.scheduled.CompareAndSwap(false, true) {
		return
	}
	if !p.loop.Post(p.drain) {
		p.scheduled.Store(false)
	}
}

// drain runs one pass on the loop.
func (p *Pump) drain(ctx context.Context) {
	// Clear first: a signal raised during this pass must schedule another one.
	p.scheduled.Store(false)
	if p.guard.Disposed() {
		return
	}
	p.metrics.DrainPass()

	attempts := 0
	for {
		attempts++
		p.metrics.EnqueueAttempt()
		result := p.transport.TryEnqueue(p.source.NextRequest)
		if !result.ProducedRequest || !result.UnderCapacity {
			slog.Debug("drain pass finished",
				"attempts", attempts,
				"produced_request", result.ProducedRequest,
				"under_capacity", result.UnderCapacity,
			)
			return
		}
	}
}

// Dispose detaches the pump from the wake bus and releases the transport
// and source. Panics if called twice.
func (p *Pump) Dispose() {
	p.guard.Dispose()
	p.sub.Cancel()
	p.sub = nil
	p.transport = nil
	p.source = nil
}
