// Package wake provides the payload-free "requests may be available" signal.
//
// A Bus is constructed by the host and injected into every pump that should
// react to it. Several accounts may share one bus; a signal carries no account
// information, so each subscriber decides for itself whether there is work.
package wake

import (
	"fmt"
	"sync"
)

// Bus fans a signal out to every live subscription.
type Bus struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]func()
}

// NewBus creates a bus with no subscribers.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]func())}
}

// Subscribe registers handler and returns the handle that detaches it.
// Handlers are called synchronously from Publish and must not block.
func (b *Bus) Subscribe(handler func()) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subs[b.nextID] = handler
	return &Subscription{bus: b, id: b.nextID}
}

// Publish signals every subscriber once.
func (b *Bus) Publish() {
	b.mu.Lock()
	handlers := make([]func(), 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h()
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	bus      *Bus
	id       uint64
	mu       sync.Mutex
	canceled bool
}

// Cancel detaches the handler. Calling Cancel twice panics.
func (s *Subscription) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.canceled {
		panic(fmt.Sprintf("wake: subscription %d canceled twice", s.id))
	}
	s.canceled = true

	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
}
