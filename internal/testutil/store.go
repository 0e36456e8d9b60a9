package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/pushsync/internal/ir"
)

// ErrCommit is returned by FakeStore.Commit for events in FailCommit.
var ErrCommit = errors.New("commit failed")

// FakeStore is a local store that records staged and committed events.
//
// Apply stages the event; Commit moves staged events into Committed unless
// the staged event is listed in FailCommit; Recycle discards anything still
// staged. Steps records every call in order, for interleaving assertions.
type FakeStore struct {
	mu        sync.Mutex
	staged    []ir.EventID
	committed []ir.EventID
	steps     []string

	// Handles lists the kinds Apply reports as handled. Nil handles all.
	Handles map[ir.Kind]bool
	// FailCommit lists events whose commit fails.
	FailCommit map[ir.EventID]bool
	// FailApply lists events whose apply fails.
	FailApply map[ir.EventID]bool
}

// NewFakeStore creates an empty store.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		FailCommit: make(map[ir.EventID]bool),
		FailApply:  make(map[ir.EventID]bool),
	}
}

// Apply implements stream.LocalStore.
func (s *FakeStore) Apply(_ context.Context, ev ir.UpdateEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, "apply:"+ev.ID.String())
	if s.FailApply[ev.ID] {
		return false, fmt.Errorf("apply %s: rejected", ev.ID)
	}
	if s.Handles != nil && !s.Handles[ev.Kind] {
		return false, nil
	}
	s.staged = append(s.staged, ev.ID)
	return true, nil
}

// Commit implements stream.LocalStore.
func (s *FakeStore) Commit(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, "commit")
	for _, id := range s.staged {
		if s.FailCommit[id] {
			return fmt.Errorf("commit %s: %w", id, ErrCommit)
		}
	}
	s.committed = append(s.committed, s.staged...)
	s.staged = nil
	return nil
}

// Recycle implements stream.LocalStore.
func (s *FakeStore) Recycle(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, "recycle")
	s.staged = nil
	return nil
}

// Committed returns the committed events in commit order.
func (s *FakeStore) Committed() []ir.EventID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ir.EventID(nil), s.committed...)
}

// Steps returns every store call in call order.
func (s *FakeStore) Steps() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.steps...)
}
