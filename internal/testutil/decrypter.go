package testutil

import (
	"context"
	"sync"

	"github.com/roach88/pushsync/internal/ir"
)

// FakeDecrypter treats ciphertext as plaintext and drops listed events.
type FakeDecrypter struct {
	mu    sync.Mutex
	calls int

	// Drop lists events that fail to decrypt.
	Drop map[ir.EventID]bool
}

// NewFakeDecrypter creates a decrypter that drops nothing.
func NewFakeDecrypter() *FakeDecrypter {
	return &FakeDecrypter{Drop: make(map[ir.EventID]bool)}
}

// Decrypt implements stream.Decrypter. Order is preserved.
func (d *FakeDecrypter) Decrypt(_ context.Context, events []ir.UpdateEvent) []ir.UpdateEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++

	out := make([]ir.UpdateEvent, 0, len(events))
	for _, ev := range events {
		if d.Drop[ev.ID] {
			continue
		}
		if !ev.Decrypted() {
			ev = ev.WithData(ev.Payload)
		}
		out = append(out, ev)
	}
	return out
}

// Calls returns the number of Decrypt calls.
func (d *FakeDecrypter) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}
