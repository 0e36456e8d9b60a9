package testutil

import (
	"errors"
	"sync"

	"github.com/roach88/pushsync/internal/ir"
)

// MemoryCheckpoints is an in-memory checkpoint store that keeps the full
// write history per account.
type MemoryCheckpoints struct {
	mu      sync.Mutex
	values  map[string]ir.EventID
	history map[string][]ir.EventID

	// FailSet makes every Set return an error while true.
	FailSet bool
}

// ErrCheckpointWrite is returned by Set while FailSet is true.
var ErrCheckpointWrite = errors.New("checkpoint write failed")

// NewMemoryCheckpoints creates an empty store.
func NewMemoryCheckpoints() *MemoryCheckpoints {
	return &MemoryCheckpoints{
		values:  make(map[string]ir.EventID),
		history: make(map[string][]ir.EventID),
	}
}

// Get implements stream.Checkpoints.
func (c *MemoryCheckpoints) Get(account string) (ir.EventID, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.values[account]
	return id, ok, nil
}

// Set implements stream.Checkpoints. It overwrites unconditionally.
func (c *MemoryCheckpoints) Set(account string, id ir.EventID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailSet {
		return ErrCheckpointWrite
	}
	c.values[account] = id
	c.history[account] = append(c.history[account], id)
	return nil
}

// History returns every value written for account, in write order.
func (c *MemoryCheckpoints) History(account string) []ir.EventID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ir.EventID(nil), c.history[account]...)
}
