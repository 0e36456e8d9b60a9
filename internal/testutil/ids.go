package testutil

import (
	"encoding/binary"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/pushsync/internal/ir"
)

// baseMillis is 2024-01-01T00:00:00Z in Unix milliseconds.
const baseMillis = 1704067200000

// DeterministicIDs issues time-ordered event IDs for tests.
//
// The n-th ID is a version 7 UUID whose timestamp is baseMillis+n
// milliseconds, so IDs sort in issue order under ir.EventID.Compare and the
// same sequence is produced on every run.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicIDs struct {
	mu  sync.Mutex
	seq uint64
}

// NewDeterministicIDs creates a generator whose first ID has sequence 1.
func NewDeterministicIDs() *DeterministicIDs {
	return &DeterministicIDs{}
}

// Next returns the next event ID.
func (g *DeterministicIDs) Next() ir.EventID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return EventIDAt(g.seq)
}

// Current returns the sequence number of the last issued ID.
func (g *DeterministicIDs) Current() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

// Reset restarts the sequence. The next call to Next returns EventIDAt(1).
func (g *DeterministicIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}

// EventIDAt returns the ID DeterministicIDs issues for sequence n.
func EventIDAt(n uint64) ir.EventID {
	var u uuid.UUID
	ms := uint64(baseMillis) + n
	u[0] = byte(ms >> 40)
	u[1] = byte(ms >> 32)
	u[2] = byte(ms >> 24)
	u[3] = byte(ms >> 16)
	u[4] = byte(ms >> 8)
	u[5] = byte(ms)
	u[6] = 0x70 // version 7
	u[8] = 0x80 // RFC 4122 variant
	binary.BigEndian.PutUint32(u[12:], uint32(n))
	return ir.EventID(u.String())
}
