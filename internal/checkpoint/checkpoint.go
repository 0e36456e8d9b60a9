// Package checkpoint persists the last applied event per account in a
// Pebble database, outside the local state database.
//
// Set is an unconditional overwrite; keeping the value monotonic is the
// pipeline's job. Keeping the checkpoint in its own store means a local
// state database that is deleted or rebuilt never takes the resume point
// with it.
package checkpoint

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/roach88/pushsync/internal/ir"
)

const keyPrefix = "checkpoint/"

// Options configures the checkpoint store.
type Options struct {
	// Dir is the Pebble database directory.
	Dir string
	// FS overrides the filesystem. Tests pass vfs.NewMem().
	FS vfs.FS
	// NoSync skips the WAL fsync on every write.
	NoSync bool
}

// Store is a Pebble-backed checkpoint store.
type Store struct {
	db    *pebble.DB
	write *pebble.WriteOptions
}

// Open creates or opens the checkpoint database.
func Open(opts Options) (*Store, error) {
	if opts.Dir == "" {
		return nil, errors.New("checkpoint: Options.Dir is required")
	}
	po := &pebble.Options{}
	if opts.FS != nil {
		po.FS = opts.FS
	}
	db, err := pebble.Open(opts.Dir, po)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store %s: %w", opts.Dir, err)
	}
	write := pebble.Sync
	if opts.NoSync {
		write = pebble.NoSync
	}
	return &Store{db: db, write: write}, nil
}

func key(account string) []byte {
	return []byte(keyPrefix + account)
}

// Get returns the checkpoint for account. ok is false when none is stored.
func (s *Store) Get(account string) (ir.EventID, bool, error) {
	val, closer, err := s.db.Get(key(account))
	if errors.Is(err, pebble.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get checkpoint %s: %w", account, err)
	}
	id := ir.EventID(string(val))
	if err := closer.Close(); err != nil {
		return "", false, fmt.Errorf("get checkpoint %s: %w", account, err)
	}
	return id, true, nil
}

// Set stores id as the checkpoint for account, replacing any previous value.
func (s *Store) Set(account string, id ir.EventID) error {
	if id.IsZero() {
		return fmt.Errorf("set checkpoint %s: empty event id", account)
	}
	if err := s.db.Set(key(account), []byte(id), s.write); err != nil {
		return fmt.Errorf("set checkpoint %s: %w", account, err)
	}
	return nil
}

// Delete removes the checkpoint for account. The next sync starts from the
// beginning of the server's notification stream.
func (s *Store) Delete(account string) error {
	if err := s.db.Delete(key(account), s.write); err != nil {
		return fmt.Errorf("delete checkpoint %s: %w", account, err)
	}
	return nil
}

// List returns every stored checkpoint keyed by account.
func (s *Store) List() (map[string]ir.EventID, error) {
	lo := []byte(keyPrefix)
	hi := append([]byte(keyPrefix[:len(keyPrefix)-1]), '/'+1)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer it.Close()

	out := make(map[string]ir.EventID)
	for it.First(); it.Valid(); it.Next() {
		account := strings.TrimPrefix(string(it.Key()), keyPrefix)
		out[account] = ir.EventID(string(it.Value()))
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	return out, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
