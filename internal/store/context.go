package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/roach88/pushsync/internal/ir"
)

// Context is the write handle the notification pipeline drives.
//
// It implements stream.LocalStore. A transaction is opened by the first
// Apply after a Commit or Recycle and spans every Apply until the next
// Commit. The database file must be on disk: Recycle reopens it by path.
type Context struct {
	path     string
	store    *Store
	tx       *sql.Tx
	appliers []Applier
	batchID  string
}

// ContextOption configures a Context.
type ContextOption func(*Context)

// WithAppliers replaces the default applier list.
func WithAppliers(appliers ...Applier) ContextOption {
	return func(c *Context) {
		c.appliers = appliers
	}
}

// OpenContext opens the database at path for writing.
func OpenContext(path string, opts ...ContextOption) (*Context, error) {
	s, err := Open(path)
	if err != nil {
		return nil, err
	}
	c := &Context{
		path:     path,
		store:    s,
		appliers: DefaultAppliers(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Store returns the currently open database. The value changes on Recycle.
func (c *Context) Store() *Store {
	return c.store
}

// Apply offers ev to every applier in order and records their row changes
// in the journal. handled is true when at least one applier consumed it.
// The first applier error aborts the event; its partial writes are
// discarded by the next Recycle.
func (c *Context) Apply(ctx context.Context, ev ir.UpdateEvent) (bool, error) {
	if c.store == nil {
		return false, errors.New("apply: store is closed")
	}
	if c.tx == nil {
		tx, err := c.store.begin(ctx)
		if err != nil {
			return false, fmt.Errorf("apply %s: %w", ev.ID, err)
		}
		c.tx = tx
		c.batchID = uuid.NewString()
	}

	handled := false
	for _, a := range c.appliers {
		changes, ok, err := a.Apply(ctx, c.tx, ev)
		if err != nil {
			return false, fmt.Errorf("%s applier: %w", a.Name(), err)
		}
		if !ok {
			continue
		}
		handled = true
		if err := c.journal(ctx, ev.ID, changes); err != nil {
			return false, fmt.Errorf("%s applier: %w", a.Name(), err)
		}
	}
	return handled, nil
}

func (c *Context) journal(ctx context.Context, eventID ir.EventID, changes []Change) error {
	for _, ch := range changes {
		id, err := ir.ChangeID(eventID, ch.Table, ch.Key, ch.Op)
		if err != nil {
			return err
		}
		_, err = c.tx.ExecContext(ctx, `
			INSERT INTO change_journal (id, event_id, table_name, row_key, op, batch_id)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING
		`, id, eventID.String(), ch.Table, ch.Key, ch.Op, c.batchID)
		if err != nil {
			return fmt.Errorf("journal %s %s: %w", ch.Table, ch.Key, err)
		}
	}
	return nil
}

// Commit makes every Apply since the last Commit durable.
// With nothing applied it is a no-op.
func (c *Context) Commit(ctx context.Context) error {
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Recycle discards any uncommitted work, closes the database and opens it
// again. It returns once the new handle is ready.
func (c *Context) Recycle(context.Context) error {
	if c.tx != nil {
		if err := c.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			slog.Warn("rollback before recycle failed", "error", err)
		}
		c.tx = nil
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			slog.Warn("close before recycle failed", "path", c.path, "error", err)
		}
		c.store = nil
	}
	s, err := Open(c.path)
	if err != nil {
		return fmt.Errorf("recycle: %w", err)
	}
	c.store = s
	return nil
}

// Close rolls back uncommitted work and closes the database.
func (c *Context) Close() error {
	if c.tx != nil {
		_ = c.tx.Rollback()
		c.tx = nil
	}
	if c.store == nil {
		return nil
	}
	err := c.store.Close()
	c.store = nil
	return err
}
