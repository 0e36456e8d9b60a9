// Package store provides the SQLite-backed local account state that the
// notification pipeline writes.
//
// # Write path
//
// A Context is the handle the pipeline drives. Apply runs the fixed,
// ordered list of per-kind appliers inside a lazily opened transaction,
// Commit makes it durable, and Recycle rolls back anything left over and
// reopens the database so per-event memory never accumulates.
//
// Every applier is idempotent: rows are written with upserts or guarded
// inserts and deletes, so re-applying an event after a crash leaves the
// observable state unchanged.
//
// # Change journal
//
// Each row change is also recorded in change_journal with a content
// addressed ID (ir.ChangeID), so the foreground application can merge what
// happened while it was suspended. Redelivered events add no journal rows.
//
// # Connections
//
// Pragmas travel in the DSN, so every pooled connection runs in WAL mode
// with synchronous=NORMAL, a 5 second busy timeout and foreign keys on.
// The schema version lives in PRAGMA user_version.
package store
