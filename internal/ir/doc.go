// Package ir provides the shared domain types for pushsync.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal, so it stays the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Event identifiers are opaque strings assigned by the server; ordering
//     goes through EventID.Compare, never through wall-clock timestamps
//   - Events are immutable once fetched; decryption returns a copy
//   - All JSON tags use snake_case
package ir
