package ir

import (
	"bytes"
	"strings"

	"github.com/google/uuid"
)

// EventID is the server-assigned identifier of an update event.
//
// The server issues time-based UUIDs (v1, v6 or v7) for every event of an
// account, so ordering follows the embedded timestamp. An account's IDs are
// expected to be uniformly of that form; anything else is ordered lexically
// and only against other non-UUID identifiers.
type EventID string

// IsZero reports whether the identifier is empty.
func (id EventID) IsZero() bool {
	return id == ""
}

// String returns the identifier as sent by the server.
func (id EventID) String() string {
	return string(id)
}

// Compare returns -1, 0 or +1 depending on whether id sorts before, equal to
// or after other. It is a total order: time-based UUIDs sort by timestamp
// then bytes, and all of them sort before any other identifier, which sort
// lexically among themselves.
func (id EventID) Compare(other EventID) int {
	if id == other {
		return 0
	}
	a, aok := timeOrdered(id)
	b, bok := timeOrdered(other)
	switch {
	case aok && bok:
		if c := compareTime(a, b); c != 0 {
			return c
		}
		return bytes.Compare(a[:], b[:])
	case aok:
		return -1
	case bok:
		return 1
	}
	return strings.Compare(string(id), string(other))
}

// Before reports whether id sorts strictly before other in Compare order.
func (id EventID) Before(other EventID) bool {
	return id.Compare(other) < 0
}

// Older reports whether id is known to have been issued before other.
// That holds for time-based UUIDs with a strictly earlier timestamp and for
// lexically smaller non-UUID identifiers. IDs sharing a timestamp, or of
// different forms, carry no issue order; the server's delivery order is
// the only one there is.
func (id EventID) Older(other EventID) bool {
	a, aok := timeOrdered(id)
	b, bok := timeOrdered(other)
	switch {
	case aok && bok:
		return compareTime(a, b) < 0
	case !aok && !bok:
		return id < other
	}
	return false
}

func compareTime(a, b uuid.UUID) int {
	ta, tb := a.Time(), b.Time()
	switch {
	case ta < tb:
		return -1
	case ta > tb:
		return 1
	}
	return 0
}

// timeOrdered parses id as a UUID carrying a timestamp (v1, v6 or v7).
func timeOrdered(id EventID) (uuid.UUID, bool) {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return uuid.UUID{}, false
	}
	switch u.Version() {
	case 1, 6, 7:
		return u, true
	default:
		return uuid.UUID{}, false
	}
}
