package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventID_CompareTimeBasedUUIDs(t *testing.T) {
	// time_low is the least significant part of a v1 timestamp, so the
	// lexically larger ID is older here.
	older := EventID("ffffffff-0000-1000-8000-000000000000")
	newer := EventID("00000000-0001-1000-8000-000000000000")

	assert.Equal(t, -1, older.Compare(newer))
	assert.Equal(t, 1, newer.Compare(older))
	assert.True(t, older.Before(newer))
	assert.False(t, newer.Before(older))
}

func TestEventID_CompareSameTimestampUsesBytes(t *testing.T) {
	a := EventID("00000001-0000-1000-8000-00000000000a")
	b := EventID("00000001-0000-1000-8000-00000000000b")

	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 0, a.Compare(a))
}

func TestEventID_CompareFallsBackToLexical(t *testing.T) {
	assert.Equal(t, -1, EventID("e1").Compare("e2"))
	assert.Equal(t, 1, EventID("e3").Compare("e2"))

	// A random (v4) UUID carries no timestamp, so it sorts after every
	// time-based one.
	v4 := EventID("9b2f1e3c-4a5d-4e6f-8a7b-1c2d3e4f5a6b")
	assert.Equal(t, 1, v4.Compare("00000000-0001-1000-8000-000000000000"))
}

func TestEventID_CompareIsTransitiveAcrossForms(t *testing.T) {
	ids := []EventID{
		"ffffffff-0000-1000-8000-000000000000",
		"00000000-0001-1000-8000-000000000000",
		"00000001-0000-1000-8000-00000000000a",
		"9b2f1e3c-4a5d-4e6f-8a7b-1c2d3e4f5a6b",
		"0",
		"e1",
		"zz",
	}
	for _, a := range ids {
		for _, b := range ids {
			assert.Equal(t, -a.Compare(b), b.Compare(a), "%s vs %s not antisymmetric", a, b)
			for _, c := range ids {
				if a.Before(b) && b.Before(c) {
					assert.True(t, a.Before(c), "%s < %s < %s but not %s < %s", a, b, c, a, c)
				}
			}
		}
	}
}

func TestEventID_Older(t *testing.T) {
	older := EventID("ffffffff-0000-1000-8000-000000000000")
	newer := EventID("00000000-0001-1000-8000-000000000000")
	assert.True(t, older.Older(newer))
	assert.False(t, newer.Older(older))

	// Same timestamp: byte order is not issue order.
	a := EventID("00000001-0000-1000-8000-00000000000a")
	b := EventID("00000001-0000-1000-8000-00000000000b")
	assert.False(t, a.Older(b))
	assert.False(t, b.Older(a))

	assert.True(t, EventID("e1").Older("e2"))
	assert.False(t, EventID("e1").Older(newer), "different forms carry no issue order")
	assert.False(t, newer.Older("e1"))
}

func TestEventID_IsZero(t *testing.T) {
	assert.True(t, EventID("").IsZero())
	assert.False(t, EventID("e1").IsZero())
}
