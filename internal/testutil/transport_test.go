package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pushsync/internal/ir"
)

func TestFakeTransport_Capacity(t *testing.T) {
	tr := NewFakeTransport(2)
	gen := func() *ir.Request { return &ir.Request{Path: "/x"} }

	assert.Equal(t, ir.EnqueueResult{ProducedRequest: true, UnderCapacity: true}, tr.TryEnqueue(gen))
	assert.Equal(t, ir.EnqueueResult{ProducedRequest: true, UnderCapacity: false}, tr.TryEnqueue(gen))

	called := false
	res := tr.TryEnqueue(func() *ir.Request { called = true; return nil })
	assert.Equal(t, ir.EnqueueResult{}, res)
	assert.False(t, called, "generator must not be polled at capacity")
	assert.Equal(t, 3, tr.Attempts())
}

func TestFakeTransport_EmptyGenerator(t *testing.T) {
	tr := NewFakeTransport(1)
	res := tr.TryEnqueue(func() *ir.Request { return nil })
	assert.Equal(t, ir.EnqueueResult{UnderCapacity: true}, res)
	assert.Empty(t, tr.Pending())
}

func TestFakeTransport_CompleteNext(t *testing.T) {
	tr := NewFakeTransport(1)
	freed := 0
	tr.OnSlotFreed = func() { freed++ }

	var got ir.Response
	tr.TryEnqueue(func() *ir.Request {
		return &ir.Request{Complete: func(_ context.Context, r ir.Response) { got = r }}
	})

	require.True(t, tr.CompleteNext(FailureResponse(503, errors.New("unavailable"))))
	assert.Equal(t, 503, got.StatusCode)
	assert.False(t, got.OK())
	assert.Equal(t, 1, freed)
	assert.False(t, tr.CompleteNext(ir.Response{}))
	assert.Len(t, tr.Sent(), 1)
}
