package testutil

import (
	"context"
	"sync"

	"github.com/roach88/pushsync/internal/ir"
)

// FakeTransport is an in-memory transport with a fixed in-flight capacity.
//
// Requests stay pending until the test completes them. Completion runs the
// request's callback synchronously on the calling goroutine, so tests that
// complete requests between RunPending calls get a deterministic schedule.
type FakeTransport struct {
	mu       sync.Mutex
	capacity int
	attempts int
	pending  []*ir.Request
	sent     []*ir.Request

	// OnSlotFreed is called after every completion, outside the lock.
	OnSlotFreed func()
}

// NewFakeTransport creates a transport that holds at most capacity requests.
func NewFakeTransport(capacity int) *FakeTransport {
	return &FakeTransport{capacity: capacity}
}

// TryEnqueue implements pump.Transport.
func (t *FakeTransport) TryEnqueue(next func() *ir.Request) ir.EnqueueResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.attempts++
	if len(t.pending) >= t.capacity {
		return ir.EnqueueResult{}
	}
	req := next()
	if req == nil {
		return ir.EnqueueResult{UnderCapacity: true}
	}
	t.pending = append(t.pending, req)
	t.sent = append(t.sent, req)
	return ir.EnqueueResult{
		ProducedRequest: true,
		UnderCapacity:   len(t.pending) < t.capacity,
	}
}

// Attempts returns the number of TryEnqueue calls.
func (t *FakeTransport) Attempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts
}

// Pending returns the requests not yet completed, oldest first.
func (t *FakeTransport) Pending() []*ir.Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*ir.Request(nil), t.pending...)
}

// Sent returns every request ever accepted, oldest first.
func (t *FakeTransport) Sent() []*ir.Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*ir.Request(nil), t.sent...)
}

// CompleteNext completes the oldest pending request with resp.
// Returns false if nothing is pending.
func (t *FakeTransport) CompleteNext(resp ir.Response) bool {
	t.mu.Lock()
	if len(t.pending) == 0 {
		t.mu.Unlock()
		return false
	}
	req := t.pending[0]
	t.pending = t.pending[1:]
	t.mu.Unlock()

	if req.Complete != nil {
		req.Complete(context.Background(), resp)
	}
	if t.OnSlotFreed != nil {
		t.OnSlotFreed()
	}
	return true
}

// PageResponse builds a successful page response carrying batch.
func PageResponse(batch ir.EventBatch) ir.Response {
	body, err := ir.EncodePage(batch)
	if err != nil {
		panic(err)
	}
	return ir.Response{StatusCode: 200, Body: body}
}

// NotificationResponse builds a successful single-notification response.
func NotificationResponse(ev ir.UpdateEvent) ir.Response {
	body, err := ir.EncodeNotification(ev)
	if err != nil {
		panic(err)
	}
	return ir.Response{StatusCode: 200, Body: body}
}

// FailureResponse builds a failed response carrying err.
func FailureResponse(status int, err error) ir.Response {
	return ir.Response{StatusCode: status, Err: err}
}
