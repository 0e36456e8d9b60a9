package pump

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pushsync/internal/ir"
	"github.com/roach88/pushsync/internal/metrics"
	"github.com/roach88/pushsync/internal/registry"
	"github.com/roach88/pushsync/internal/runloop"
	"github.com/roach88/pushsync/internal/testutil"
	"github.com/roach88/pushsync/internal/transport"
	"github.com/roach88/pushsync/internal/wake"
)

func alwaysRequest() registry.Generator {
	return registry.GeneratorFunc(func() *ir.Request {
		return &ir.Request{Kind: ir.RequestNotificationPage, Path: "/notifications"}
	})
}

func TestPump_StopsAtCapacity(t *testing.T) {
	loop := runloop.New()
	bus := wake.NewBus()
	tr := testutil.NewFakeTransport(3)
	reg := registry.New(registry.UseGenerator(alwaysRequest()))
	p := New(loop, reg, tr, bus)
	defer p.Dispose()
	defer reg.Dispose()

	bus.Publish()
	loop.RunPending(context.Background())

	assert.Equal(t, 3, tr.Attempts(), "pump must halt after the third enqueue fills capacity")
	assert.Len(t, tr.Pending(), 3)
}

func TestPump_ResumesWhenSlotFreed(t *testing.T) {
	loop := runloop.New()
	bus := wake.NewBus()
	tr := testutil.NewFakeTransport(3)
	tr.OnSlotFreed = bus.Publish
	reg := registry.New(registry.UseGenerator(alwaysRequest()))
	p := New(loop, reg, tr, bus)
	defer p.Dispose()
	defer reg.Dispose()

	bus.Publish()
	loop.RunPending(context.Background())
	require.Equal(t, 3, tr.Attempts())

	require.True(t, tr.CompleteNext(ir.Response{StatusCode: 200}))
	loop.RunPending(context.Background())

	assert.Equal(t, 4, tr.Attempts())
	assert.Len(t, tr.Pending(), 3)
}

func TestPump_StopsWhenRegistryExhausted(t *testing.T) {
	loop := runloop.New()
	bus := wake.NewBus()
	tr := testutil.NewFakeTransport(10)

	remaining := 2
	reg := registry.New(registry.UseGenerator(registry.GeneratorFunc(func() *ir.Request {
		if remaining == 0 {
			return nil
		}
		remaining--
		return &ir.Request{}
	})))
	p := New(loop, reg, tr, bus)
	defer p.Dispose()
	defer reg.Dispose()

	bus.Publish()
	loop.RunPending(context.Background())

	assert.Equal(t, 3, tr.Attempts(), "two produced, one empty")
	assert.Len(t, tr.Pending(), 2)
}

func TestPump_CoalescesSignals(t *testing.T) {
	loop := runloop.New()
	bus := wake.NewBus()
	tr := testutil.NewFakeTransport(10)
	reg := registry.New(registry.UseGenerator(registry.GeneratorFunc(func() *ir.Request { return nil })))
	m := metrics.New("acct")
	p := New(loop, reg, tr, bus, WithMetrics(m))
	defer p.Dispose()
	defer reg.Dispose()

	bus.Publish()
	bus.Publish()
	bus.Publish()
	assert.Equal(t, 1, loop.Len(), "pending signals collapse into one pass")

	loop.RunPending(context.Background())
	assert.Equal(t, 1, tr.Attempts())

	// A signal after the pass schedules a new one.
	bus.Publish()
	loop.RunPending(context.Background())
	assert.Equal(t, 2, tr.Attempts())
}

func TestPump_SignalDuringPassSchedulesAnother(t *testing.T) {
	loop := runloop.New()
	bus := wake.NewBus()
	tr := testutil.NewFakeTransport(10)

	signalled := false
	reg := registry.New(registry.UseGenerator(registry.GeneratorFunc(func() *ir.Request {
		if !signalled {
			signalled = true
			bus.Publish()
		}
		return nil
	})))
	p := New(loop, reg, tr, bus)
	defer p.Dispose()
	defer reg.Dispose()

	bus.Publish()
	n := loop.RunPending(context.Background())

	assert.Equal(t, 2, n)
	assert.Equal(t, 2, tr.Attempts())
}

func TestPump_DisposeDetaches(t *testing.T) {
	loop := runloop.New()
	bus := wake.NewBus()
	tr := testutil.NewFakeTransport(3)
	reg := registry.New(registry.UseGenerator(alwaysRequest()))
	defer reg.Dispose()
	p := New(loop, reg, tr, bus)
	require.Equal(t, 1, bus.Subscribers())

	p.Dispose()
	assert.Equal(t, 0, bus.Subscribers())

	bus.Publish()
	loop.RunPending(context.Background())
	assert.Equal(t, 0, tr.Attempts())
}

func TestPump_PendingPassAfterDisposeIsNoop(t *testing.T) {
	loop := runloop.New()
	bus := wake.NewBus()
	tr := testutil.NewFakeTransport(3)
	reg := registry.New(registry.UseGenerator(alwaysRequest()))
	defer reg.Dispose()
	p := New(loop, reg, tr, bus)

	bus.Publish()
	p.Dispose()
	loop.RunPending(context.Background())

	assert.Equal(t, 0, tr.Attempts())
}

func TestPump_DoubleDisposePanics(t *testing.T) {
	loop := runloop.New()
	bus := wake.NewBus()
	reg := registry.New()
	defer reg.Dispose()
	p := New(loop, reg, testutil.NewFakeTransport(1), bus)

	p.Dispose()
	assert.PanicsWithValue(t, "pump: Dispose called twice", p.Dispose)
}

func TestPump_RefillsHTTPTransportAsSlotsFree(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	loop := runloop.New()
	bus := wake.NewBus()
	tr, err := transport.New(srv.URL, loop, bus, transport.WithCapacity(2))
	require.NoError(t, err)

	// Only drain passes call the generator, and they all run on the loop.
	const total = 6
	issued := 0
	var completed atomic.Int32
	reg := registry.New(registry.UseGenerator(registry.GeneratorFunc(func() *ir.Request {
		if issued == total {
			return nil
		}
		issued++
		return &ir.Request{
			Kind: ir.RequestNotificationPage,
			Path: "/notifications",
			Complete: func(context.Context, ir.Response) {
				completed.Add(1)
			},
		}
	})))
	p := New(loop, reg, tr, bus)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()

	// One outside wake; every later pass is triggered by a freed slot.
	bus.Publish()
	require.Eventually(t, func() bool {
		return completed.Load() == total
	}, 5*time.Second, 5*time.Millisecond, "pump stalled after filling capacity")

	cancel()
	<-done
	tr.Close()
	p.Dispose()
	reg.Dispose()
	assert.Equal(t, 0, tr.InFlight())
}
