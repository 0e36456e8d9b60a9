package session

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/pushsync/internal/alert"
	"github.com/roach88/pushsync/internal/config"
	"github.com/roach88/pushsync/internal/ir"
	"github.com/roach88/pushsync/internal/lifecycle"
	"github.com/roach88/pushsync/internal/pump"
	"github.com/roach88/pushsync/internal/registry"
	"github.com/roach88/pushsync/internal/store"
)

// ErrNoAlert is returned by Alert.Wait when the event produced nothing to
// show: the fetch failed, it could not be decrypted, or the account holder
// sent it.
var ErrNoAlert = errors.New("session: no alert for event")

// Alert fetches and renders a single event.
type Alert struct {
	*core

	strategy *alert.Strategy
	registry *registry.Registry
	pump     *pump.Pump
	names    *store.Store

	mu      sync.Mutex
	summary *ir.Summary
	done    chan struct{}
	closed  bool
	guard   *lifecycle.Guard
}

// AlertOption configures an Alert session.
type AlertOption func(*alertOptions)

type alertOptions struct {
	decrypter Decrypter
	hint      string
}

// WithAlertDecrypter replaces the decrypter built from the config's key file.
func WithAlertDecrypter(d Decrypter) AlertOption {
	return func(o *alertOptions) {
		o.decrypter = d
	}
}

// WithConversationHint passes the conversation the event belongs to.
func WithConversationHint(id string) AlertOption {
	return func(o *alertOptions) {
		o.hint = id
	}
}

// NewAlert assembles the single-event pipeline for eventID. Names are
// looked up read-only in the account's local store.
func NewAlert(cfg config.Config, eventID ir.EventID, opts ...AlertOption) (_ *Alert, err error) {
	var o alertOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.decrypter == nil {
		if o.decrypter, err = newDecrypter(cfg); err != nil {
			return nil, err
		}
	}

	rt, err := newCore(cfg)
	if err != nil {
		return nil, err
	}
	names, err := store.Open(cfg.StorePath())
	if err != nil {
		rt.transport.Close()
		return nil, err
	}

	a := &Alert{
		core:  rt,
		names: names,
		done:  make(chan struct{}),
		guard: lifecycle.NewGuard("alert session"),
	}
	a.strategy = alert.New(alert.Config{
		SelfID:           cfg.UserID,
		ClientID:         cfg.ClientID,
		EventID:          eventID,
		ConversationHint: o.hint,
	}, o.decrypter, names, a,
		alert.WithMetrics(rt.metrics),
		alert.OnFinished(func() { a.finish(nil) }),
	)
	a.registry = registry.New(registry.Own(a.strategy))
	a.pump = pump.New(rt.loop, a.registry, rt.transport, rt.bus, pump.WithMetrics(rt.metrics))
	lifecycle.Track(a, a.guard)
	return a, nil
}

// OnSingleAlertReady implements alert.Listener.
func (a *Alert) OnSingleAlertReady(summary ir.Summary) {
	a.finish(&summary)
}

// finish records the outcome once. A delivered summary arrives before the
// strategy's finish callback, so a nil summary never overwrites it.
func (a *Alert) finish(summary *ir.Summary) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.summary = summary
	a.closed = true
	close(a.done)
}

// Start issues the fetch.
func (a *Alert) Start(ctx context.Context) {
	a.guard.Check()
	a.start(ctx)
}

// Wait blocks until the event has been handled or ctx is done. It returns
// ErrNoAlert when nothing was delivered. A delivered summary may be empty
// (see ir.Summary.IsInvalid) when the event kind has no presentation.
func (a *Alert) Wait(ctx context.Context) (ir.Summary, error) {
	select {
	case <-a.done:
	case <-ctx.Done():
		return ir.Summary{}, ctx.Err()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.summary == nil {
		return ir.Summary{}, ErrNoAlert
	}
	return *a.summary, nil
}

// Dispose stops the run and releases every component. Panics if called
// twice.
func (a *Alert) Dispose() error {
	a.guard.Dispose()
	a.stop()
	a.pump.Dispose()
	a.registry.Dispose()
	return a.names.Close()
}
