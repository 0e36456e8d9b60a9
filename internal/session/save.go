package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/roach88/pushsync/internal/checkpoint"
	"github.com/roach88/pushsync/internal/config"
	"github.com/roach88/pushsync/internal/ir"
	"github.com/roach88/pushsync/internal/lifecycle"
	"github.com/roach88/pushsync/internal/pump"
	"github.com/roach88/pushsync/internal/registry"
	"github.com/roach88/pushsync/internal/store"
	"github.com/roach88/pushsync/internal/stream"
)

// Save pulls the account's pending notifications into the local store.
type Save struct {
	*core

	sync        *stream.Sync
	registry    *registry.Registry
	pump        *pump.Pump
	local       *store.Context
	checkpoints *checkpoint.Store

	mu       sync.Mutex
	fetchErr error
	failed   chan struct{}
	guard    *lifecycle.Guard
}

// SaveOption configures a Save session.
type SaveOption func(*saveOptions)

type saveOptions struct {
	decrypter Decrypter
	syncOpts  []stream.Option
}

// WithDecrypter replaces the decrypter built from the config's key file.
func WithDecrypter(d Decrypter) SaveOption {
	return func(o *saveOptions) {
		o.decrypter = d
	}
}

// WithEventFailureListener adds a listener for events that did not take
// full effect.
func WithEventFailureListener(l stream.EventFailureListener) SaveOption {
	return func(o *saveOptions) {
		o.syncOpts = append(o.syncOpts, stream.WithEventFailureListener(l))
	}
}

// WithBatchListener adds a listener for fetched pages.
func WithBatchListener(l stream.BatchListener) SaveOption {
	return func(o *saveOptions) {
		o.syncOpts = append(o.syncOpts, stream.WithBatchListener(l))
	}
}

// NewSave opens the account's stores and assembles the stream pipeline.
// Nothing is fetched until Start.
func NewSave(cfg config.Config, opts ...SaveOption) (_ *Save, err error) {
	var o saveOptions
	for _, opt := range opts {
		opt(&o)
	}
	policy, err := stream.ParsePolicy(cfg.CommitFailurePolicy)
	if err != nil {
		return nil, err
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
	local, err := store.OpenContext(cfg.StorePath())
	if err != nil {
		rt.transport.Close()
		return nil, err
	}
	cps, err := checkpoint.Open(checkpoint.Options{Dir: cfg.CheckpointDir()})
	if err != nil {
		rt.transport.Close()
		local.Close()
		return nil, err
	}

	s := &Save{
		core:        rt,
		local:       local,
		checkpoints: cps,
		failed:      make(chan struct{}),
		guard:       lifecycle.NewGuard("save session"),
	}
	syncOpts := append([]stream.Option{
		stream.WithPolicy(policy),
		stream.WithMetrics(rt.metrics),
		stream.WithFetchFailureListener(s),
	}, o.syncOpts...)
	s.sync = stream.New(
		stream.Config{Account: cfg.AccountID, ClientID: cfg.ClientID, PageSize: cfg.PageSize},
		stream.Deps{Decrypter: o.decrypter, Store: local, Checkpoints: cps, Waker: rt.bus},
		syncOpts...,
	)
	s.registry = registry.New(registry.Own(s.sync))
	s.pump = pump.New(rt.loop, s.registry, rt.transport, rt.bus, pump.WithMetrics(rt.metrics))
	lifecycle.Track(s, s.guard)
	return s, nil
}

// Start begins pulling. ctx bounds the whole run; cancelling it interrupts
// the batch in progress after the current event.
func (s *Save) Start(ctx context.Context) {
	s.guard.Check()
	slog.Info("sync starting", "account_id", s.cfg.AccountID)
	s.start(ctx)
}

// OnFetchFailed records the first failed fetch so WaitCaughtUp can return.
func (s *Save) OnFetchFailed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr == nil {
		s.fetchErr = err
		close(s.failed)
	}
}

// WaitCaughtUp blocks until the stream reports no further events, a fetch
// fails, or ctx is done. A failed fetch is not retried by the session; the
// host decides whether to try again.
func (s *Save) WaitCaughtUp(ctx context.Context) error {
	select {
	case <-s.sync.CaughtUp():
		return nil
	case <-s.failed:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.fetchErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Checkpoint returns the stored checkpoint for the account.
// Not valid after Dispose.
func (s *Save) Checkpoint() (ir.EventID, bool, error) {
	return s.checkpoints.Get(s.cfg.AccountID)
}

// Dispose stops the run and releases every component. Panics if called
// twice.
func (s *Save) Dispose() error {
	s.guard.Dispose()
	s.stop()
	last := s.sync.Checkpoint()
	s.pump.Dispose()
	s.registry.Dispose()
	slog.Info("sync stopped",
		"account_id", s.cfg.AccountID,
		"checkpoint", last.String(),
	)
	return errors.Join(s.local.Close(), s.checkpoints.Close())
}
