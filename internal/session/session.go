// Package session wires the engine together for one account and one run.
//
// A Save session pulls the notification stream into the local store. An
// Alert session fetches one event and renders it. Each owns its loop, wake
// bus, registry, pump and transport, and releases all of them in a single
// Dispose.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/roach88/pushsync/internal/config"
	"github.com/roach88/pushsync/internal/crypto"
	"github.com/roach88/pushsync/internal/ir"
	"github.com/roach88/pushsync/internal/metrics"
	"github.com/roach88/pushsync/internal/runloop"
	"github.com/roach88/pushsync/internal/transport"
	"github.com/roach88/pushsync/internal/wake"
)

// Decrypter is the decrypt step shared by both sessions.
type Decrypter interface {
	Decrypt(ctx context.Context, events []ir.UpdateEvent) []ir.UpdateEvent
}

// core is the scheduling machinery both sessions share.
type core struct {
	cfg       config.Config
	loop      *runloop.Loop
	bus       *wake.Bus
	transport *transport.HTTP
	metrics   *metrics.Metrics

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func newCore(cfg config.Config) (*core, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	loop := runloop.New()
	bus := wake.NewBus()
	m := metrics.New(cfg.AccountID)
	tr, err := transport.New(cfg.BaseURL, loop, bus,
		transport.WithToken(cfg.AccessToken),
		transport.WithCapacity(cfg.MaxInFlight),
		transport.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}
	return &core{
		cfg:       cfg,
		loop:      loop,
		bus:       bus,
		transport: tr,
		metrics:   m,
		done:      make(chan struct{}),
	}, nil
}

// start drives the loop on its own goroutine and publishes the first wake.
func (r *core) start(ctx context.Context) {
	r.once.Do(func() {
		ctx, r.cancel = context.WithCancel(ctx)
		go func() {
			defer close(r.done)
			_ = r.loop.Run(ctx)
		}()
		r.bus.Publish()
	})
}

// stop halts the loop, waits for it, then cancels outstanding requests.
// After stop nothing else runs on the loop.
func (r *core) stop() {
	r.loop.Stop()
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
	r.transport.Close()
	if err := r.metrics.WriteFile(r.cfg.MetricsFile); err != nil {
		slog.Warn("metrics not written", "path", r.cfg.MetricsFile, "error", err)
	}
}

// newDecrypter opens the account key, or passes plaintext through when no
// key file is configured.
func newDecrypter(cfg config.Config) (Decrypter, error) {
	if cfg.KeyFile == "" {
		return crypto.Plaintext{}, nil
	}
	key, err := crypto.LoadKey(cfg.KeyFile)
	if err != nil {
		return nil, err
	}
	return crypto.New(key)
}

// Metrics returns the session's metrics.
func (r *core) Metrics() *metrics.Metrics {
	return r.metrics
}
