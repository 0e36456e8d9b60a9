package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/pebble/vfs"

	"github.com/roach88/pushsync/internal/checkpoint"
	"github.com/roach88/pushsync/internal/crypto"
	"github.com/roach88/pushsync/internal/ir"
	"github.com/roach88/pushsync/internal/pump"
	"github.com/roach88/pushsync/internal/registry"
	"github.com/roach88/pushsync/internal/runloop"
	"github.com/roach88/pushsync/internal/store"
	"github.com/roach88/pushsync/internal/stream"
	"github.com/roach88/pushsync/internal/testutil"
	"github.com/roach88/pushsync/internal/wake"
)

// account is the account every scenario runs as.
const account = "harness"

// errInjectedCommit is the failure injected for fail_commit events.
var errInjectedCommit = errors.New("injected commit failure")

// Run executes a scenario and checks its assertions.
//
// The returned error covers setup problems only; a scenario that runs but
// fails an assertion returns a Result with Pass false.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()
	ids := newIDMap()
	res := NewResult()

	dir, err := os.MkdirTemp("", "pushsync-harness-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	local, err := store.OpenContext(filepath.Join(dir, "local.db"))
	if err != nil {
		return nil, err
	}
	defer local.Close()

	cps, err := checkpoint.Open(checkpoint.Options{Dir: "checkpoints", FS: vfs.NewMem()})
	if err != nil {
		return nil, err
	}
	defer cps.Close()
	if scenario.Checkpoint > 0 {
		if err := cps.Set(account, ids.id(scenario.Checkpoint)); err != nil {
			return nil, err
		}
	}

	policy, err := stream.ParsePolicy(scenario.Policy)
	if err != nil {
		return nil, err
	}
	capacity := scenario.Capacity
	if capacity == 0 {
		capacity = 1
	}

	rec := &recorder{res: res, ids: ids}
	failCommit := make(map[ir.EventID]bool)
	for _, seq := range scenario.FailCommit {
		failCommit[ids.id(seq)] = true
	}
	dropped := make(map[ir.EventID]bool)
	for _, seq := range scenario.FailDecrypt {
		dropped[ids.id(seq)] = true
	}

	loop := runloop.New()
	bus := wake.NewBus()
	fake := testutil.NewFakeTransport(capacity)

	sync := stream.New(
		stream.Config{Account: account, ClientID: "harness-client", PageSize: scenario.PageSize},
		stream.Deps{
			Decrypter:   &tracedDecrypter{drop: dropped},
			Store:       &tracedStore{inner: local, rec: rec, failCommit: failCommit},
			Checkpoints: &tracedCheckpoints{inner: cps, rec: rec},
			Waker:       bus,
		},
		stream.WithPolicy(policy),
		stream.WithBatchListener(rec),
		stream.WithFetchFailureListener(rec),
		stream.WithEventFailureListener(rec),
	)
	reg := registry.New(registry.Own(sync))
	defer reg.Dispose()
	p := pump.New(loop, reg, &tracedTransport{inner: fake, rec: rec}, bus)
	defer p.Dispose()

	bus.Publish()
	loop.RunPending(ctx)

	for i, page := range scenario.Pages {
		if len(fake.Pending()) == 0 {
			res.AddError(fmt.Sprintf("pages[%d]: no request pending", i))
			break
		}
		resp, err := page.response(ids)
		if err != nil {
			return nil, fmt.Errorf("pages[%d]: %w", i, err)
		}
		fake.CompleteNext(resp)
		loop.RunPending(ctx)
	}

	res.Pending = len(fake.Pending())
	select {
	case <-sync.CaughtUp():
		res.CaughtUp = true
	default:
	}
	last, ok, err := cps.Get(account)
	if err != nil {
		return nil, err
	}
	if ok {
		res.Checkpoint = ids.seq(last)
	}
	if res.State, err = local.Store().Dump(ctx); err != nil {
		return nil, err
	}

	checkAssertions(scenario.Assertions, res)
	return res, nil
}

// idMap assigns each seq a fixed time-ordered event ID.
type idMap struct {
	seqs map[ir.EventID]int
}

func newIDMap() *idMap {
	return &idMap{seqs: make(map[ir.EventID]int)}
}

func (m *idMap) id(seq int) ir.EventID {
	id := testutil.EventIDAt(uint64(seq))
	m.seqs[id] = seq
	return id
}

// seq returns the seq for id, or -1 for an ID no scenario event carries.
func (m *idMap) seq(id ir.EventID) int {
	if n, ok := m.seqs[id]; ok {
		return n
	}
	return -1
}

// recorder turns listener callbacks into trace steps.
type recorder struct {
	res *Result
	ids *idMap
}

func (r *recorder) add(ev TraceEvent) {
	r.res.add(ev)
}

func (r *recorder) OnBatchFetched(b ir.EventBatch) {
	r.add(TraceEvent{
		Type:   TraceBatch,
		Detail: fmt.Sprintf("events=%d has_more=%t", b.Len(), b.HasMore),
	})
}

func (r *recorder) OnFetchFailed(err error) {
	ev := TraceEvent{Type: TraceFetchFailed}
	var fe *stream.FetchError
	if errors.As(err, &fe) && fe.StatusCode != 0 {
		ev.Detail = fmt.Sprintf("status=%d", fe.StatusCode)
	}
	r.add(ev)
}

func (r *recorder) OnEventFailed(f ir.EventFailure) {
	r.res.Failures[string(f.Stage)]++
	r.add(TraceEvent{Type: TraceFailed, Event: r.ids.seq(f.EventID), Detail: string(f.Stage)})
}

// tracedTransport records every request the pump hands over.
type tracedTransport struct {
	inner *testutil.FakeTransport
	rec   *recorder
}

func (t *tracedTransport) TryEnqueue(next func() *ir.Request) ir.EnqueueResult {
	return t.inner.TryEnqueue(func() *ir.Request {
		req := next()
		if req != nil {
			ev := TraceEvent{Type: TraceRequest}
			if since := req.Query.Get("since"); since != "" {
				ev.Event = t.rec.ids.seq(ir.EventID(since))
			}
			t.rec.add(ev)
		}
		return req
	})
}

// tracedStore records apply, commit and recycle, and injects one-shot
// commit failures.
type tracedStore struct {
	inner      stream.LocalStore
	rec        *recorder
	failCommit map[ir.EventID]bool
	current    ir.EventID
}

func (s *tracedStore) Apply(ctx context.Context, ev ir.UpdateEvent) (bool, error) {
	s.current = ev.ID
	handled, err := s.inner.Apply(ctx, ev)
	step := TraceEvent{Type: TraceApply, Event: s.rec.ids.seq(ev.ID), Kind: string(ev.Kind)}
	switch {
	case err != nil:
		step.Detail = "failed"
	case !handled:
		step.Detail = "unhandled"
	}
	s.rec.add(step)
	return handled, err
}

func (s *tracedStore) Commit(ctx context.Context) error {
	step := TraceEvent{Type: TraceCommit, Event: s.rec.ids.seq(s.current)}
	var err error
	if s.failCommit[s.current] {
		delete(s.failCommit, s.current)
		err = errInjectedCommit
	} else {
		err = s.inner.Commit(ctx)
	}
	if err != nil {
		step.Detail = "failed"
	}
	s.rec.add(step)
	return err
}

func (s *tracedStore) Recycle(ctx context.Context) error {
	s.rec.add(TraceEvent{Type: TraceRecycle, Event: s.rec.ids.seq(s.current)})
	return s.inner.Recycle(ctx)
}

// tracedCheckpoints records every checkpoint write.
type tracedCheckpoints struct {
	inner stream.Checkpoints
	rec   *recorder
}

func (c *tracedCheckpoints) Get(account string) (ir.EventID, bool, error) {
	return c.inner.Get(account)
}

func (c *tracedCheckpoints) Set(account string, id ir.EventID) error {
	if err := c.inner.Set(account, id); err != nil {
		return err
	}
	c.rec.add(TraceEvent{Type: TraceCheckpoint, Event: c.rec.ids.seq(id)})
	return nil
}

// tracedDecrypter passes plaintext through and drops listed events.
type tracedDecrypter struct {
	drop map[ir.EventID]bool
}

func (d *tracedDecrypter) Decrypt(ctx context.Context, events []ir.UpdateEvent) []ir.UpdateEvent {
	kept := make([]ir.UpdateEvent, 0, len(events))
	for _, ev := range events {
		if !d.drop[ev.ID] {
			kept = append(kept, ev)
		}
	}
	return crypto.Plaintext{}.Decrypt(ctx, kept)
}
