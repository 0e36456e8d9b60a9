package stream

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/roach88/pushsync/internal/ir"
	"github.com/roach88/pushsync/internal/lifecycle"
	"github.com/roach88/pushsync/internal/metrics"
	"github.com/roach88/pushsync/internal/registry"
)

// DefaultPageSize is the page size requested when Config.PageSize is zero.
const DefaultPageSize = 500

// NotificationsPath is the page endpoint.
const NotificationsPath = "/notifications"

// Config identifies the account a Sync serves.
type Config struct {
	Account  string
	ClientID string
	PageSize int
}

// Deps are the collaborators a Sync drives.
type Deps struct {
	Decrypter   Decrypter
	Store       LocalStore
	Checkpoints Checkpoints
	Waker       Waker
}

// Sync is the notification stream source and its application pipeline.
type Sync struct {
	cfg  Config
	deps Deps
	gate Gate

	policy         Policy
	batchListeners []BatchListener
	fetchListeners []FetchFailureListener
	eventListeners []EventFailureListener
	metrics        *metrics.Metrics

	// last is the checkpoint as this Sync last read or wrote it.
	last     ir.EventID
	loaded   bool
	caughtUp chan struct{}
	guard    *lifecycle.Guard
}

// Option configures a Sync.
type Option func(*Sync)

// WithPolicy sets the commit failure policy. Default: PolicyAdvance.
func WithPolicy(p Policy) Option {
	return func(s *Sync) {
		s.policy = p
	}
}

// WithBatchListener adds a listener for fetched pages.
func WithBatchListener(l BatchListener) Option {
	return func(s *Sync) {
		s.batchListeners = append(s.batchListeners, l)
	}
}

// WithFetchFailureListener adds a listener for failed fetches.
func WithFetchFailureListener(l FetchFailureListener) Option {
	return func(s *Sync) {
		s.fetchListeners = append(s.fetchListeners, l)
	}
}

// WithEventFailureListener adds a listener for failed events.
func WithEventFailureListener(l EventFailureListener) Option {
	return func(s *Sync) {
		s.eventListeners = append(s.eventListeners, l)
	}
}

// WithMetrics records batch and event outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sync) {
		s.metrics = m
	}
}

// New creates a Sync with its gate Ready.
func New(cfg Config, deps Deps, opts ...Option) *Sync {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	s := &Sync{
		cfg:      cfg,
		deps:     deps,
		policy:   PolicyAdvance,
		caughtUp: make(chan struct{}),
		guard:    lifecycle.NewGuard("stream"),
	}
	for _, opt := range opts {
		opt(s)
	}
	lifecycle.Track(s, s.guard)
	return s
}

// Generator returns the page request generator. It lets a Sync be
// registered with registry.Own.
func (s *Sync) Generator() registry.Generator {
	return registry.GeneratorFunc(s.NextRequest)
}

// Gate returns the fetch gate.
func (s *Sync) Gate() *Gate {
	return &s.gate
}

// CaughtUp is closed once a page reporting no further events has been
// applied.
func (s *Sync) CaughtUp() <-chan struct{} {
	return s.caughtUp
}

// Checkpoint returns the last checkpoint this Sync read or wrote.
func (s *Sync) Checkpoint() ir.EventID {
	return s.last
}

// NextRequest yields the next-page request if the gate is Ready, and nil
// otherwise. Producing a request closes the gate.
func (s *Sync) NextRequest() *ir.Request {
	s.guard.Check()
	if !s.gate.Ready() {
		return nil
	}
	if err := s.loadCheckpoint(); err != nil {
		slog.Error("checkpoint read failed; not fetching",
			"account_id", s.cfg.Account,
			"error", err,
		)
		return nil
	}

	since := s.last
	query := url.Values{}
	query.Set("size", strconv.Itoa(s.cfg.PageSize))
	if s.cfg.ClientID != "" {
		query.Set("client", s.cfg.ClientID)
	}
	if !since.IsZero() {
		query.Set("since", since.String())
	}

	s.gate.beginFetch()
	slog.Debug("requesting notification page",
		"account_id", s.cfg.Account,
		"since", since.String(),
	)
	return &ir.Request{
		Kind:   ir.RequestNotificationPage,
		Method: http.MethodGet,
		Path:   NotificationsPath,
		Query:  query,
		Complete: func(ctx context.Context, resp ir.Response) {
			s.complete(ctx, since, resp)
		},
	}
}

func (s *Sync) loadCheckpoint() error {
	if s.loaded {
		return nil
	}
	id, ok, err := s.deps.Checkpoints.Get(s.cfg.Account)
	if err != nil {
		return err
	}
	if ok {
		s.last = id
	}
	s.loaded = true
	return nil
}

// complete handles the outcome of a page request.
func (s *Sync) complete(ctx context.Context, since ir.EventID, resp ir.Response) {
	if s.guard.Disposed() {
		slog.Debug("dropping page response after dispose", "account_id", s.cfg.Account)
		return
	}

	// A 404 with a body means the server no longer has the since event and
	// returned what it has. The page is still applied.
	gap := resp.StatusCode == http.StatusNotFound && !since.IsZero() && len(resp.Body) > 0
	if !resp.OK() && !gap {
		s.fetchFailed(&FetchError{StatusCode: resp.StatusCode, Since: since, Err: resp.Err})
		return
	}

	batch, err := ir.DecodePage(resp.Body)
	if err != nil {
		s.fetchFailed(&FetchError{StatusCode: resp.StatusCode, Since: since, Err: err})
		return
	}
	if gap {
		slog.Warn("notification stream gap; applying returned page",
			"account_id", s.cfg.Account,
			"since", since.String(),
			"events", batch.Len(),
		)
	}

	s.gate.beginApply()
	s.metrics.BatchFetched()
	for _, l := range s.batchListeners {
		l.OnBatchFetched(batch)
	}
	s.applyBatch(ctx, batch)
}

func (s *Sync) fetchFailed(err *FetchError) {
	slog.Warn("notification page fetch failed",
		"account_id", s.cfg.Account,
		"error", err,
	)
	s.gate.fetchFailed()
	s.metrics.FetchFailed()
	for _, l := range s.fetchListeners {
		l.OnFetchFailed(err)
	}
}

// applyBatch runs every event through the pipeline, then reopens the gate.
func (s *Sync) applyBatch(ctx context.Context, batch ir.EventBatch) {
	slog.Debug("applying batch",
		"account_id", s.cfg.Account,
		"events", batch.Len(),
		"has_more", batch.HasMore,
	)

	start := s.last
	for _, ev := range batch.Events {
		if ctx.Err() != nil {
			slog.Info("batch interrupted",
				"account_id", s.cfg.Account,
				"event_id", ev.ID.String(),
				"error", ctx.Err(),
			)
			s.gate.finishApply()
			return
		}
		if halt := s.processEvent(ctx, ev); halt {
			slog.Warn("batch halted; event will be refetched",
				"account_id", s.cfg.Account,
				"event_id", ev.ID.String(),
			)
			s.gate.finishApply()
			s.wakeIfProgressed(start)
			return
		}
	}

	s.gate.finishApply()
	if !batch.HasMore {
		s.markCaughtUp()
	}
	s.wakeIfProgressed(start)
}

// wakeIfProgressed publishes a wake when the checkpoint moved past start.
// A batch that moved nothing would be refetched unchanged, so the retry
// waits for the host's next wake instead.
func (s *Sync) wakeIfProgressed(start ir.EventID) {
	if s.last == start {
		slog.Debug("batch made no progress; waiting for next wake",
			"account_id", s.cfg.Account,
			"checkpoint", start.String(),
		)
		return
	}
	s.deps.Waker.Publish()
}

func (s *Sync) markCaughtUp() {
	select {
	case <-s.caughtUp:
	default:
		close(s.caughtUp)
	}
}

// processEvent runs one event through decrypt, apply, commit, checkpoint and
// recycle. It returns true when the batch must stop under PolicyHalt.
func (s *Sync) processEvent(ctx context.Context, ev ir.UpdateEvent) bool {
	start := time.Now()
	defer func() { s.metrics.ObserveEvent(time.Since(start)) }()

	decrypted := s.deps.Decrypter.Decrypt(ctx, []ir.UpdateEvent{ev})
	if len(decrypted) == 0 {
		s.eventFailed(ev, ir.StageDecrypt, nil)
		return false
	}
	plain := decrypted[0]

	handled, err := s.deps.Store.Apply(ctx, plain)
	if err != nil {
		s.eventFailed(ev, ir.StageApply, err)
	} else if err = s.deps.Store.Commit(ctx); err != nil {
		s.eventFailed(ev, ir.StageCommit, err)
	} else if handled {
		s.metrics.EventApplied(ev.Kind)
	} else {
		slog.Debug("no applier for event kind",
			"event_id", ev.ID.String(),
			"kind", string(ev.Kind),
		)
	}

	if err != nil && s.policy == PolicyHalt {
		s.recycle(ctx, ev)
		return true
	}

	s.advance(ev.ID)
	s.recycle(ctx, ev)
	return false
}

// advance persists id as the checkpoint unless it is provably older than
// the current one. Where IDs carry no issue order, delivery order wins.
func (s *Sync) advance(id ir.EventID) {
	if !s.last.IsZero() && id.Older(s.last) {
		slog.Warn("not moving checkpoint backwards",
			"account_id", s.cfg.Account,
			"event_id", id.String(),
			"checkpoint", s.last.String(),
		)
		return
	}
	if err := s.deps.Checkpoints.Set(s.cfg.Account, id); err != nil {
		slog.Error("checkpoint write failed",
			"account_id", s.cfg.Account,
			"event_id", id.String(),
			"error", err,
		)
		return
	}
	s.last = id
	s.metrics.CheckpointWritten()
}

func (s *Sync) recycle(ctx context.Context, ev ir.UpdateEvent) {
	if err := s.deps.Store.Recycle(ctx); err != nil {
		s.eventFailed(ev, ir.StageRecycle, err)
	}
}

func (s *Sync) eventFailed(ev ir.UpdateEvent, stage ir.FailureStage, cause error) {
	err := &ApplyError{Code: stageCode(stage), EventID: ev.ID, Kind: ev.Kind, Err: cause}
	slog.Warn("event failed",
		"account_id", s.cfg.Account,
		"event_id", ev.ID.String(),
		"kind", string(ev.Kind),
		"stage", string(stage),
		"error", err,
	)
	s.metrics.EventFailed(stage)
	failure := ir.EventFailure{EventID: ev.ID, Kind: ev.Kind, Stage: stage, Err: err}
	for _, l := range s.eventListeners {
		l.OnEventFailed(failure)
	}
}

// Dispose releases the collaborators. A response that arrives afterwards is
// dropped. Panics if called twice.
func (s *Sync) Dispose() {
	s.guard.Dispose()
	s.deps = Deps{}
	s.batchListeners = nil
	s.fetchListeners = nil
	s.eventListeners = nil
}
