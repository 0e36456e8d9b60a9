// Package alert implements the single-shot, single-event fetch that turns
// one pushed event into a display summary.
//
// A Strategy yields exactly one fetch-by-id request. Whatever the outcome,
// it then yields nothing for the rest of its life. It never writes the
// checkpoint or runs the local appliers; the only store access is read-only
// name lookups while rendering.
package alert

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/roach88/pushsync/internal/ir"
	"github.com/roach88/pushsync/internal/lifecycle"
	"github.com/roach88/pushsync/internal/metrics"
	"github.com/roach88/pushsync/internal/registry"
)

// Decrypter turns fetched events into plaintext, omitting failures.
type Decrypter interface {
	Decrypt(ctx context.Context, events []ir.UpdateEvent) []ir.UpdateEvent
}

// Listener receives the rendered summary.
type Listener interface {
	OnSingleAlertReady(summary ir.Summary)
}

// Config identifies the event to fetch and the local account holder.
type Config struct {
	// SelfID is the account holder's user ID. Events they sent are not shown.
	SelfID   string
	ClientID string
	EventID  ir.EventID
	// ConversationHint, when set, lets the server look the event up in a
	// large conversation without scanning the whole stream.
	ConversationHint string
}

// Strategy is the single-event alert pipeline.
type Strategy struct {
	cfg       Config
	decrypter Decrypter
	lookup    Lookup
	listener  Listener
	metrics   *metrics.Metrics
	onFinish  func()

	requested bool
	finished  bool
	guard     *lifecycle.Guard
}

// Option configures a Strategy.
type Option func(*Strategy)

// WithMetrics records alert outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Strategy) {
		s.metrics = m
	}
}

// OnFinished registers fn to run once the response has been handled,
// whatever the outcome.
func OnFinished(fn func()) Option {
	return func(s *Strategy) {
		s.onFinish = fn
	}
}

// New creates a strategy for cfg.EventID. lookup may be nil, in which case
// summaries fall back to IDs for names.
func New(cfg Config, decrypter Decrypter, lookup Lookup, listener Listener, opts ...Option) *Strategy {
	if lookup == nil {
		lookup = noLookup{}
	}
	s := &Strategy{
		cfg:       cfg,
		decrypter: decrypter,
		lookup:    lookup,
		listener:  listener,
		guard:     lifecycle.NewGuard("alert"),
	}
	for _, opt := range opts {
		opt(s)
	}
	lifecycle.Track(s, s.guard)
	return s
}

// Generator returns the single-shot generator, so a Strategy can be
// registered with registry.Own.
func (s *Strategy) Generator() registry.Generator {
	return registry.GeneratorFunc(s.NextRequest)
}

// Finished reports whether the response has been handled.
func (s *Strategy) Finished() bool {
	return s.finished
}

// NextRequest yields the fetch-by-id request on the first call and nil
// on every later call.
func (s *Strategy) NextRequest() *ir.Request {
	s.guard.Check()
	if s.requested {
		return nil
	}
	s.requested = true

	query := url.Values{}
	if s.cfg.ClientID != "" {
		query.Set("client", s.cfg.ClientID)
	}
	if s.cfg.ConversationHint != "" {
		query.Set("cid", s.cfg.ConversationHint)
	}
	slog.Debug("requesting single notification", "event_id", s.cfg.EventID.String())
	return &ir.Request{
		Kind:     ir.RequestSingleNotification,
		Method:   http.MethodGet,
		Path:     "/notifications/" + url.PathEscape(s.cfg.EventID.String()),
		Query:    query,
		Complete: s.complete,
	}
}

func (s *Strategy) complete(ctx context.Context, resp ir.Response) {
	if s.guard.Disposed() {
		return
	}
	s.finished = true
	if s.onFinish != nil {
		defer s.onFinish()
	}

	if !resp.OK() {
		slog.Warn("single notification fetch failed",
			"event_id", s.cfg.EventID.String(),
			"status", resp.StatusCode,
			"error", resp.Err,
		)
		s.metrics.Alert(metrics.AlertFailed)
		return
	}
	ev, err := ir.DecodeNotification(resp.Body)
	if err != nil {
		slog.Warn("single notification undecodable",
			"event_id", s.cfg.EventID.String(),
			"error", err,
		)
		s.metrics.Alert(metrics.AlertFailed)
		return
	}

	decrypted := s.decrypter.Decrypt(ctx, []ir.UpdateEvent{ev})
	if len(decrypted) == 0 {
		slog.Warn("single notification failed to decrypt", "event_id", ev.ID.String())
		s.metrics.Alert(metrics.AlertDropped)
		return
	}
	ev = decrypted[0]

	if s.cfg.SelfID != "" && ev.SenderID == s.cfg.SelfID {
		slog.Debug("suppressing self-sent event", "event_id", ev.ID.String())
		s.metrics.Alert(metrics.AlertSelf)
		return
	}

	summary := Render(ctx, ev, s.cfg.SelfID, s.lookup)
	slog.Info("single alert ready",
		"event_id", ev.ID.String(),
		"kind", string(ev.Kind),
		"category", summary.Category,
		"empty", summary.IsInvalid(),
	)
	s.metrics.Alert(metrics.AlertDelivered)
	s.listener.OnSingleAlertReady(summary)
}

// Dispose releases the collaborators. Panics if called twice.
func (s *Strategy) Dispose() {
	s.guard.Dispose()
	s.decrypter = nil
	s.lookup = nil
	s.listener = nil
}
