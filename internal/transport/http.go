// Package transport sends generated requests to the notification server.
//
// HTTP runs each accepted request on its own goroutine and posts the
// completion back onto the account's loop. When a caller stopped at
// capacity, because its enqueue was refused or took the last slot, the next
// freed slot publishes a wake so the pump drains again. A completion alone does not wake anyone: a failed fetch must not
// turn into a retry loop.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/roach88/pushsync/internal/ir"
	"github.com/roach88/pushsync/internal/metrics"
	"github.com/roach88/pushsync/internal/runloop"
)

// DefaultCapacity is the in-flight limit when none is configured.
const DefaultCapacity = 4

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 16 << 20

// Waker is told when a slot frees up.
type Waker interface {
	Publish()
}

// StatusError reports a non-2xx response. Body holds what the server sent.
type StatusError struct {
	StatusCode int
	Method     string
	Path       string
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
}

// IsStatusError reports whether err carries a StatusError, returning it.
func IsStatusError(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// HTTP is a capacity-limited pump.Transport over net/http.
type HTTP struct {
	base     *url.URL
	token    string
	client   *http.Client
	loop     *runloop.Loop
	waker    Waker
	metrics  *metrics.Metrics
	capacity int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	inFlight int
	// starved is set when TryEnqueue turned a caller away at capacity.
	starved bool
}

// Option configures an HTTP transport.
type Option func(*HTTP)

// WithCapacity sets the in-flight limit. Values below one are ignored.
func WithCapacity(n int) Option {
	return func(t *HTTP) {
		if n > 0 {
			t.capacity = n
		}
	}
}

// WithClient replaces the default http.Client.
func WithClient(c *http.Client) Option {
	return func(t *HTTP) {
		t.client = c
	}
}

// WithToken sets the bearer access token.
func WithToken(token string) Option {
	return func(t *HTTP) {
		t.token = token
	}
}

// WithMetrics records the in-flight gauge.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *HTTP) {
		t.metrics = m
	}
}

// New creates a transport for baseURL. Completions run on loop; waker is
// published when a slot frees after a refused enqueue.
func New(baseURL string, loop *runloop.Loop, waker Waker, opts ...Option) (*HTTP, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q: scheme and host required", baseURL)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &HTTP{
		base:     base,
		client:   &http.Client{Timeout: 60 * time.Second},
		loop:     loop,
		waker:    waker,
		capacity: DefaultCapacity,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// TryEnqueue implements pump.Transport. next is called only when a slot is
// free.
func (t *HTTP) TryEnqueue(next func() *ir.Request) ir.EnqueueResult {
	t.mu.Lock()
	if t.ctx.Err() != nil {
		t.mu.Unlock()
		return ir.EnqueueResult{}
	}
	if t.inFlight >= t.capacity {
		t.starved = true
		t.mu.Unlock()
		return ir.EnqueueResult{}
	}
	t.mu.Unlock()

	// next runs outside the lock; it may take the generator's own locks.
	req := next()
	if req == nil {
		return ir.EnqueueResult{UnderCapacity: true}
	}

	t.mu.Lock()
	t.inFlight++
	n := t.inFlight
	under := n < t.capacity
	if !under {
		// The caller stops draining here and waits for a freed slot.
		t.starved = true
	}
	t.mu.Unlock()
	t.metrics.InFlight(n)

	t.wg.Add(1)
	go t.send(req)
	return ir.EnqueueResult{ProducedRequest: true, UnderCapacity: under}
}

// InFlight returns the number of requests awaiting completion.
func (t *HTTP) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inFlight
}

func (t *HTTP) send(req *ir.Request) {
	defer t.wg.Done()
	resp := t.do(req)
	if resp.Err != nil {
		slog.Debug("request failed",
			"kind", req.Kind,
			"path", req.Path,
			"status", resp.StatusCode,
			"error", resp.Err,
		)
	}
	posted := t.loop.Post(func(ctx context.Context) {
		wake := t.release()
		if req.Complete != nil {
			req.Complete(ctx, resp)
		}
		if wake {
			t.waker.Publish()
		}
	})
	if !posted {
		t.release()
		slog.Debug("completion dropped: loop stopped", "kind", req.Kind, "path", req.Path)
	}
}

// release frees a slot and reports whether a caller stopped at capacity
// is waiting for one.
func (t *HTTP) release() bool {
	t.mu.Lock()
	t.inFlight--
	n := t.inFlight
	wake := t.starved
	t.starved = false
	t.mu.Unlock()
	t.metrics.InFlight(n)
	return wake
}

func (t *HTTP) do(req *ir.Request) ir.Response {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	// Generator paths are already escaped; JoinPath keeps that escaping.
	u := t.base.JoinPath(req.Path)
	u.RawQuery = req.Query.Encode()

	httpReq, err := http.NewRequestWithContext(t.ctx, method, u.String(), nil)
	if err != nil {
		return ir.Response{Err: fmt.Errorf("build request: %w", err)}
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "pushsync/"+ir.EngineVersion)
	if t.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.token)
	}

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return ir.Response{Err: fmt.Errorf("%s %s: %w", method, req.Path, err)}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return ir.Response{StatusCode: httpResp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	resp := ir.Response{StatusCode: httpResp.StatusCode, Body: body}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		resp.Err = &StatusError{
			StatusCode: httpResp.StatusCode,
			Method:     method,
			Path:       req.Path,
			Body:       body,
		}
	}
	return resp
}

// Close cancels outstanding requests and waits for their goroutines.
// Completions of cancelled requests are still posted to the loop if it runs.
func (t *HTTP) Close() {
	t.cancel()
	t.wg.Wait()
}
