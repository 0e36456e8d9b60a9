package testutil

import (
	"sync"

	"github.com/roach88/pushsync/internal/ir"
)

// Recorder implements every listener interface and records what it saw.
type Recorder struct {
	mu            sync.Mutex
	batches       []ir.EventBatch
	fetchFailures []error
	eventFailures []ir.EventFailure
	alerts        []ir.Summary
}

// OnBatchFetched implements stream.BatchListener.
func (r *Recorder) OnBatchFetched(b ir.EventBatch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, b)
}

// OnFetchFailed implements stream.FetchFailureListener.
func (r *Recorder) OnFetchFailed(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchFailures = append(r.fetchFailures, err)
}

// OnEventFailed implements stream.EventFailureListener.
func (r *Recorder) OnEventFailed(f ir.EventFailure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eventFailures = append(r.eventFailures, f)
}

// OnSingleAlertReady implements alert.Listener.
func (r *Recorder) OnSingleAlertReady(s ir.Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, s)
}

func (r *Recorder) Batches() []ir.EventBatch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ir.EventBatch(nil), r.batches...)
}

func (r *Recorder) FetchFailures() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.fetchFailures...)
}

func (r *Recorder) EventFailures() []ir.EventFailure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ir.EventFailure(nil), r.eventFailures...)
}

func (r *Recorder) Alerts() []ir.Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ir.Summary(nil), r.alerts...)
}
