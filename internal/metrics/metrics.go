// Package metrics exposes Prometheus instruments for one sync run.
//
// A run is short-lived, so nothing is served over HTTP. Hosts either gather
// the registry directly or dump it to a node-exporter textfile with
// WriteFile when the run ends.
//
// All methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/pushsync/internal/ir"
)

const namespace = "pushsync"

// Metrics holds the instruments for one account's scheduler.
type Metrics struct {
	registry *prometheus.Registry

	drainPasses     prometheus.Counter
	enqueueAttempts prometheus.Counter
	requestsFlight  prometheus.Gauge
	batches         prometheus.Counter
	fetchFailures   prometheus.Counter
	eventsApplied   *prometheus.CounterVec
	eventFailures   *prometheus.CounterVec
	checkpoints     prometheus.Counter
	eventDuration   prometheus.Histogram
	alerts          *prometheus.CounterVec
}

// New creates a Metrics with its own registry, labelled with the account.
func New(accountID string) *Metrics {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"account_id": accountID}

	m := &Metrics{
		registry: reg,
		drainPasses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pump", Name: "drain_passes_total",
			Help: "Drain passes executed by the request pump.", ConstLabels: labels,
		}),
		enqueueAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pump", Name: "enqueue_attempts_total",
			Help: "Calls into the transport enqueue boundary.", ConstLabels: labels,
		}),
		requestsFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "transport", Name: "requests_in_flight",
			Help: "Requests handed to the transport and not yet completed.", ConstLabels: labels,
		}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "stream", Name: "batches_total",
			Help: "Notification pages received.", ConstLabels: labels,
		}),
		fetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "stream", Name: "fetch_failures_total",
			Help: "Notification page fetches that failed.", ConstLabels: labels,
		}),
		eventsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "stream", Name: "events_applied_total",
			Help: "Events committed to the local store, by kind.", ConstLabels: labels,
		}, []string{"kind"}),
		eventFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "stream", Name: "event_failures_total",
			Help: "Events that did not take full effect, by pipeline stage.", ConstLabels: labels,
		}, []string{"stage"}),
		checkpoints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "stream", Name: "checkpoint_writes_total",
			Help: "Checkpoint writes.", ConstLabels: labels,
		}),
		eventDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "stream", Name: "event_duration_seconds",
			Help:        "Time to run one event through decrypt, apply, commit, checkpoint and recycle.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "alert", Name: "outcomes_total",
			Help: "Single-event alert outcomes.", ConstLabels: labels,
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.drainPasses, m.enqueueAttempts, m.requestsFlight,
		m.batches, m.fetchFailures, m.eventsApplied, m.eventFailures,
		m.checkpoints, m.eventDuration, m.alerts,
	)
	return m
}

// Registry returns the underlying registry, or nil for a nil Metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) DrainPass() {
	if m != nil {
		m.drainPasses.Inc()
	}
}

func (m *Metrics) EnqueueAttempt() {
	if m != nil {
		m.enqueueAttempts.Inc()
	}
}

// InFlight sets the transport in-flight gauge.
func (m *Metrics) InFlight(n int) {
	if m != nil {
		m.requestsFlight.Set(float64(n))
	}
}

func (m *Metrics) BatchFetched() {
	if m != nil {
		m.batches.Inc()
	}
}

func (m *Metrics) FetchFailed() {
	if m != nil {
		m.fetchFailures.Inc()
	}
}

func (m *Metrics) EventApplied(kind ir.Kind) {
	if m != nil {
		m.eventsApplied.WithLabelValues(string(kind)).Inc()
	}
}

func (m *Metrics) EventFailed(stage ir.FailureStage) {
	if m != nil {
		m.eventFailures.WithLabelValues(string(stage)).Inc()
	}
}

func (m *Metrics) CheckpointWritten() {
	if m != nil {
		m.checkpoints.Inc()
	}
}

// ObserveEvent records the duration of one event's full pipeline pass.
func (m *Metrics) ObserveEvent(d time.Duration) {
	if m != nil {
		m.eventDuration.Observe(d.Seconds())
	}
}

// Alert outcomes.
const (
	AlertDelivered = "delivered"
	AlertSelf      = "self"
	AlertFailed    = "failed"
	AlertDropped   = "dropped"
)

func (m *Metrics) Alert(outcome string) {
	if m != nil {
		m.alerts.WithLabelValues(outcome).Inc()
	}
}

// WriteFile writes the registry in text exposition format to path,
// atomically, for collection by a node-exporter textfile collector.
func (m *Metrics) WriteFile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}
