package harness

import "strconv"

// TraceEvent is one recorded pipeline step.
type TraceEvent struct {
	Type   string `json:"type"`
	Event  int    `json:"event,omitempty"`
	Kind   string `json:"kind,omitempty"`
	Detail string `json:"detail,omitempty"`
	Seq    int64  `json:"seq"`
}

// Label is how assertions name the step: the type, or type:event.
func (e TraceEvent) Label() string {
	if e.Event == 0 {
		return e.Type
	}
	return e.Type + ":" + strconv.Itoa(e.Event)
}

// Trace event types.
const (
	TraceRequest     = "request"
	TraceBatch       = "batch"
	TraceFetchFailed = "fetch_failed"
	TraceApply       = "apply"
	TraceCommit      = "commit"
	TraceCheckpoint  = "checkpoint"
	TraceRecycle     = "recycle"
	TraceFailed      = "failed"
)

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	// Checkpoint is the seq of the stored checkpoint, 0 when none.
	Checkpoint int `json:"checkpoint"`

	CaughtUp bool `json:"caught_up"`

	// Pending counts requests still in flight when the pages ran out.
	Pending int `json:"pending"`

	// Failures counts event failures by stage.
	Failures map[string]int `json:"failures,omitempty"`

	// State holds the local tables as sorted pipe-separated rows.
	State map[string][]string `json:"state,omitempty"`
}

// NewResult creates a passing result with an empty trace.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
		Failures: make(map[string]int),
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) add(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}
