// Package harness runs YAML scenarios against the stream pipeline.
//
// A scenario scripts the server: the pages it returns, in order, and which
// events fail to decrypt or commit. The harness drives a real pump, registry,
// gate and SQLite store through an in-memory transport and records every
// pipeline step as a trace.
//
// # Scenario Format
//
//	name: commit_failure_halt
//	description: "A failed commit is refetched under the halt policy"
//	policy: halt
//	fail_commit: [2]
//	pages:
//	  - has_more: false
//	    events:
//	      - seq: 1
//	        kind: user.update
//	        sender: u1
//	        body: { id: u1, name: Ada }
//	  - status: 503
//	assertions:
//	  - type: checkpoint
//	    event: 1
//	  - type: trace_order
//	    actions: ["apply:1", "commit:1", "checkpoint:1"]
//
// Events are named by sequence number; seq n maps to a fixed time-ordered
// ID, so traces are identical on every run.
//
// # Trace
//
// Each step is a TraceEvent. Its label is the type, or type:seq when it
// concerns one event (apply:2, commit:2, checkpoint:2, recycle:2, failed:2).
// A request is labelled with the seq it fetches since.
//
// # Assertion Types
//
//   - trace_contains: a label appears in the trace
//   - trace_order: labels appear in the given order
//   - trace_count: a label appears exactly N times
//   - checkpoint: the stored checkpoint is the given seq (0 for none)
//   - caught_up: whether a final page was applied
//   - failures: N event failures at a stage
//   - pending: N requests left in flight
//   - final_state: a local table holds exactly the given rows
package harness
