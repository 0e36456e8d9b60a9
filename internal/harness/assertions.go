package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError describes a failed assertion with the trace for context.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s", ev.Seq, ev.Label())
			if ev.Detail != "" {
				fmt.Fprintf(&buf, " (%s)", ev.Detail)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// checkAssertions evaluates every assertion, recording failures on res.
func checkAssertions(assertions []Assertion, res *Result) {
	for _, a := range assertions {
		if err := check(a, res); err != nil {
			res.AddError(err.Error())
		}
	}
}

func check(a Assertion, res *Result) error {
	switch a.Type {
	case AssertTraceContains:
		return assertTraceContains(res.Trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(res.Trace, a)
	case AssertTraceCount:
		return assertTraceCount(res.Trace, a)
	case AssertCheckpoint:
		return expectEqual(a.Type, a.Event, res.Checkpoint, res.Trace)
	case AssertCaughtUp:
		return expectEqual(a.Type, a.Value, res.CaughtUp, res.Trace)
	case AssertPending:
		return expectEqual(a.Type, a.Count, res.Pending, res.Trace)
	case AssertFailures:
		return expectEqual(a.Type+" "+a.Stage, a.Count, res.Failures[a.Stage], res.Trace)
	case AssertFinalState:
		return assertFinalState(res.State, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func expectEqual[T comparable](kind string, want, got T, trace []TraceEvent) error {
	if want == got {
		return nil
	}
	return &AssertionError{
		Type:     kind,
		Expected: fmt.Sprint(want),
		Actual:   fmt.Sprint(got),
		Trace:    trace,
	}
}

// matches reports whether ev carries label. A bare type matches every
// event of that type.
func matches(ev TraceEvent, label string) bool {
	if strings.Contains(label, ":") {
		return ev.Label() == label
	}
	return ev.Type == label
}

func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if matches(ev, a.Action) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: a.Action,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the first occurrences of the labels appear
// in the given order. Other steps may come in between.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	positions := make([]int, len(a.Actions))
	for i, label := range a.Actions {
		positions[i] = slices.IndexFunc(trace, func(ev TraceEvent) bool { return matches(ev, label) })
		if positions[i] < 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all actions present: %v", a.Actions),
				Actual:   "missing action: " + label,
				Trace:    trace,
			}
		}
	}
	for i := 1; i < len(positions); i++ {
		if positions[i-1] >= positions[i] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", a.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					a.Actions[i-1], positions[i-1]+1, a.Actions[i], positions[i]+1),
				Trace: trace,
			}
		}
	}
	return nil
}

func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if matches(ev, a.Action) {
			count++
		}
	}
	return expectEqual(AssertTraceCount+" "+a.Action, a.Count, count, trace)
}

func assertFinalState(state map[string][]string, a Assertion) error {
	rows, ok := state[a.Table]
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: "table " + a.Table,
			Actual:   "no such table",
		}
	}
	want := a.Rows
	if want == nil {
		want = []string{}
	}
	if !slices.Equal(want, rows) {
		return &AssertionError{
			Type:     AssertFinalState + " " + a.Table,
			Expected: fmt.Sprintf("%q", want),
			Actual:   fmt.Sprintf("%q", rows),
		}
	}
	return nil
}
