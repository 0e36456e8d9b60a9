package stream

import "fmt"

// GateState is the state of the fetch gate.
type GateState int

const (
	// Ready means a next-page request may be produced.
	Ready GateState = iota
	// Fetching means a page request is outstanding.
	Fetching
	// Applying means a fetched page is being applied.
	Applying
)

func (s GateState) String() string {
	switch s {
	case Ready:
		return "ready"
	case Fetching:
		return "fetching"
	case Applying:
		return "applying"
	default:
		return fmt.Sprintf("GateState(%d)", int(s))
	}
}

// Gate is the single-flight latch for page fetches.
//
// It is Ready if and only if no page is being fetched or applied. Illegal
// transitions are programming errors and panic.
type Gate struct {
	state GateState
}

// State returns the current state.
func (g *Gate) State() GateState {
	return g.state
}

// Ready reports whether a fetch may start.
func (g *Gate) Ready() bool {
	return g.state == Ready
}

// Busy reports whether a page is being fetched or applied.
func (g *Gate) Busy() bool {
	return g.state != Ready
}

func (g *Gate) beginFetch() {
	g.transition(Ready, Fetching)
}

func (g *Gate) beginApply() {
	g.transition(Fetching, Applying)
}

// fetchFailed reopens the gate after a failed fetch.
func (g *Gate) fetchFailed() {
	g.transition(Fetching, Ready)
}

// finishApply reopens the gate after a batch.
func (g *Gate) finishApply() {
	g.transition(Applying, Ready)
}

func (g *Gate) transition(from, to GateState) {
	if g.state != from {
		panic(fmt.Sprintf("stream: gate transition %s -> %s from state %s", from, to, g.state))
	}
	g.state = to
}
