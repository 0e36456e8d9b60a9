package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_CanonicalForm(t *testing.T) {
	result := NewResult()
	result.add(TraceEvent{Type: TraceRequest})
	result.add(TraceEvent{Type: TraceApply, Event: 1, Kind: "user.update", Detail: "unhandled"})

	data, err := Snapshot("tiny", result)
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario_name":"tiny","trace":[{"seq":1,"type":"request"},{"detail":"unhandled","event":1,"kind":"user.update","seq":2,"type":"apply"}]}`,
		string(data))
}

func TestSnapshot_Deterministic(t *testing.T) {
	scenario := loadScenario(t, "commit_failure_halt")

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(loadScenario(t, "commit_failure_halt"))
	require.NoError(t, err)

	a, err := Snapshot(scenario.Name, first)
	require.NoError(t, err)
	b, err := Snapshot(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}
