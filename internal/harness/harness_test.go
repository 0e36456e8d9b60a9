package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return scenario
}

func TestRun_Scenarios(t *testing.T) {
	entries, err := os.ReadDir(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	for _, entry := range entries {
		name := strings.TrimSuffix(entry.Name(), ".yaml")
		t.Run(name, func(t *testing.T) {
			result, err := RunWithGolden(t, loadScenario(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_CatchUpResult(t *testing.T) {
	result, err := Run(loadScenario(t, "catch_up"))
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, 3, result.Checkpoint)
	assert.True(t, result.CaughtUp)
	assert.Equal(t, 1, result.Pending)
	assert.Empty(t, result.Failures)
	assert.Equal(t, []string{"c1|u1", "c1|u2"}, result.State["members"])
}

func TestRun_FailingAssertion(t *testing.T) {
	scenario := loadScenario(t, "catch_up")
	scenario.Assertions = []Assertion{{Type: AssertCheckpoint, Event: 2}}

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Expected: 2")
	assert.Contains(t, result.Errors[0], "Actual: 3")
}

func TestRun_PagesAfterFailedFetch(t *testing.T) {
	// A failed fetch does not wake the pump, so a second scripted page has
	// no request to answer.
	scenario := loadScenario(t, "fetch_failure")
	scenario.Pages = append(scenario.Pages, Page{})

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors, "pages[1]: no request pending")
}

func TestRun_HaltKeepsCheckpointBeforeFailedEvent(t *testing.T) {
	scenario := loadScenario(t, "commit_failure_halt")
	scenario.Pages = scenario.Pages[:1]
	scenario.Assertions = []Assertion{
		{Type: AssertCheckpoint, Event: 1},
		{Type: AssertCaughtUp, Value: false},
		{Type: AssertPending, Count: 1},
		{Type: AssertTraceCount, Action: "apply:3", Count: 0},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}
