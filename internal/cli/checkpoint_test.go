package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pushsync/internal/checkpoint"
	"github.com/roach88/pushsync/internal/ir"
	"github.com/roach88/pushsync/internal/testutil"
)

// seedCheckpoints stores the given checkpoints for the config's data dir.
func seedCheckpoints(t *testing.T, cfgPath string, ids map[string]ir.EventID) {
	t.Helper()
	cps, err := checkpoint.Open(checkpoint.Options{Dir: filepath.Join(dataDir(cfgPath), "checkpoints")})
	require.NoError(t, err)
	for account, id := range ids {
		require.NoError(t, cps.Set(account, id))
	}
	require.NoError(t, cps.Close())
}

func TestCheckpointShow(t *testing.T) {
	cfgPath := writeConfig(t, "http://localhost:1")

	out, err := executeCommand(t, "--config", cfgPath, "checkpoint", "show")
	require.NoError(t, err)
	assert.Equal(t, "acct: none\n", out)

	id := testutil.EventIDAt(5)
	seedCheckpoints(t, cfgPath, map[string]ir.EventID{"acct": id})

	out, err = executeCommand(t, "--config", cfgPath, "checkpoint", "show")
	require.NoError(t, err)
	assert.Equal(t, "acct: "+id.String()+"\n", out)
}

func TestCheckpointList_JSON(t *testing.T) {
	cfgPath := writeConfig(t, "http://localhost:1")
	a, b := testutil.EventIDAt(1), testutil.EventIDAt(2)
	seedCheckpoints(t, cfgPath, map[string]ir.EventID{"zed": b, "acct": a})

	out, err := executeCommand(t, "--config", cfgPath, "--format", "json", "checkpoint", "list")
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   []CheckpointEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, []CheckpointEntry{
		{AccountID: "acct", EventID: a.String(), Stored: true},
		{AccountID: "zed", EventID: b.String(), Stored: true},
	}, resp.Data)
}

func TestCheckpointList_Empty(t *testing.T) {
	cfgPath := writeConfig(t, "http://localhost:1")

	out, err := executeCommand(t, "--config", cfgPath, "checkpoint", "list")
	require.NoError(t, err)
	assert.Equal(t, "No checkpoints stored.\n", out)
}

func TestCheckpointReset(t *testing.T) {
	cfgPath := writeConfig(t, "http://localhost:1")
	other := testutil.EventIDAt(3)
	seedCheckpoints(t, cfgPath, map[string]ir.EventID{"acct": testutil.EventIDAt(2), "other": other})

	out, err := executeCommand(t, "--config", cfgPath, "checkpoint", "reset")
	require.NoError(t, err)
	assert.Equal(t, "Checkpoint reset for acct\n", out)

	out, err = executeCommand(t, "--config", cfgPath, "checkpoint", "list")
	require.NoError(t, err)
	assert.Equal(t, "other: "+other.String()+"\n", out)
}
