package stream

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/pushsync/internal/ir"
)

func TestGate_Cycle(t *testing.T) {
	var g Gate
	assert.True(t, g.Ready())

	g.beginFetch()
	assert.Equal(t, Fetching, g.State())
	assert.True(t, g.Busy())

	g.beginApply()
	assert.Equal(t, Applying, g.State())

	g.finishApply()
	assert.True(t, g.Ready())

	g.beginFetch()
	g.fetchFailed()
	assert.True(t, g.Ready())
}

func TestGate_IllegalTransitionPanics(t *testing.T) {
	var g Gate
	assert.PanicsWithValue(t, "stream: gate transition fetching -> applying from state ready", g.beginApply)

	g.beginFetch()
	assert.Panics(t, g.beginFetch, "a second fetch must never start")
}

func TestGateState_String(t *testing.T) {
	assert.Equal(t, "ready", Ready.String())
	assert.Equal(t, "fetching", Fetching.String())
	assert.Equal(t, "applying", Applying.String())
	assert.Equal(t, "GateState(9)", GateState(9).String())
}

func TestApplyError_Message(t *testing.T) {
	err := &ApplyError{Code: ErrCodeCommitFailed, EventID: "e2", Kind: ir.KindUserUpdate, Err: errors.New("disk full")}
	assert.Equal(t, "COMMIT_FAILED: event e2 (user.update): disk full", err.Error())

	drop := &ApplyError{Code: ErrCodeDecryptFailed, EventID: "e3", Kind: ir.KindMessageAdd}
	assert.Equal(t, "DECRYPT_FAILED: event e3 (conversation.otr-message-add)", drop.Error())
}

func TestFetchError_Message(t *testing.T) {
	err := &FetchError{StatusCode: 503, Since: "e1", Err: errors.New("unavailable")}
	assert.Equal(t, "FETCH_FAILED: status 503 (since=e1): unavailable", err.Error())

	noResp := &FetchError{Err: errors.New("dial tcp: refused")}
	assert.Equal(t, "FETCH_FAILED: no response: dial tcp: refused", noResp.Error())
	assert.True(t, IsFetchError(noResp))
	assert.False(t, IsCommitError(noResp))
}
