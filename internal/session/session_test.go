package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pushsync/internal/config"
	"github.com/roach88/pushsync/internal/crypto"
	"github.com/roach88/pushsync/internal/ir"
	"github.com/roach88/pushsync/internal/store"
	"github.com/roach88/pushsync/internal/stream"
	"github.com/roach88/pushsync/internal/testutil"
)

func testConfig(t *testing.T, baseURL string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.AccountID = "acct"
	cfg.ClientID = "c1"
	cfg.UserID = "self"
	cfg.BaseURL = baseURL
	cfg.DataDir = t.TempDir()
	return cfg
}

func plainEvent(id ir.EventID, kind ir.Kind, conv, sender, body string) ir.UpdateEvent {
	return ir.UpdateEvent{
		ID:             id,
		Kind:           kind,
		ConversationID: conv,
		SenderID:       sender,
		Payload:        []byte(body),
	}
}

// pagedServer serves pages keyed by the since parameter. Any other since
// gets an empty final page.
func pagedServer(t *testing.T, pages map[string]ir.EventBatch) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != stream.NotificationsPath {
			http.NotFound(w, r)
			return
		}
		batch := pages[r.URL.Query().Get("since")]
		body, err := ir.EncodePage(batch)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(body)
	}))
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSave_PullsUntilCaughtUp(t *testing.T) {
	e1, e2, e3 := testutil.EventIDAt(1), testutil.EventIDAt(2), testutil.EventIDAt(3)
	srv := pagedServer(t, map[string]ir.EventBatch{
		"": {HasMore: true, Events: []ir.UpdateEvent{
			plainEvent(e1, ir.KindConversationCreate, "c1", "u1", `{"name":"Team","type":"group","members":["u1","self"]}`),
			plainEvent(e2, ir.KindMessageAdd, "c1", "u1", `{"message_id":"m1","type":"text","text":"hi"}`),
		}},
		string(e2): {HasMore: false, Events: []ir.UpdateEvent{
			plainEvent(e3, ir.KindUserUpdate, "", "u1", `{"id":"u1","name":"Ada"}`),
		}},
	})
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	s, err := NewSave(cfg)
	require.NoError(t, err)

	ctx := waitCtx(t)
	s.Start(ctx)
	require.NoError(t, s.WaitCaughtUp(ctx))

	id, ok, err := s.Checkpoint()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, e3, id)
	require.NoError(t, s.Dispose())

	local, err := store.Open(cfg.StorePath())
	require.NoError(t, err)
	defer local.Close()

	name, err := local.ConversationName(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "Team", name)
	user, err := local.UserName(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", user)
}

func TestSave_ResumesFromStoredCheckpoint(t *testing.T) {
	e1, e2 := testutil.EventIDAt(1), testutil.EventIDAt(2)
	dataDir := t.TempDir()
	runs := []struct {
		pages map[string]ir.EventBatch
		want  ir.EventID
	}{
		{map[string]ir.EventBatch{
			"": {Events: []ir.UpdateEvent{plainEvent(e1, ir.KindUserUpdate, "", "u1", `{"id":"u1","name":"A"}`)}},
		}, e1},
		{map[string]ir.EventBatch{
			string(e1): {Events: []ir.UpdateEvent{plainEvent(e2, ir.KindUserUpdate, "", "u1", `{"id":"u1","name":"B"}`)}},
		}, e2},
	}

	for _, run := range runs {
		srv := pagedServer(t, run.pages)
		cfg := testConfig(t, srv.URL)
		cfg.DataDir = dataDir

		s, err := NewSave(cfg)
		require.NoError(t, err)
		ctx := waitCtx(t)
		s.Start(ctx)
		require.NoError(t, s.WaitCaughtUp(ctx))
		id, _, err := s.Checkpoint()
		require.NoError(t, err)
		assert.Equal(t, run.want, id)
		require.NoError(t, s.Dispose())
		srv.Close()
	}
}

func TestSave_FetchFailureEndsWait(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s, err := NewSave(testConfig(t, srv.URL))
	require.NoError(t, err)
	defer s.Dispose()

	ctx := waitCtx(t)
	s.Start(ctx)
	err = s.WaitCaughtUp(ctx)
	require.Error(t, err)
	assert.True(t, stream.IsFetchError(err))
}

func TestSave_DecryptsWithKeyFile(t *testing.T) {
	key := testutil.FixedKey("")
	e1, e2 := testutil.EventIDAt(1), testutil.EventIDAt(2)
	sealedBody, err := crypto.Seal(key, e2, []byte(`{"id":"u2","name":"Secret"}`))
	require.NoError(t, err)

	srv := pagedServer(t, map[string]ir.EventBatch{
		"": {Events: []ir.UpdateEvent{
			plainEvent(e1, ir.KindUserUpdate, "", "u1", `{"id":"u1","name":"Open"}`),
			{ID: e2, Kind: ir.KindUserUpdate, SenderID: "u2", Payload: sealedBody, Encrypted: true},
		}},
	})
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.KeyFile = filepath.Join(t.TempDir(), "account.key")
	require.NoError(t, os.WriteFile(cfg.KeyFile, key, 0o600))

	s, err := NewSave(cfg)
	require.NoError(t, err)
	ctx := waitCtx(t)
	s.Start(ctx)
	require.NoError(t, s.WaitCaughtUp(ctx))
	require.NoError(t, s.Dispose())

	local, err := store.Open(cfg.StorePath())
	require.NoError(t, err)
	defer local.Close()
	name, err := local.UserName(context.Background(), "u2")
	require.NoError(t, err)
	assert.Equal(t, "Secret", name)
}

func TestSave_RejectsUnknownPolicy(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.CommitFailurePolicy = "retry"
	_, err := NewSave(cfg)
	assert.Error(t, err)
}

func TestSave_DoubleDisposePanics(t *testing.T) {
	s, err := NewSave(testConfig(t, "http://127.0.0.1:1"))
	require.NoError(t, err)
	require.NoError(t, s.Dispose())
	assert.Panics(t, func() { _ = s.Dispose() })
}

// notificationServer serves single events by ID.
func notificationServer(t *testing.T, events ...ir.UpdateEvent) *httptest.Server {
	t.Helper()
	byPath := make(map[string]ir.UpdateEvent, len(events))
	for _, ev := range events {
		byPath[stream.NotificationsPath+"/"+ev.ID.String()] = ev
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ev, ok := byPath[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		body, err := ir.EncodeNotification(ev)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(body)
	}))
}

func TestAlert_DeliversSummary(t *testing.T) {
	id := testutil.EventIDAt(1)
	srv := notificationServer(t,
		plainEvent(id, ir.KindMessageAdd, "c1", "u1", `{"message_id":"m1","type":"text","text":"hello"}`),
	)
	defer srv.Close()

	a, err := NewAlert(testConfig(t, srv.URL), id)
	require.NoError(t, err)
	defer a.Dispose()

	ctx := waitCtx(t)
	a.Start(ctx)
	summary, err := a.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "conversation", summary.Category)
	assert.True(t, strings.Contains(summary.Body, "hello"), summary.Body)
}

func TestAlert_SelfSentYieldsNoAlert(t *testing.T) {
	id := testutil.EventIDAt(1)
	srv := notificationServer(t,
		plainEvent(id, ir.KindMessageAdd, "c1", "self", `{"message_id":"m1","type":"text","text":"mine"}`),
	)
	defer srv.Close()

	a, err := NewAlert(testConfig(t, srv.URL), id)
	require.NoError(t, err)
	defer a.Dispose()

	ctx := waitCtx(t)
	a.Start(ctx)
	_, err = a.Wait(ctx)
	assert.ErrorIs(t, err, ErrNoAlert)
}

func TestAlert_MissingEventYieldsNoAlert(t *testing.T) {
	srv := notificationServer(t)
	defer srv.Close()

	a, err := NewAlert(testConfig(t, srv.URL), testutil.EventIDAt(9))
	require.NoError(t, err)
	defer a.Dispose()

	ctx := waitCtx(t)
	a.Start(ctx)
	_, err = a.Wait(ctx)
	assert.ErrorIs(t, err, ErrNoAlert)
}
