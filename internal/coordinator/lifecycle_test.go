package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/pagelens/internal/aiclient"
	"github.com/ent0n29/pagelens/internal/credentials"
	"github.com/ent0n29/pagelens/internal/kvstore"
	"github.com/ent0n29/pagelens/internal/protocol"
	"github.com/ent0n29/pagelens/internal/session"
	"github.com/ent0n29/pagelens/internal/settings"
)

func TestInstalledBootstrap(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, aiclient.New("http://127.0.0.1:1", nil), nil)
	h.login(t)
	_, err := h.sessions.Get(ctx, "old-tab")
	require.NoError(t, err)

	require.NoError(t, h.c.HandleEvent(ctx, protocol.EventInstalled, []byte(`{"reason":"update"}`)))
	assert.Empty(t, h.opener.urls, "updates must not rerun the bootstrap")

	require.NoError(t, h.c.HandleEvent(ctx, protocol.EventInstalled, []byte(`{"reason":"install"}`)))

	got, err := settings.Load(ctx, h.kv, settings.Defaults(""))
	require.NoError(t, err)
	assert.Equal(t, settings.Defaults(""), got)

	_, ok := h.vault.Load(ctx)
	assert.False(t, ok)
	list, err := h.sessions.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, []string{"http://localhost:8787/onboarding"}, h.opener.urls)

	status := h.c.Status(ctx)
	assert.True(t, status.Installed)
	assert.False(t, status.Authenticated)
	assert.Equal(t, "store", status.CredentialBackend)
	assert.Equal(t, "in-memory", status.StoreMode)
}

func TestTabActivatedCleansUpAndEnsuresSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, aiclient.New("http://127.0.0.1:1", nil), nil)

	stale := time.Now().Add(-25 * time.Hour).UTC()
	raw, err := json.Marshal(map[string]any{"tabId": "stale", "created": stale, "lastUpdated": stale})
	require.NoError(t, err)
	require.NoError(t, h.kv.Set(ctx, kvstore.SessionKeyPrefix+"stale", raw))

	require.NoError(t, h.c.HandleEvent(ctx, protocol.EventTabActivated, []byte(`{"tabId":11}`)))

	_, err = h.kv.Get(ctx, kvstore.SessionKeyPrefix+"stale")
	assert.True(t, errors.Is(err, kvstore.ErrNotFound), "stale session should be removed")
	_, err = h.kv.Get(ctx, kvstore.SessionKeyPrefix+"11")
	assert.NoError(t, err, "activated tab should get a session")
}

func TestTabUpdatedOnlyWritesChangedURL(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, aiclient.New("http://127.0.0.1:1", nil), nil)

	require.NoError(t, h.c.HandleEvent(ctx, protocol.EventTabUpdated, []byte(`{"tabId":5,"status":"complete","url":"https://a.example"}`)))
	first, err := h.sessions.Get(ctx, "5")
	require.NoError(t, err)
	assert.Equal(t, "https://a.example", first.URL)

	require.NoError(t, h.c.HandleEvent(ctx, protocol.EventTabUpdated, []byte(`{"tabId":5,"status":"complete","url":"https://a.example"}`)))
	same, err := h.sessions.Get(ctx, "5")
	require.NoError(t, err)
	assert.True(t, same.LastUpdated.Equal(first.LastUpdated), "unchanged url must not touch the session")

	require.NoError(t, h.c.HandleEvent(ctx, protocol.EventTabUpdated, []byte(`{"tabId":5,"status":"loading","url":"https://b.example"}`)))
	loading, err := h.sessions.Get(ctx, "5")
	require.NoError(t, err)
	assert.Equal(t, "https://a.example", loading.URL)
}

func TestHandleEventRejectsUnknownKinds(t *testing.T) {
	h := newHarness(t, aiclient.New("http://127.0.0.1:1", nil), nil)
	err := h.c.HandleEvent(context.Background(), "tabClosed", nil)
	assert.True(t, errors.Is(err, protocol.ErrUnsupportedType))
}

func TestVerifyCredentials(t *testing.T) {
	ctx := context.Background()

	api := newFakeAPI(t, http.StatusOK, "")
	h := newHarness(t, aiclient.New(api.server.URL, nil), nil)
	assert.False(t, h.c.VerifyCredentials(ctx))
	assert.EqualValues(t, 0, api.calls.Load(), "no stored key means no API call")

	h.login(t)
	assert.True(t, h.c.VerifyCredentials(ctx))
	assert.EqualValues(t, 1, api.calls.Load())

	denied := newFakeAPI(t, http.StatusUnauthorized, "")
	h = newHarness(t, aiclient.New(denied.server.URL, nil), nil)
	h.login(t)
	assert.False(t, h.c.VerifyCredentials(ctx))
	assert.True(t, h.c.Status(ctx).Authenticated, "status alone does not contact the API")
}

func TestConfiguredDefaultModelReachesSettingsAndCredentials(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewInMemoryStore()
	vault := credentials.NewVault(credentials.NewStoreBackend(kv), credentials.Base64Codec{}, kv, "gpt-4o-mini")
	c, err := New(Options{
		KV:           kv,
		Vault:        vault,
		Sessions:     session.NewStore(kv, session.DefaultRetention, 16),
		AI:           aiclient.New("http://127.0.0.1:1", nil),
		DefaultModel: "gpt-4o-mini",
	})
	require.NoError(t, err)

	resp := c.Handle(ctx, []byte(`{"action":"getSettings"}`))
	require.True(t, resp.Success)
	assert.Equal(t, "gpt-4o-mini", resp.Settings.AIModel)

	require.NoError(t, vault.Save(ctx, credentials.Credentials{APIKey: "sk-test"}))
	next := *resp.Settings
	next.AIModel = "gpt-4o"
	resp = c.Handle(ctx, mustJSON(t, map[string]any{"action": "saveSettings", "settings": next}))
	require.True(t, resp.Success, resp.Error)

	creds, err := c.credentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", creds.AIModel, "saved aiModel applies to keys stored without a model")
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}
