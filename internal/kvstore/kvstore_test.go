package kvstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	require.True(t, errors.Is(err, ErrNotFound), "Get(missing) error = %v", err)

	require.NoError(t, store.Set(ctx, "sessions/1", []byte(`{"tabId":"1"}`)))
	require.NoError(t, store.Set(ctx, "sessions/2", []byte(`{"tabId":"2"}`)))
	require.NoError(t, store.Set(ctx, "userSettings", []byte(`{}`)))
	require.NoError(t, store.Set(ctx, "sessions/1", []byte(`{"tabId":"1","url":"x"}`)))

	got, err := store.Get(ctx, "sessions/1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"tabId":"1","url":"x"}`, string(got))

	listed, err := store.List(ctx, SessionKeyPrefix)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
	assert.Contains(t, listed, "sessions/2")

	require.NoError(t, store.Delete(ctx, "sessions/2"))
	require.NoError(t, store.Delete(ctx, "sessions/2"))
	listed, err = store.List(ctx, SessionKeyPrefix)
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestInMemoryStore(t *testing.T) {
	exerciseStore(t, NewInMemoryStore())
}

func TestInMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	value := []byte("abc")
	require.NoError(t, store.Set(ctx, "k", value))
	value[0] = 'z'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	got[1] = 'z'

	again, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewSQLiteStore(context.Background(), path)
	require.NoError(t, err)
	defer store.Close()
	exerciseStore(t, store)
}

func TestSQLiteListEscapesWildcards(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Set(ctx, "a_b/1", []byte("1")))
	require.NoError(t, store.Set(ctx, "axb/1", []byte("2")))

	listed, err := store.List(ctx, "a_b/")
	require.NoError(t, err)
	assert.Len(t, listed, 1)
	assert.Contains(t, listed, "a_b/1")
}

func TestNewStoreSelectsBackend(t *testing.T) {
	ctx := context.Background()

	mem, err := NewStore(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "in-memory", mem.Mode())

	lite, err := NewStore(ctx, "sqlite://"+filepath.Join(t.TempDir(), "s.db"))
	require.NoError(t, err)
	defer lite.Close()
	assert.Equal(t, "sqlite", lite.Mode())

	_, err = NewStore(ctx, "ftp://nope")
	assert.True(t, errors.Is(err, ErrUnsupportedURL), "error = %v", err)
}

func TestEnsureSchema(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	require.NoError(t, EnsureSchema(ctx, store))
	raw, err := store.Get(ctx, KeySchemaVersion)
	require.NoError(t, err)
	assert.Equal(t, "1", string(raw))

	require.NoError(t, store.Set(ctx, KeySchemaVersion, []byte("99")))
	err = EnsureSchema(ctx, store)
	assert.True(t, errors.Is(err, ErrSchemaTooNew), "error = %v", err)
}
