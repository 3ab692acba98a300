package token_test

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jrsteele09/go-jobboard-client/token"
	"github.com/stretchr/testify/require"
)

const testStorageKey = "jobboard.auth"

var testPair = token.Pair{AccessToken: "access-1", RefreshToken: "refresh-1", TokenType: "bearer"}

func newFileStore(t *testing.T, opts ...token.FileStoreOption) (*token.FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	store, err := token.NewFileStore(path, testStorageKey, opts...)
	require.NoError(t, err)
	return store, path
}

func testSealer(t *testing.T, b byte) *token.Sealer {
	t.Helper()
	sealer, err := token.NewSealer(hex.EncodeToString([]byte(strings.Repeat(string(rune(b)), 32))))
	require.NoError(t, err)
	return sealer
}

func TestFileStore_WriteThrough(t *testing.T) {
	ctx := context.Background()
	store, path := newFileStore(t)

	require.NoError(t, store.Save(ctx, testPair))

	got, ok := store.Load(ctx)
	require.True(t, ok)
	require.Equal(t, testPair, got)

	rotated := token.Pair{AccessToken: "access-2", RefreshToken: "refresh-2", TokenType: "bearer"}
	require.NoError(t, store.Save(ctx, rotated))
	got, ok = store.Load(ctx)
	require.True(t, ok)
	require.Equal(t, rotated, got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStore_SurvivesNewInstance(t *testing.T) {
	ctx := context.Background()
	store, path := newFileStore(t)
	require.NoError(t, store.Save(ctx, testPair))

	reopened, err := token.NewFileStore(path, testStorageKey)
	require.NoError(t, err)
	got, ok := reopened.Load(ctx)
	require.True(t, ok)
	require.Equal(t, testPair, got)
}

func TestFileStore_PersistedLayout(t *testing.T) {
	ctx := context.Background()
	store, path := newFileStore(t)
	require.NoError(t, store.Save(ctx, testPair))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]map[string]string
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Equal(t, map[string]string{
		"access_token":  "access-1",
		"refresh_token": "refresh-1",
		"token_type":    "bearer",
	}, doc[testStorageKey])
}

func TestFileStore_LoadAbsence(t *testing.T) {
	ctx := context.Background()

	t.Run("missing file", func(t *testing.T) {
		store, _ := newFileStore(t)
		_, ok := store.Load(ctx)
		require.False(t, ok)
	})

	t.Run("malformed file", func(t *testing.T) {
		store, path := newFileStore(t)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
		_, ok := store.Load(ctx)
		require.False(t, ok)
	})

	t.Run("partial pair", func(t *testing.T) {
		store, path := newFileStore(t)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
		require.NoError(t, os.WriteFile(path, []byte(`{"jobboard.auth":{"access_token":"only-access"}}`), 0o600))
		_, ok := store.Load(ctx)
		require.False(t, ok)
	})

	t.Run("record of wrong shape", func(t *testing.T) {
		store, path := newFileStore(t)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
		require.NoError(t, os.WriteFile(path, []byte(`{"jobboard.auth":42}`), 0o600))
		_, ok := store.Load(ctx)
		require.False(t, ok)
	})
}

func TestFileStore_SaveRejectsPartialPair(t *testing.T) {
	store, _ := newFileStore(t)
	err := store.Save(context.Background(), token.Pair{AccessToken: "a"})
	require.ErrorIs(t, err, token.ErrInvalidPair)
}

func TestFileStore_SaveFailureIsReported(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	store, err := token.NewFileStore(filepath.Join(blocker, "credentials.json"), testStorageKey)
	require.NoError(t, err)
	require.Error(t, store.Save(context.Background(), testPair))
}

func TestFileStore_Clear(t *testing.T) {
	ctx := context.Background()

	t.Run("removes file when only record", func(t *testing.T) {
		store, path := newFileStore(t)
		require.NoError(t, store.Save(ctx, testPair))
		require.NoError(t, store.Clear(ctx))

		_, ok := store.Load(ctx)
		require.False(t, ok)
		_, err := os.Stat(path)
		require.True(t, os.IsNotExist(err))
	})

	t.Run("keeps unrelated keys", func(t *testing.T) {
		store, path := newFileStore(t)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
		require.NoError(t, os.WriteFile(path, []byte(`{"other":{"x":1}}`), 0o600))
		require.NoError(t, store.Save(ctx, testPair))
		require.NoError(t, store.Clear(ctx))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.JSONEq(t, `{"other":{"x":1}}`, string(data))
	})

	t.Run("empty store", func(t *testing.T) {
		store, _ := newFileStore(t)
		require.NoError(t, store.Clear(ctx))
	})
}

func TestFileStore_Sealed(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip hides tokens", func(t *testing.T) {
		store, path := newFileStore(t, token.WithSealer(testSealer(t, 'k')))
		require.NoError(t, store.Save(ctx, testPair))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.NotContains(t, string(data), "refresh-1")

		got, ok := store.Load(ctx)
		require.True(t, ok)
		require.Equal(t, testPair, got)
	})

	t.Run("wrong key is absence", func(t *testing.T) {
		store, path := newFileStore(t, token.WithSealer(testSealer(t, 'k')))
		require.NoError(t, store.Save(ctx, testPair))

		other, err := token.NewFileStore(path, testStorageKey, token.WithSealer(testSealer(t, 'z')))
		require.NoError(t, err)
		_, ok := other.Load(ctx)
		require.False(t, ok)
	})

	t.Run("unsealed record is absence", func(t *testing.T) {
		plain, path := newFileStore(t)
		require.NoError(t, plain.Save(ctx, testPair))

		sealed, err := token.NewFileStore(path, testStorageKey, token.WithSealer(testSealer(t, 'k')))
		require.NoError(t, err)
		_, ok := sealed.Load(ctx)
		require.False(t, ok)
	})
}

func TestNewSealer(t *testing.T) {
	_, err := token.NewSealer("zz")
	require.Error(t, err)

	_, err = token.NewSealer(hex.EncodeToString([]byte("short")))
	require.Error(t, err)
	require.Contains(t, err.Error(), "must be 32 bytes")
}
