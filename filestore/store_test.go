package filestore

import (
	"context"
	"testing"

	"github.com/asaidimu/manyjson/core/storage"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemStore(t *testing.T) *Store {
	t.Helper()
	return NewWithFs(afero.NewMemMapFs(), nil)
}

func TestStore_WriteRead(t *testing.T) {
	ctx := context.Background()
	s := newMemStore(t)

	loc := s.Locator("schemas", "user.json")
	assert.Equal(t, "schemas/user.json", loc)

	require.NoError(t, s.Write(ctx, loc, []byte(`{"type":"object"}`)))
	data, err := s.Read(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"object"}`, string(data))

	require.NoError(t, s.Write(ctx, loc, []byte(`{}`)))
	data, err = s.Read(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))
}

func TestStore_WriteLeavesNoTemporaryFiles(t *testing.T) {
	ctx := context.Background()
	s := newMemStore(t)

	require.NoError(t, s.Write(ctx, "data/user/a.json", []byte(`1`)))
	require.NoError(t, s.Write(ctx, "data/user/a.json", []byte(`2`)))

	infos, err := afero.ReadDir(s.Fs(), "data/user")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "a.json", infos[0].Name())
}

func TestStore_ReadMissing(t *testing.T) {
	_, err := newMemStore(t).Read(context.Background(), "schemas/missing.json")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_InvalidLocator(t *testing.T) {
	s := newMemStore(t)
	for _, loc := range []string{"", ".", "../escape.json", "/abs.json", "a/../b.json"} {
		_, err := s.Read(context.Background(), loc)
		assert.Error(t, err, loc)
		assert.NotErrorIs(t, err, storage.ErrNotFound, loc)
	}
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := newMemStore(t)

	require.NoError(t, s.Write(ctx, "schemas/a.json", []byte(`{}`)))
	require.NoError(t, s.Delete(ctx, "schemas/a.json"))

	_, err := s.Read(ctx, "schemas/a.json")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "schemas/a.json"), storage.ErrNotFound)
}

func TestStore_List(t *testing.T) {
	ctx := context.Background()
	s := newMemStore(t)

	require.NoError(t, s.Write(ctx, "data/user/b.json", []byte(`{"b":1}`)))
	require.NoError(t, s.Write(ctx, "data/user/a.json", []byte(`{"a":1}`)))
	require.NoError(t, s.Write(ctx, "data/user/nested/c.json", []byte(`{}`)))
	require.NoError(t, afero.WriteFile(s.Fs(), "data/user/notes.txt", []byte("x"), 0o644))
	require.NoError(t, s.Fs().MkdirAll("data/user/dir.json", 0o755))

	entries, err := s.List(ctx, "data/user")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, storage.Entry{Name: "a.json", Locator: "data/user/a.json", Content: []byte(`{"a":1}`)}, entries[0])
	assert.Equal(t, "b.json", entries[1].Name)
}

func TestStore_ListMissingNamespace(t *testing.T) {
	entries, err := newMemStore(t).List(context.Background(), "data/nobody")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_ListRejectsPatterns(t *testing.T) {
	_, err := newMemStore(t).List(context.Background(), "data/*")
	assert.Error(t, err)
}

func TestStore_Rename(t *testing.T) {
	ctx := context.Background()
	s := newMemStore(t)

	require.NoError(t, s.Write(ctx, "data/user/a.json", []byte(`{"a":1}`)))
	require.NoError(t, s.Write(ctx, "data/user/b.json", []byte(`{"b":1}`)))

	err := s.Rename(ctx, "data/user/a.json", "data/user/b.json")
	require.ErrorIs(t, err, storage.ErrExists)
	data, err := s.Read(ctx, "data/user/a.json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	require.NoError(t, s.Rename(ctx, "data/user/a.json", "data/user/c.json"))
	_, err = s.Read(ctx, "data/user/a.json")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	data, err = s.Read(ctx, "data/user/c.json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	assert.ErrorIs(t, s.Rename(ctx, "data/user/zzz.json", "data/user/y.json"), storage.ErrNotFound)
}

func TestStore_EnsureNamespace(t *testing.T) {
	ctx := context.Background()
	s := newMemStore(t)

	loc, err := s.EnsureNamespace(ctx, "data/user")
	require.NoError(t, err)
	assert.Equal(t, "data/user", loc)

	loc, err = s.EnsureNamespace(ctx, "data/user")
	require.NoError(t, err)
	assert.Equal(t, "data/user", loc)

	ok, err := afero.DirExists(s.Fs(), "data/user")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_RespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := newMemStore(t)
	assert.ErrorIs(t, s.Write(ctx, "schemas/a.json", []byte(`{}`)), context.Canceled)
}

func TestNew_OnDisk(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir(), nil)
	require.NoError(t, err)

	require.NoError(t, s.Write(ctx, "schemas/user.json", []byte(`{}`)))
	entries, err := s.List(ctx, "schemas")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "schemas/user.json", entries[0].Locator)
}
