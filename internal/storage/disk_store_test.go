package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/vaultsync/internal/events"
	"github.com/TheMichaelB/vaultsync/internal/storage"
)

func newDiskStore(t *testing.T) *storage.DiskStore {
	t.Helper()
	s, err := storage.NewDiskStore(t.TempDir(), events.Discard())
	require.NoError(t, err)
	return s
}

func TestDiskStore_WriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newDiskStore(t)

	require.NoError(t, s.Write(ctx, "files/abc.json", []byte("payload")))

	data, err := s.Read(ctx, "files/abc.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	// Overwrite replaces the content.
	require.NoError(t, s.Write(ctx, "files/abc.json", []byte("v2")))
	data, err = s.Read(ctx, "files/abc.json")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)
}

func TestDiskStore_ReadMissing(t *testing.T) {
	ctx := context.Background()
	s := newDiskStore(t)

	_, err := s.Read(ctx, "files/nope.json")
	assert.Error(t, err)
}

func TestDiskStore_Exists(t *testing.T) {
	ctx := context.Background()
	s := newDiskStore(t)

	ok, err := s.Exists(ctx, "files/a.json")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Write(ctx, "files/a.json", []byte("x")))
	ok, err = s.Exists(ctx, "files/a.json")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDiskStore_DeleteIgnoresMissing(t *testing.T) {
	ctx := context.Background()
	s := newDiskStore(t)

	require.NoError(t, s.Write(ctx, "files/a.json", []byte("x")))
	require.NoError(t, s.Delete(ctx, "files/a.json"))
	// Second delete of the same key is a no-op, not an error.
	require.NoError(t, s.Delete(ctx, "files/a.json"))
}

func TestDiskStore_ListPrefix(t *testing.T) {
	ctx := context.Background()
	s := newDiskStore(t)

	require.NoError(t, s.Write(ctx, "files/a.json", []byte("a")))
	require.NoError(t, s.Write(ctx, "files/b.meta.json", []byte("b")))
	require.NoError(t, s.Write(ctx, "items/snapshot.json", []byte("s")))

	keys, err := s.List(ctx, "files")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"files/a.json", "files/b.meta.json"}, keys)

	// Listing a prefix with no blobs yields an empty set.
	keys, err = s.List(ctx, "empty")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestDiskStore_RejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	s := newDiskStore(t)

	for _, key := range []string{
		"../outside.json",
		"files/../../etc/passwd",
		"files/a\x00b.json",
	} {
		err := s.Write(ctx, key, []byte("x"))
		assert.Error(t, err, "key %q", key)
	}
}
