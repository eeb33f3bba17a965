package persist

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"southwinds.dev/cryptosvc"
)

func TestFileSystemStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileSystemStore(t.TempDir())
	require.NoError(t, err)

	id := cryptosvc.NewKeyId("payments")
	wrapped := testWrappedKey(id)
	require.NoError(t, store.Store(ctx, id, wrapped))

	got, err := store.Retrieve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, wrapped.Ciphertext, got.Ciphertext)
	assert.Equal(t, wrapped.IV, got.IV)
	assert.Equal(t, wrapped.Tag, got.Tag)
	assert.Equal(t, wrapped.KEKId, got.KEKId)
	assert.Equal(t, wrapped.Metadata.Algorithm, got.Metadata.Algorithm)
	assert.Equal(t, wrapped.Metadata.State, got.Metadata.State)
}

func TestFileSystemStoreNotFound(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileSystemStore(t.TempDir())
	require.NoError(t, err)

	id := cryptosvc.NewKeyId("payments")
	_, err = store.Retrieve(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	exists, err := store.Exists(ctx, id)
	require.NoError(t, err)
	assert.False(t, exists)

	err = store.Remove(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileSystemStoreList(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileSystemStore(t.TempDir())
	require.NoError(t, err)

	idA := cryptosvc.NewKeyId("payments")
	idB := cryptosvc.NewKeyId("notifications")
	require.NoError(t, store.Store(ctx, idA, testWrappedKey(idA)))
	require.NoError(t, store.Store(ctx, idB, testWrappedKey(idB)))

	ids, err := store.List(ctx, "payments")
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, idA, ids[0])
}

func TestFileSystemStoreUpdateMetadata(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileSystemStore(t.TempDir())
	require.NoError(t, err)

	id := cryptosvc.NewKeyId("payments")
	require.NoError(t, store.Store(ctx, id, testWrappedKey(id)))

	meta := testWrappedKey(id).Metadata
	meta.State = cryptosvc.KeyStateDeprecated
	meta.UsageCount = 42
	require.NoError(t, store.UpdateMetadata(ctx, id, meta))

	got, err := store.Retrieve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, cryptosvc.KeyStateDeprecated, got.Metadata.State)
	assert.Equal(t, uint64(42), got.Metadata.UsageCount)
}

func TestFileSystemStoreRejectsTruncatedRecord(t *testing.T) {
	_, err := decodeRecord([]byte{1, 2, 3})
	assert.Error(t, err)
}
