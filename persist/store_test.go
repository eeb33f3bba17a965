package persist

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"southwinds.dev/cryptosvc"
)

func testWrappedKey(id cryptosvc.KeyId) cryptosvc.WrappedKey {
	return cryptosvc.WrappedKey{
		Ciphertext: []byte("ciphertext"),
		IV:         []byte("0123456789ab"),
		Tag:        []byte("0123456789abcdef"),
		KEKId:      "kek-1",
		Metadata: cryptosvc.KeyMetadata{
			ID:        id,
			Algorithm: cryptosvc.AlgAES256GCM,
			Type:      cryptosvc.KeyTypeSymmetric,
			State:     cryptosvc.KeyStateActive,
			CreatedAt: time.Now().UTC().Truncate(time.Second),
			ExpiresAt: time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second),
		},
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	id := cryptosvc.NewKeyId("payments")
	wrapped := testWrappedKey(id)

	require.NoError(t, store.Store(ctx, id, wrapped))

	exists, err := store.Exists(ctx, id)
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := store.Retrieve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, wrapped.Ciphertext, got.Ciphertext)
	assert.Equal(t, wrapped.IV, got.IV)
	assert.Equal(t, wrapped.Tag, got.Tag)
	assert.Equal(t, wrapped.KEKId, got.KEKId)
	assert.Equal(t, wrapped.Metadata.ID, got.Metadata.ID)
}

func TestMemoryStoreNotFound(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	id := cryptosvc.NewKeyId("payments")

	_, err := store.Retrieve(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.Remove(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.UpdateMetadata(ctx, id, cryptosvc.KeyMetadata{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreListFiltersByNamespace(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	idA := cryptosvc.NewKeyId("payments")
	idB := cryptosvc.NewKeyId("payments")
	idC := cryptosvc.NewKeyId("notifications")

	require.NoError(t, store.Store(ctx, idA, testWrappedKey(idA)))
	require.NoError(t, store.Store(ctx, idB, testWrappedKey(idB)))
	require.NoError(t, store.Store(ctx, idC, testWrappedKey(idC)))

	ids, err := store.List(ctx, "payments")
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemoryStoreUpdateMetadata(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	id := cryptosvc.NewKeyId("payments")
	require.NoError(t, store.Store(ctx, id, testWrappedKey(id)))

	meta := testWrappedKey(id).Metadata
	meta.State = cryptosvc.KeyStateDeprecated
	require.NoError(t, store.UpdateMetadata(ctx, id, meta))

	got, err := store.Retrieve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, cryptosvc.KeyStateDeprecated, got.Metadata.State)
}
