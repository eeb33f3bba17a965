package cryptosvc_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"southwinds.dev/cryptosvc"
	"southwinds.dev/cryptosvc/cache"
	"southwinds.dev/cryptosvc/persist"
)

func newTestKeyService(t *testing.T) (*cryptosvc.KeyService, persist.Store) {
	t.Helper()
	store := persist.NewMemoryStore()
	c, err := cache.NewTwoTier(cache.Config{LocalSize: 64})
	require.NoError(t, err)
	masterKey := make([]byte, 32)
	ks, err := cryptosvc.NewKeyService(store, c, masterKey, time.Hour, nil)
	require.NoError(t, err)
	return ks, store
}

func TestGenerateSymmetricKeyIsActiveAndRetrievable(t *testing.T) {
	ctx := context.Background()
	ks, _ := newTestKeyService(t)

	id, err := ks.Generate(ctx, cryptosvc.GenerateParams{
		Namespace: "ns1",
		Algorithm: cryptosvc.AlgAES256GCM,
	})
	require.NoError(t, err)
	assert.Equal(t, "ns1", id.Namespace)
	assert.Equal(t, 1, id.Version)

	meta, err := ks.GetMetadata(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, cryptosvc.KeyStateActive, meta.State)
	assert.Equal(t, cryptosvc.KeyTypeSymmetric, meta.Type)

	buf, err := ks.GetMaterial(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 32, buf.Len())
}

func TestGenerateAsymmetricKeyProducesPrivateKeyMaterial(t *testing.T) {
	ctx := context.Background()
	ks, _ := newTestKeyService(t)

	id, err := ks.Generate(ctx, cryptosvc.GenerateParams{
		Namespace: "ns1",
		Algorithm: cryptosvc.AlgECDSAP256,
	})
	require.NoError(t, err)

	meta, err := ks.GetMetadata(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, cryptosvc.KeyTypePrivate, meta.Type)

	buf, err := ks.GetMaterial(ctx, id)
	require.NoError(t, err)
	assert.NotZero(t, buf.Len())
}

func TestGetMaterialIsCachedAcrossCalls(t *testing.T) {
	ctx := context.Background()
	ks, _ := newTestKeyService(t)

	id, err := ks.Generate(ctx, cryptosvc.GenerateParams{Namespace: "ns1", Algorithm: cryptosvc.AlgAES128GCM})
	require.NoError(t, err)

	first, err := ks.GetMaterial(ctx, id)
	require.NoError(t, err)
	second, err := ks.GetMaterial(ctx, id)
	require.NoError(t, err)
	assert.True(t, first.Equal(second))
}

func TestRotateDeprecatesOldKeyAndLinksLineage(t *testing.T) {
	ctx := context.Background()
	ks, _ := newTestKeyService(t)

	oldID, err := ks.Generate(ctx, cryptosvc.GenerateParams{Namespace: "ns1", Algorithm: cryptosvc.AlgAES256GCM})
	require.NoError(t, err)

	newID, err := ks.Rotate(ctx, oldID)
	require.NoError(t, err)
	assert.Equal(t, oldID.UUID, newID.UUID)
	assert.Equal(t, oldID.Version+1, newID.Version)

	oldMeta, err := ks.GetMetadata(ctx, oldID)
	require.NoError(t, err)
	assert.Equal(t, cryptosvc.KeyStateDeprecated, oldMeta.State)

	newMeta, err := ks.GetMetadata(ctx, newID)
	require.NoError(t, err)
	assert.Equal(t, cryptosvc.KeyStateActive, newMeta.State)
	require.NotNil(t, newMeta.PreviousVersionID)
	assert.Equal(t, oldID, *newMeta.PreviousVersionID)
	require.NotNil(t, newMeta.RotatedAt)
}

func TestRotateRejectsNonActiveKey(t *testing.T) {
	ctx := context.Background()
	ks, _ := newTestKeyService(t)

	id, err := ks.Generate(ctx, cryptosvc.GenerateParams{Namespace: "ns1", Algorithm: cryptosvc.AlgAES256GCM})
	require.NoError(t, err)
	require.NoError(t, ks.Deprecate(ctx, id))

	_, err = ks.Rotate(ctx, id)
	require.Error(t, err)
	var svcErr *cryptosvc.Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, cryptosvc.CodeKeyInvalidState, svcErr.Code)
}

func TestDeprecateRejectsAlreadyDeprecatedKey(t *testing.T) {
	ctx := context.Background()
	ks, _ := newTestKeyService(t)

	id, err := ks.Generate(ctx, cryptosvc.GenerateParams{Namespace: "ns1", Algorithm: cryptosvc.AlgAES256GCM})
	require.NoError(t, err)
	require.NoError(t, ks.Deprecate(ctx, id))

	err = ks.Deprecate(ctx, id)
	require.Error(t, err)
}

func TestGetMaterialRejectsExpiredKey(t *testing.T) {
	ctx := context.Background()
	store := persist.NewMemoryStore()
	c, err := cache.NewTwoTier(cache.Config{LocalSize: 8})
	require.NoError(t, err)
	masterKey := make([]byte, 32)
	ks, err := cryptosvc.NewKeyService(store, c, masterKey, time.Hour, nil)
	require.NoError(t, err)

	id, err := ks.Generate(ctx, cryptosvc.GenerateParams{
		Namespace: "ns1",
		Algorithm: cryptosvc.AlgAES256GCM,
	})
	require.NoError(t, err)

	// Generate treats a non-positive validity as "use the default", so the
	// key is expired by rewriting its stored metadata. A second service with
	// an empty cache then has to read the record from the store.
	meta, err := ks.GetMetadata(ctx, id)
	require.NoError(t, err)
	meta.ExpiresAt = time.Now().Add(-time.Hour)
	require.NoError(t, store.UpdateMetadata(ctx, id, meta))

	coldCache, err := cache.NewTwoTier(cache.Config{LocalSize: 8})
	require.NoError(t, err)
	cold, err := cryptosvc.NewKeyService(store, coldCache, masterKey, time.Hour, nil)
	require.NoError(t, err)

	_, err = cold.GetMaterial(ctx, id)
	require.Error(t, err)
	var svcErr *cryptosvc.Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, cryptosvc.CodeKeyExpired, svcErr.Code)
}

func TestDeleteRemovesFromStoreAndCache(t *testing.T) {
	ctx := context.Background()
	ks, store := newTestKeyService(t)

	id, err := ks.Generate(ctx, cryptosvc.GenerateParams{Namespace: "ns1", Algorithm: cryptosvc.AlgAES256GCM})
	require.NoError(t, err)

	require.NoError(t, ks.Delete(ctx, id))

	exists, err := store.Exists(ctx, id)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = ks.GetMaterial(ctx, id)
	assert.Error(t, err)
}

func TestListFiltersByNamespacePrefix(t *testing.T) {
	ctx := context.Background()
	ks, _ := newTestKeyService(t)

	_, err := ks.Generate(ctx, cryptosvc.GenerateParams{Namespace: "team-a", Algorithm: cryptosvc.AlgAES256GCM})
	require.NoError(t, err)
	_, err = ks.Generate(ctx, cryptosvc.GenerateParams{Namespace: "team-b", Algorithm: cryptosvc.AlgAES256GCM})
	require.NoError(t, err)

	ids, err := ks.List(ctx, "team-a")
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, "team-a", ids[0].Namespace)
}

func TestGenerateRejectsInvalidAlgorithm(t *testing.T) {
	ctx := context.Background()
	ks, _ := newTestKeyService(t)

	_, err := ks.Generate(ctx, cryptosvc.GenerateParams{Namespace: "ns1", Algorithm: cryptosvc.Algorithm("bogus")})
	require.Error(t, err)
}

func TestNewKeyServiceRejectsShortMasterKey(t *testing.T) {
	store := persist.NewMemoryStore()
	c, err := cache.NewTwoTier(cache.Config{LocalSize: 8})
	require.NoError(t, err)

	_, err = cryptosvc.NewKeyService(store, c, make([]byte, 16), time.Hour, nil)
	assert.Error(t, err)
}
