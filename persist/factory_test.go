package persist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStoreFromConfigMemory(t *testing.T) {
	store, err := NewStoreFromConfig(StoreConfig{Type: StoreTypeMemory})
	require.NoError(t, err)
	_, ok := store.(*MemoryStore)
	assert.True(t, ok)
}

func TestNewStoreFromConfigFileSystem(t *testing.T) {
	store, err := NewStoreFromConfig(StoreConfig{Type: StoreTypeFileSystem, BasePath: t.TempDir()})
	require.NoError(t, err)
	_, ok := store.(*FileSystemStore)
	assert.True(t, ok)
}

func TestNewStoreFromConfigFileSystemMissingPath(t *testing.T) {
	_, err := NewStoreFromConfig(StoreConfig{Type: StoreTypeFileSystem})
	assert.Error(t, err)
}

func TestNewStoreFromConfigUnknownType(t *testing.T) {
	_, err := NewStoreFromConfig(StoreConfig{Type: "bogus"})
	assert.Error(t, err)
}
