package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"southwinds.dev/cryptosvc/internal/secure"
)

type fakeRemote struct {
	mu    sync.Mutex
	store map[string][]byte
	fail  bool
}

func newFakeRemote() *fakeRemote { return &fakeRemote{store: make(map[string][]byte)} }

func (f *fakeRemote) Get(_ context.Context, key string) ([]byte, bool, error) {
	if f.fail {
		return nil, false, assert.AnError
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.store[key]
	return v, ok, nil
}

func (f *fakeRemote) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if f.fail {
		return assert.AnError
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store[key] = value
	return nil
}

func (f *fakeRemote) Del(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.store, key)
	return nil
}

func (f *fakeRemote) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.store[key]
	return ok, nil
}

func (f *fakeRemote) Close() error { return nil }

func TestTwoTierLocalHit(t *testing.T) {
	ctx := context.Background()
	c, err := NewTwoTier(Config{LocalSize: 8})
	require.NoError(t, err)

	buf := secure.NewBufferFromBytes([]byte("secret-key-material"))
	c.Set(ctx, "k1", buf)

	got, ok := c.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, buf.Bytes(), got.Bytes())
}

func TestTwoTierMissReturnsFalse(t *testing.T) {
	c, err := NewTwoTier(Config{LocalSize: 8})
	require.NoError(t, err)

	_, ok := c.Get(context.Background(), "missing")
	assert.False(t, ok)
}

func TestTwoTierRemoteTierRoundTrip(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	sealKey := make([]byte, 32)
	c, err := NewTwoTier(Config{LocalSize: 8, Remote: remote, SealKey: sealKey})
	require.NoError(t, err)

	buf := secure.NewBufferFromBytes([]byte("0123456789abcdef"))
	c.Set(ctx, "k2", buf)

	// Evict from local tier directly to force a remote-tier fetch.
	c.local.remove("k2")

	got, ok := c.Get(ctx, "k2")
	require.True(t, ok)
	assert.Equal(t, []byte("0123456789abcdef"), got.Bytes())
}

func TestTwoTierRemoteFailureIsNeverFatal(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	remote.fail = true
	sealKey := make([]byte, 32)
	c, err := NewTwoTier(Config{LocalSize: 8, Remote: remote, SealKey: sealKey})
	require.NoError(t, err)

	buf := secure.NewBufferFromBytes([]byte("value"))
	assert.NotPanics(t, func() { c.Set(ctx, "k3", buf) })

	c.local.remove("k3")
	_, ok := c.Get(ctx, "k3")
	assert.False(t, ok)
}

func TestTwoTierInvalidateRemovesBothTiers(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	sealKey := make([]byte, 32)
	c, err := NewTwoTier(Config{LocalSize: 8, Remote: remote, SealKey: sealKey})
	require.NoError(t, err)

	buf := secure.NewBufferFromBytes([]byte("value"))
	c.Set(ctx, "k4", buf)
	c.Invalidate(ctx, "k4")

	_, ok := c.Get(ctx, "k4")
	assert.False(t, ok)

	exists, err := remote.Exists(ctx, "k4")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestTwoTierWithoutSealKeySkipsRemote(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	c, err := NewTwoTier(Config{LocalSize: 8, Remote: remote})
	require.NoError(t, err)

	buf := secure.NewBufferFromBytes([]byte("value"))
	c.Set(ctx, "k5", buf)

	exists, err := remote.Exists(ctx, "k5")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalTierEvictionDestroysBuffer(t *testing.T) {
	tier, err := newLocalTier(1)
	require.NoError(t, err)

	bufA := secure.NewBufferFromBytes([]byte("a"))
	bufB := secure.NewBufferFromBytes([]byte("b"))
	tier.set("a", bufA)
	tier.set("b", bufB) // evicts "a"

	assert.True(t, bufA.Destroyed())
	_, ok := tier.get("a")
	assert.False(t, ok)
}
