package cache

import (
	"context"
	"time"

	"southwinds.dev/cryptosvc/collaborators/cacheclient"
	"southwinds.dev/cryptosvc/collaborators/logging"
	"southwinds.dev/cryptosvc/internal/crypto"
	"southwinds.dev/cryptosvc/internal/secure"
)

// TwoTier is the key cache described by spec.md §4.5: a process-local LRU
// (tier 1) checked first, falling back to an optional remote tier (tier 2)
// whose values are sealed under a cache-local AES-256-GCM key before they
// ever leave the process, so a compromised remote tier never exposes raw
// key material.
type TwoTier struct {
	local     *localTier
	remote    cacheclient.Client
	sealKey   []byte
	ttl       time.Duration
	logClient logging.Client
}

// Config configures a TwoTier cache.
type Config struct {
	LocalSize int
	Remote    cacheclient.Client
	SealKey   []byte
	TTL       time.Duration
	Logger    logging.Client
}

// NewTwoTier builds a TwoTier cache. Remote and Logger default to no-ops
// when left nil, so a TwoTier with only a local tier is a valid
// configuration.
func NewTwoTier(cfg Config) (*TwoTier, error) {
	local, err := newLocalTier(cfg.LocalSize)
	if err != nil {
		return nil, err
	}
	remote := cfg.Remote
	if remote == nil {
		remote = cacheclient.NoopClient{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NoopClient{}
	}
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &TwoTier{local: local, remote: remote, sealKey: cfg.SealKey, ttl: ttl, logClient: logger}, nil
}

// Get returns the cached key material for key, checking the local tier
// first and the remote tier second. A remote-tier error is logged at debug
// level and treated as a miss, never returned to the caller.
func (c *TwoTier) Get(ctx context.Context, key string) (*secure.Buffer, bool) {
	if buf, ok := c.local.get(key); ok {
		return buf, true
	}

	sealed, found, err := c.remote.Get(ctx, key)
	if err != nil {
		c.logClient.Log(logging.LevelDebug, "cache remote get failed", "", map[string]any{"key": key, "error": err.Error()})
		return nil, false
	}
	if !found {
		return nil, false
	}

	plaintext, err := c.unseal(sealed)
	if err != nil {
		c.logClient.Log(logging.LevelDebug, "cache remote value unseal failed", "", map[string]any{"key": key, "error": err.Error()})
		return nil, false
	}
	buf := secure.NewBufferFromBytes(plaintext)
	c.local.set(key, buf)
	return buf, true
}

// Set populates both tiers. The local tier always receives the plaintext
// buffer; the remote tier only receives it sealed, and only if a seal key
// is configured — without one, the remote tier is skipped entirely rather
// than risk storing plaintext off-process.
func (c *TwoTier) Set(ctx context.Context, key string, buf *secure.Buffer) {
	c.local.set(key, buf)

	if len(c.sealKey) == 0 {
		return
	}
	sealed, err := c.seal(buf.Bytes())
	if err != nil {
		c.logClient.Log(logging.LevelDebug, "cache seal for remote tier failed", "", map[string]any{"key": key, "error": err.Error()})
		return
	}
	if err := c.remote.Set(ctx, key, sealed, c.ttl); err != nil {
		c.logClient.Log(logging.LevelDebug, "cache remote set failed", "", map[string]any{"key": key, "error": err.Error()})
	}
}

// Close wipes every surviving tier-1 buffer and closes the remote client.
// Registered with the lifecycle coordinator so shutdown never leaves key
// material sitting in the local LRU.
func (c *TwoTier) Close() error {
	c.local.purge()
	return c.remote.Close()
}

// Invalidate removes key from both tiers.
func (c *TwoTier) Invalidate(ctx context.Context, key string) {
	c.local.remove(key)
	if err := c.remote.Del(ctx, key); err != nil {
		c.logClient.Log(logging.LevelDebug, "cache remote delete failed", "", map[string]any{"key": key, "error": err.Error()})
	}
}

func (c *TwoTier) seal(plaintext []byte) ([]byte, error) {
	ciphertext, iv, tag, err := crypto.GCMEncrypt(plaintext, c.sealKey, nil)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(iv)+len(tag)+len(ciphertext))
	out = append(out, iv...)
	out = append(out, tag...)
	out = append(out, ciphertext...)
	return out, nil
}

func (c *TwoTier) unseal(sealed []byte) ([]byte, error) {
	const ivLen = 12
	const tagLen = 16
	if len(sealed) < ivLen+tagLen {
		return nil, crypto.ErrIntegrity
	}
	iv := sealed[:ivLen]
	tag := sealed[ivLen : ivLen+tagLen]
	ciphertext := sealed[ivLen+tagLen:]
	return crypto.GCMDecrypt(ciphertext, c.sealKey, iv, tag, nil)
}
