package cryptosvc

import (
	"fmt"
	"time"
)

// Config carries every construction-time parameter the core needs. The
// core itself reads no environment variables or files; the embedding
// façade is responsible for populating Config from whatever source it
// prefers (flags, env, a config file).
type Config struct {
	// MasterKey is the process-private key the key service uses to wrap
	// and unwrap key material at rest. It is never persisted or cached
	// and never appears in any serialized form of Config.
	MasterKey []byte `json:"-"`

	// CacheEncryptionKey seals values before they are handed to the
	// remote cache tier (spec §4.5); it is independent of MasterKey.
	CacheEncryptionKey []byte `json:"-"`

	// DefaultValidity is the lifetime assigned to a key generated
	// without an explicit validity period.
	DefaultValidity time.Duration

	// LocalCacheSize bounds the process-local LRU tier's entry count.
	LocalCacheSize int

	// RemoteCacheTTL is the TTL applied to entries written to the
	// remote cache tier.
	RemoteCacheTTL time.Duration

	// ShutdownTimeout bounds how long the lifecycle coordinator waits
	// for in-flight requests to drain before forcing shutdown.
	ShutdownTimeout time.Duration
}

// Option mutates a Config during construction.
type Option func(*Config)

// WithMasterKey sets the master wrapping key.
func WithMasterKey(key []byte) Option {
	return func(c *Config) { c.MasterKey = key }
}

// WithCacheEncryptionKey sets the key used to seal values for the remote
// cache tier.
func WithCacheEncryptionKey(key []byte) Option {
	return func(c *Config) { c.CacheEncryptionKey = key }
}

// WithDefaultValidity overrides the default key validity period.
func WithDefaultValidity(d time.Duration) Option {
	return func(c *Config) { c.DefaultValidity = d }
}

// WithLocalCacheSize overrides the process-local LRU tier's capacity.
func WithLocalCacheSize(n int) Option {
	return func(c *Config) { c.LocalCacheSize = n }
}

// WithShutdownTimeout overrides the lifecycle coordinator's drain timeout.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Config) { c.ShutdownTimeout = d }
}

// DefaultConfig returns a Config with sane defaults; callers still must
// supply a MasterKey via options or direct field assignment before it
// validates.
func DefaultConfig() Config {
	return Config{
		DefaultValidity: 365 * 24 * time.Hour,
		LocalCacheSize:  4096,
		RemoteCacheTTL:  10 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
	}
}

// NewConfig builds a Config from DefaultConfig with opts applied, and
// validates the result.
func NewConfig(opts ...Option) (Config, error) {
	c := DefaultConfig()
	for _, opt := range opts {
		opt(&c)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports a ConfigInvalid-flavored error when required fields are
// missing or out of range.
func (c Config) Validate() error {
	if len(c.MasterKey) != 32 {
		return fmt.Errorf("config: master key must be 32 bytes, got %d", len(c.MasterKey))
	}
	if c.DefaultValidity <= 0 {
		return fmt.Errorf("config: default validity must be positive")
	}
	if c.LocalCacheSize <= 0 {
		return fmt.Errorf("config: local cache size must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("config: shutdown timeout must be positive")
	}
	return nil
}
