// Package cache implements the two-tier key cache (spec §4.5): a
// process-local LRU of decrypted key material, backed optionally by a
// remote tier holding pre-encrypted copies. Cache misses and cache errors
// are never fatal — the key service always has the store as ground truth.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"southwinds.dev/cryptosvc/internal/secure"
)

// localTier is the process-local tier 1 cache: an LRU of secure.Buffer
// values, wiped on eviction so material never lingers in freed memory.
type localTier struct {
	cache *lru.Cache[string, *secure.Buffer]
}

func newLocalTier(size int) (*localTier, error) {
	t := &localTier{}
	c, err := lru.NewWithEvict[string, *secure.Buffer](size, func(_ string, value *secure.Buffer) {
		value.Destroy()
	})
	if err != nil {
		return nil, err
	}
	t.cache = c
	return t, nil
}

func (t *localTier) get(key string) (*secure.Buffer, bool) {
	buf, ok := t.cache.Get(key)
	if !ok || buf.Destroyed() {
		return nil, false
	}
	return buf, true
}

func (t *localTier) set(key string, buf *secure.Buffer) {
	t.cache.Add(key, buf)
}

func (t *localTier) remove(key string) {
	if buf, ok := t.cache.Peek(key); ok {
		buf.Destroy()
	}
	t.cache.Remove(key)
}

func (t *localTier) purge() {
	t.cache.Purge()
}
