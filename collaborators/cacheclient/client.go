// Package cacheclient defines the remote cache collaborator contract used
// by the key cache's second tier, and a Redis-backed implementation of it.
package cacheclient

import (
	"context"
	"time"
)

// Client is the remote cache tier contract. Implementations must be safe
// for concurrent use. A timeout or connection failure on any method is
// reported as an error; callers treat it as a cache miss, never a fatal
// condition.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Close() error
}

// NoopClient discards every call and always reports a miss. Used when no
// remote tier is configured.
type NoopClient struct{}

func (NoopClient) Get(context.Context, string) ([]byte, bool, error)  { return nil, false, nil }
func (NoopClient) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (NoopClient) Del(context.Context, string) error                  { return nil }
func (NoopClient) Exists(context.Context, string) (bool, error)       { return false, nil }
func (NoopClient) Close() error                                       { return nil }
