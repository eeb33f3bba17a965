// Package secure owns plaintext key and secret material for the lifetime of
// a single operation or cache entry. Every Buffer is backed by a memguard
// enclave: its pages are locked against swap on creation and the contents
// are overwritten with zero, in a way the compiler cannot optimize away,
// when the buffer is destroyed.
package secure

import (
	"sync"

	"github.com/awnumar/memguard"
)

func init() {
	// Purge all locked buffers when the process receives an interrupt
	// (os.Interrupt) before it exits, so plaintext key material is never
	// left in a core dump.
	memguard.CatchInterrupt()
}

// Buffer is a length-owning container of sensitive bytes. It is not
// implicitly copyable: callers must go through Clone to duplicate one,
// which makes accidental duplication into a log line or accumulator
// impossible to do by accident.
type Buffer struct {
	mu      sync.RWMutex
	locked  *memguard.LockedBuffer
	destroyed bool
}

// NewBuffer allocates a zero-filled, page-locked buffer of n bytes.
func NewBuffer(n int) *Buffer {
	return &Buffer{locked: memguard.NewBuffer(n)}
}

// NewBufferFromBytes takes ownership of b: the returned Buffer's contents
// are copied into locked memory and b is wiped in place before returning,
// so no unprotected copy of the material survives the call.
func NewBufferFromBytes(b []byte) *Buffer {
	buf := &Buffer{locked: memguard.NewBufferFromBytes(b)}
	memguard.WipeBytes(b)
	return buf
}

// Bytes returns a borrowed view over the buffer's contents. The slice is
// valid only until the next call to Destroy; it must never be retained
// beyond the caller's immediate use or copied into an unprotected
// container.
func (b *Buffer) Bytes() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.destroyed {
		return nil
	}
	return b.locked.Bytes()
}

// Len returns the buffer's length, or 0 if it has been destroyed.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.destroyed {
		return 0
	}
	return b.locked.Size()
}

// Clone returns an independent copy backed by its own locked memory. Use
// this, never a raw byte copy, whenever a buffer's contents need to outlive
// or be shared beyond the original's owner (e.g. moving a value into a
// cache tier).
func (b *Buffer) Clone() *Buffer {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.destroyed {
		return NewBuffer(0)
	}
	out := memguard.NewBuffer(b.locked.Size())
	copy(out.Bytes(), b.locked.Bytes())
	return &Buffer{locked: out}
}

// Equal performs a constant-time comparison of the two buffers' contents,
// suitable for tag/MAC comparisons that must not leak timing information.
func (b *Buffer) Equal(other *Buffer) bool {
	if b == nil || other == nil {
		return b == other
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	other.mu.RLock()
	defer other.mu.RUnlock()
	if b.destroyed || other.destroyed {
		return false
	}
	return b.locked.EqualTo(other.locked.Bytes())
}

// Destroy overwrites the buffer's memory with zero and unlocks its pages.
// It is idempotent: calling it more than once, or on an already-destroyed
// buffer, is a no-op.
func (b *Buffer) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return
	}
	b.locked.Destroy()
	b.destroyed = true
}

// Destroyed reports whether Destroy has already run.
func (b *Buffer) Destroyed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.destroyed
}
