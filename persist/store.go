// Package persist implements the key store (spec §4.4): persistence of
// WrappedKey records by KeyId, with namespaced enumeration. A Store never
// decrypts what it holds and never sees the master wrapping key.
package persist

import (
	"context"
	"sort"
	"strings"
	"sync"

	"southwinds.dev/cryptosvc"
)

// Store is the interface every key store backend implements. Stored
// records are immutable except via UpdateMetadata; concurrent access is
// serialized per-store.
type Store interface {
	Store(ctx context.Context, id cryptosvc.KeyId, wrapped cryptosvc.WrappedKey) error
	Retrieve(ctx context.Context, id cryptosvc.KeyId) (cryptosvc.WrappedKey, error)
	Remove(ctx context.Context, id cryptosvc.KeyId) error
	Exists(ctx context.Context, id cryptosvc.KeyId) (bool, error)
	List(ctx context.Context, namespacePrefix string) ([]cryptosvc.KeyId, error)
	UpdateMetadata(ctx context.Context, id cryptosvc.KeyId, meta cryptosvc.KeyMetadata) error
}

// ErrNotFound is returned by Retrieve/Remove/UpdateMetadata when no record
// exists for the given KeyId.
var ErrNotFound = &notFoundError{}

type notFoundError struct{}

func (*notFoundError) Error() string { return "key not found" }

// MemoryStore is an in-memory Store, primarily for tests: it never touches
// disk and is wiped when the process exits.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]cryptosvc.WrappedKey
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]cryptosvc.WrappedKey)}
}

func (s *MemoryStore) Store(_ context.Context, id cryptosvc.KeyId, wrapped cryptosvc.WrappedKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id.String()] = wrapped
	return nil
}

func (s *MemoryStore) Retrieve(_ context.Context, id cryptosvc.KeyId) (cryptosvc.WrappedKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id.String()]
	if !ok {
		return cryptosvc.WrappedKey{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) Remove(_ context.Context, id cryptosvc.KeyId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id.String()]; !ok {
		return ErrNotFound
	}
	delete(s.records, id.String())
	return nil
}

func (s *MemoryStore) Exists(_ context.Context, id cryptosvc.KeyId) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[id.String()]
	return ok, nil
}

func (s *MemoryStore) List(_ context.Context, namespacePrefix string) ([]cryptosvc.KeyId, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []cryptosvc.KeyId
	for _, rec := range s.records {
		if namespacePrefix == "" || strings.HasPrefix(rec.Metadata.ID.Namespace, namespacePrefix) {
			ids = append(ids, rec.Metadata.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (s *MemoryStore) UpdateMetadata(_ context.Context, id cryptosvc.KeyId, meta cryptosvc.KeyMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id.String()]
	if !ok {
		return ErrNotFound
	}
	rec.Metadata = meta
	s.records[id.String()] = rec
	return nil
}
