package cryptosvc

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"southwinds.dev/cryptosvc/internal/crypto"
	"southwinds.dev/cryptosvc/internal/secure"
)

// KeyStore is the persistence contract the key service depends on. Any
// type satisfying it — persist.MemoryStore, persist.FileSystemStore,
// persist.S3Store — can back a KeyService without this package importing
// persist, since Go interface satisfaction needs no shared import.
type KeyStore interface {
	Store(ctx context.Context, id KeyId, wrapped WrappedKey) error
	Retrieve(ctx context.Context, id KeyId) (WrappedKey, error)
	Remove(ctx context.Context, id KeyId) error
	Exists(ctx context.Context, id KeyId) (bool, error)
	List(ctx context.Context, namespacePrefix string) ([]KeyId, error)
	UpdateMetadata(ctx context.Context, id KeyId, meta KeyMetadata) error
}

// KeyCache is the caching contract the key service depends on; cache.TwoTier
// satisfies it the same way persist stores satisfy KeyStore.
type KeyCache interface {
	Get(ctx context.Context, key string) (*secure.Buffer, bool)
	Set(ctx context.Context, key string, buf *secure.Buffer)
	Invalidate(ctx context.Context, key string)
}

// GenerateParams are the inputs to KeyService.Generate.
type GenerateParams struct {
	Namespace         string
	Algorithm         Algorithm
	OwnerService      string
	Validity          time.Duration
	AllowedOperations []Operation
}

// KeyService implements the key lifecycle (spec §4.6): generation,
// rotation, deprecation, metadata lookup, material retrieval, deletion,
// and enumeration. Private key material never leaves GetMaterial.
type KeyService struct {
	store           KeyStore
	cache           KeyCache
	masterKey       []byte
	defaultValidity time.Duration
	registry        Registry
	now             func() time.Time
}

// Registry is the subset of observability.Registry the key service records
// against. Declared locally so this package need not import observability.
type Registry interface {
	RecordError(code string)
}

// NewKeyService builds a KeyService. masterKey must be 32 bytes; it wraps
// and unwraps every WrappedKey this service persists and is never itself
// stored or cached.
func NewKeyService(store KeyStore, cache KeyCache, masterKey []byte, defaultValidity time.Duration, registry Registry) (*KeyService, error) {
	if len(masterKey) != 32 {
		return nil, fmt.Errorf("key service: master key must be 32 bytes, got %d", len(masterKey))
	}
	if defaultValidity <= 0 {
		defaultValidity = 365 * 24 * time.Hour
	}
	return &KeyService{
		store:           store,
		cache:           cache,
		masterKey:       masterKey,
		defaultValidity: defaultValidity,
		registry:        registry,
		now:             time.Now,
	}, nil
}

// Generate creates fresh key material for params.Algorithm: a CSPRNG'd
// symmetric key, or a freshly generated RSA/ECDSA private key for
// asymmetric algorithms. The new key starts Active and is wrapped, stored,
// and cached before its identifier is returned.
func (s *KeyService) Generate(ctx context.Context, params GenerateParams) (KeyId, error) {
	if !params.Algorithm.Valid() {
		return KeyId{}, NewError(CodeInvalidInput, "")
	}
	plaintext, keyType, err := generateKeyMaterial(params.Algorithm)
	if err != nil {
		s.recordError(CodeKeyGenerationFailed)
		return KeyId{}, Wrap(CodeKeyGenerationFailed, "", err)
	}

	id := NewKeyId(params.Namespace)
	validity := params.Validity
	if validity <= 0 {
		validity = s.defaultValidity
	}
	createdAt := s.now()
	meta := KeyMetadata{
		ID:                id,
		Algorithm:         params.Algorithm,
		Type:              keyType,
		State:             KeyStateActive,
		CreatedAt:         createdAt,
		ExpiresAt:         createdAt.Add(validity),
		OwnerService:      params.OwnerService,
		AllowedOperations: params.AllowedOperations,
	}

	if err := s.persist(ctx, id, plaintext, meta); err != nil {
		s.recordError(CodeKeyGenerationFailed)
		return KeyId{}, err
	}
	s.cache.Set(ctx, id.String(), secure.NewBufferFromBytes(plaintext))
	return id, nil
}

// Rotate generates a replacement key for an Active id: same namespace and
// algorithm, an incremented version, previous_version_id pointing at the
// old key. The old key is deprecated only after the new record is durably
// stored; if deprecation fails, the new record is removed so the store
// never holds two Active versions of the same lineage.
func (s *KeyService) Rotate(ctx context.Context, oldID KeyId) (KeyId, error) {
	oldWrapped, err := s.store.Retrieve(ctx, oldID)
	if err != nil {
		s.recordError(CodeKeyNotFound)
		return KeyId{}, Wrap(CodeKeyNotFound, "", err)
	}
	if oldWrapped.Metadata.State != KeyStateActive {
		s.recordError(CodeKeyInvalidState)
		return KeyId{}, NewError(CodeKeyInvalidState, "")
	}

	plaintext, keyType, err := generateKeyMaterial(oldWrapped.Metadata.Algorithm)
	if err != nil {
		s.recordError(CodeKeyGenerationFailed)
		return KeyId{}, Wrap(CodeKeyGenerationFailed, "", err)
	}

	newID := oldID.Next()
	now := s.now()
	newMeta := KeyMetadata{
		ID:                newID,
		Algorithm:         oldWrapped.Metadata.Algorithm,
		Type:              keyType,
		State:             KeyStateActive,
		CreatedAt:         now,
		ExpiresAt:         now.Add(s.defaultValidity),
		RotatedAt:         &now,
		PreviousVersionID: &oldID,
		OwnerService:      oldWrapped.Metadata.OwnerService,
		AllowedOperations: oldWrapped.Metadata.AllowedOperations,
	}

	if err := s.persist(ctx, newID, plaintext, newMeta); err != nil {
		s.recordError(CodeKeyRotationFailed)
		return KeyId{}, err
	}

	oldWrapped.Metadata.State = KeyStateDeprecated
	if err := s.store.UpdateMetadata(ctx, oldID, oldWrapped.Metadata); err != nil {
		_ = s.store.Remove(ctx, newID)
		s.cache.Invalidate(ctx, newID.String())
		s.recordError(CodeKeyRotationFailed)
		return KeyId{}, Wrap(CodeKeyRotationFailed, "", err)
	}

	s.cache.Invalidate(ctx, oldID.String())
	s.cache.Set(ctx, newID.String(), secure.NewBufferFromBytes(plaintext))
	return newID, nil
}

// Deprecate transitions an Active key to Deprecated. Any other source
// state is rejected as CodeKeyInvalidState.
func (s *KeyService) Deprecate(ctx context.Context, id KeyId) error {
	wrapped, err := s.store.Retrieve(ctx, id)
	if err != nil {
		s.recordError(CodeKeyNotFound)
		return Wrap(CodeKeyNotFound, "", err)
	}
	if !wrapped.Metadata.State.CanTransitionTo(KeyStateDeprecated) {
		s.recordError(CodeKeyInvalidState)
		return NewError(CodeKeyInvalidState, "")
	}
	wrapped.Metadata.State = KeyStateDeprecated
	if err := s.store.UpdateMetadata(ctx, id, wrapped.Metadata); err != nil {
		s.recordError(CodeKeyRotationFailed)
		return Wrap(CodeKeyRotationFailed, "", err)
	}
	return nil
}

// GetMetadata returns a key's metadata, always read from the store
// directly: metadata is never served from cache, so it is immediately
// consistent with the last Deprecate/Rotate/Delete call.
func (s *KeyService) GetMetadata(ctx context.Context, id KeyId) (KeyMetadata, error) {
	wrapped, err := s.store.Retrieve(ctx, id)
	if err != nil {
		s.recordError(CodeKeyNotFound)
		return KeyMetadata{}, Wrap(CodeKeyNotFound, "", err)
	}
	return wrapped.Metadata, nil
}

// GetMaterial resolves a key's decrypted material: cache-first, falling
// back to the store and unwrapping under the master key on a miss. A
// Destroyed key never produces material, and an expired key is rejected
// before its plaintext is ever decrypted. Both checks run on a cache miss;
// a cached entry is returned without consulting the stored metadata.
func (s *KeyService) GetMaterial(ctx context.Context, id KeyId) (*secure.Buffer, error) {
	if buf, ok := s.cache.Get(ctx, id.String()); ok {
		return buf, nil
	}

	wrapped, err := s.store.Retrieve(ctx, id)
	if err != nil {
		s.recordError(CodeKeyNotFound)
		return nil, Wrap(CodeKeyNotFound, "", err)
	}
	if wrapped.Metadata.State == KeyStateDestroyed {
		s.recordError(CodeKeyInvalidState)
		return nil, NewError(CodeKeyInvalidState, "")
	}
	if wrapped.Metadata.Expired(s.now()) {
		s.recordError(CodeKeyExpired)
		return nil, NewError(CodeKeyExpired, "")
	}

	plaintext, err := crypto.GCMDecrypt(wrapped.Ciphertext, s.masterKey, wrapped.IV, wrapped.Tag, nil)
	if err != nil {
		s.recordError(CodeIntegrityError)
		return nil, Wrap(CodeIntegrityError, "", err)
	}
	buf := secure.NewBufferFromBytes(plaintext)
	s.cache.Set(ctx, id.String(), buf)
	return buf, nil
}

// Delete invalidates the cache entry and removes a key's record from the
// store. It does not check state: callers that need a destruction grace
// period should Deprecate first and Delete once PendingDestruction has
// run its course (spec's state machine permits but does not mandate
// passing through PendingDestruction before Delete).
func (s *KeyService) Delete(ctx context.Context, id KeyId) error {
	s.cache.Invalidate(ctx, id.String())
	if err := s.store.Remove(ctx, id); err != nil {
		s.recordError(CodeKeyNotFound)
		return Wrap(CodeKeyNotFound, "", err)
	}
	return nil
}

// List enumerates key identifiers under namespacePrefix ("" for all
// namespaces), touching no key material.
func (s *KeyService) List(ctx context.Context, namespacePrefix string) ([]KeyId, error) {
	ids, err := s.store.List(ctx, namespacePrefix)
	if err != nil {
		s.recordError(CodeServiceUnavailable)
		return nil, Wrap(CodeServiceUnavailable, "", err)
	}
	return ids, nil
}

// persist wraps plaintext under the master key with a fresh IV and stores
// the resulting WrappedKey, zeroing plaintext's caller-owned copy only via
// the secure buffer placed in the cache by the calling method.
func (s *KeyService) persist(ctx context.Context, id KeyId, plaintext []byte, meta KeyMetadata) error {
	ciphertext, iv, tag, err := crypto.GCMEncrypt(plaintext, s.masterKey, nil)
	if err != nil {
		return Wrap(CodeEncryptionFailed, "", err)
	}
	wrapped := WrappedKey{
		Ciphertext: ciphertext,
		IV:         iv,
		Tag:        tag,
		KEKId:      "master",
		Metadata:   meta,
	}
	if err := s.store.Store(ctx, id, wrapped); err != nil {
		return Wrap(CodeKeyRotationFailed, "", err)
	}
	return nil
}

func (s *KeyService) recordError(code Code) {
	if s.registry != nil {
		s.registry.RecordError(string(code))
	}
}

// generateKeyMaterial produces fresh key bytes for algo: CSPRNG output for
// symmetric algorithms, a PKCS#8-encoded private key for RSA/ECDSA.
func generateKeyMaterial(algo Algorithm) ([]byte, KeyType, error) {
	if algo.IsSymmetric() {
		key := make([]byte, algo.KeyLenBytes())
		if _, err := rand.Read(key); err != nil {
			return nil, "", fmt.Errorf("generate symmetric key: %w", err)
		}
		return key, KeyTypeSymmetric, nil
	}

	switch {
	case algo == AlgRSA2048 || algo == AlgRSA3072 || algo == AlgRSA4096:
		priv, err := crypto.GenerateRSAKeyPair(algo.RSABits())
		if err != nil {
			return nil, "", err
		}
		der, err := crypto.MarshalPKCS8(priv)
		if err != nil {
			return nil, "", err
		}
		return der, KeyTypePrivate, nil
	case algo == AlgECDSAP256 || algo == AlgECDSAP384 || algo == AlgECDSAP521:
		priv, err := crypto.GenerateECDSAKeyPair(ecdsaCurveFor(algo))
		if err != nil {
			return nil, "", err
		}
		der, err := crypto.MarshalPKCS8(priv)
		if err != nil {
			return nil, "", err
		}
		return der, KeyTypePrivate, nil
	default:
		return nil, "", fmt.Errorf("generate key material: unsupported algorithm %q", algo)
	}
}

func ecdsaCurveFor(algo Algorithm) crypto.Curve {
	switch algo {
	case AlgECDSAP384:
		return crypto.CurveP384
	case AlgECDSAP521:
		return crypto.CurveP521
	default:
		return crypto.CurveP256
	}
}
