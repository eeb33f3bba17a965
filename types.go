// Package cryptosvc implements the cryptographic core of a network-accessible
// key management and crypto service: symmetric/asymmetric encryption, digital
// signatures, streaming file envelope encryption, and the lifecycle of the
// keys that back those operations. Callers never see raw key material; keys
// are referenced by the opaque KeyId defined in this file.
package cryptosvc

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// KeyId identifies a key uniquely within the service: a namespace (tenant
// isolation), a UUID, and a version that increases monotonically on
// rotation. Two KeyIds are equal iff all three fields match.
type KeyId struct {
	Namespace string
	UUID      string
	Version   int
}

// NewKeyId generates a fresh KeyId in the given namespace at version 1.
func NewKeyId(namespace string) KeyId {
	return KeyId{Namespace: namespace, UUID: uuid.NewString(), Version: 1}
}

// String renders the canonical "namespace:uuid:version" textual form.
func (k KeyId) String() string {
	return fmt.Sprintf("%s:%s:%d", k.Namespace, k.UUID, k.Version)
}

// ParseKeyId parses the canonical textual form produced by String. It
// rejects anything that does not have exactly three colon-separated fields,
// an empty namespace, a non-canonical UUID, or a non-positive version.
func ParseKeyId(s string) (KeyId, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return KeyId{}, fmt.Errorf("key id: expected 3 fields, got %d", len(parts))
	}
	namespace, rawUUID, rawVersion := parts[0], parts[1], parts[2]
	if namespace == "" {
		return KeyId{}, fmt.Errorf("key id: empty namespace")
	}
	if len(rawUUID) != 36 {
		return KeyId{}, fmt.Errorf("key id: uuid must be the 36-character hyphenated form")
	}
	parsedUUID, err := uuid.Parse(rawUUID)
	if err != nil {
		return KeyId{}, fmt.Errorf("key id: invalid uuid: %w", err)
	}
	version, err := strconv.Atoi(rawVersion)
	if err != nil || version <= 0 {
		return KeyId{}, fmt.Errorf("key id: invalid version %q", rawVersion)
	}
	return KeyId{Namespace: namespace, UUID: parsedUUID.String(), Version: version}, nil
}

// Next returns the KeyId for the following rotation: same namespace and
// uuid, version incremented by one. KeyService.Rotate uses it to name the
// replacement key, so every version in a rotation lineage shares one UUID.
func (k KeyId) Next() KeyId {
	return KeyId{Namespace: k.Namespace, UUID: k.UUID, Version: k.Version + 1}
}

// Algorithm is a tagged enumeration of every cryptographic algorithm the
// service supports. Each value determines key length, the partner hash (for
// ECDSA curves), and whether the algorithm is symmetric or asymmetric.
type Algorithm string

const (
	AlgAES128GCM  Algorithm = "AES-128-GCM"
	AlgAES256GCM  Algorithm = "AES-256-GCM"
	AlgAES128CBC  Algorithm = "AES-128-CBC"
	AlgAES256CBC  Algorithm = "AES-256-CBC"
	AlgRSA2048    Algorithm = "RSA-2048"
	AlgRSA3072    Algorithm = "RSA-3072"
	AlgRSA4096    Algorithm = "RSA-4096"
	AlgECDSAP256  Algorithm = "ECDSA-P256"
	AlgECDSAP384  Algorithm = "ECDSA-P384"
	AlgECDSAP521  Algorithm = "ECDSA-P521"
)

// KeyLenBytes returns the raw symmetric key length for AES algorithms, or 0
// for algorithms that are not symmetric.
func (a Algorithm) KeyLenBytes() int {
	switch a {
	case AlgAES128GCM, AlgAES128CBC:
		return 16
	case AlgAES256GCM, AlgAES256CBC:
		return 32
	default:
		return 0
	}
}

// RSABits returns the RSA modulus size in bits, or 0 for non-RSA algorithms.
func (a Algorithm) RSABits() int {
	switch a {
	case AlgRSA2048:
		return 2048
	case AlgRSA3072:
		return 3072
	case AlgRSA4096:
		return 4096
	default:
		return 0
	}
}

// IsSymmetric reports whether the algorithm operates on a single shared key.
func (a Algorithm) IsSymmetric() bool {
	switch a {
	case AlgAES128GCM, AlgAES256GCM, AlgAES128CBC, AlgAES256CBC:
		return true
	default:
		return false
	}
}

// IsAsymmetric reports whether the algorithm is an RSA or ECDSA keypair.
func (a Algorithm) IsAsymmetric() bool {
	return !a.IsSymmetric() && a.Valid()
}

// Valid reports whether a is one of the ten recognized algorithm tags.
func (a Algorithm) Valid() bool {
	switch a {
	case AlgAES128GCM, AlgAES256GCM, AlgAES128CBC, AlgAES256CBC,
		AlgRSA2048, AlgRSA3072, AlgRSA4096,
		AlgECDSAP256, AlgECDSAP384, AlgECDSAP521:
		return true
	default:
		return false
	}
}

// fileEnvelopeTag is the u16 on-wire tag for FileEnvelope headers (§6); it is
// independent of the Algorithm string values since the wire format predates
// and must survive any future string renaming of Algorithm constants.
func (a Algorithm) fileEnvelopeTag() uint16 {
	switch a {
	case AlgAES128GCM:
		return 1
	case AlgAES256GCM:
		return 2
	case AlgAES128CBC:
		return 3
	case AlgAES256CBC:
		return 4
	case AlgRSA2048:
		return 5
	case AlgRSA3072:
		return 6
	case AlgRSA4096:
		return 7
	case AlgECDSAP256:
		return 8
	case AlgECDSAP384:
		return 9
	case AlgECDSAP521:
		return 10
	default:
		return 0
	}
}

func algorithmFromFileEnvelopeTag(tag uint16) (Algorithm, bool) {
	switch tag {
	case 1:
		return AlgAES128GCM, true
	case 2:
		return AlgAES256GCM, true
	case 3:
		return AlgAES128CBC, true
	case 4:
		return AlgAES256CBC, true
	case 5:
		return AlgRSA2048, true
	case 6:
		return AlgRSA3072, true
	case 7:
		return AlgRSA4096, true
	case 8:
		return AlgECDSAP256, true
	case 9:
		return AlgECDSAP384, true
	case 10:
		return AlgECDSAP521, true
	default:
		return "", false
	}
}

// KeyState is the lifecycle state machine of a key. Active is the only
// state that permits encryption and new-use signing; Deprecated keys remain
// usable for decryption and verification. The only terminal transition is
// to Destroyed; every other transition is one-way forward.
type KeyState string

const (
	KeyStatePendingActivation KeyState = "PendingActivation"
	KeyStateActive            KeyState = "Active"
	KeyStateDeprecated        KeyState = "Deprecated"
	KeyStatePendingDestruction KeyState = "PendingDestruction"
	KeyStateDestroyed         KeyState = "Destroyed"
)

// CanTransitionTo reports whether moving from s to next is a legal
// forward-only transition.
func (s KeyState) CanTransitionTo(next KeyState) bool {
	order := map[KeyState]int{
		KeyStatePendingActivation:  0,
		KeyStateActive:             1,
		KeyStateDeprecated:         2,
		KeyStatePendingDestruction: 3,
		KeyStateDestroyed:          4,
	}
	from, ok1 := order[s]
	to, ok2 := order[next]
	if !ok1 || !ok2 {
		return false
	}
	if next == KeyStateDestroyed {
		return from < to
	}
	return to == from+1
}

// KeyType distinguishes what a KeyMetadata entry describes.
type KeyType string

const (
	KeyTypeSymmetric KeyType = "symmetric"
	KeyTypePublic    KeyType = "public"
	KeyTypePrivate   KeyType = "private"
)

// Operation is one of the allowed uses a key's metadata may be scoped to.
type Operation string

const (
	OpEncrypt Operation = "encrypt"
	OpDecrypt Operation = "decrypt"
	OpSign    Operation = "sign"
	OpVerify  Operation = "verify"
)

// KeyMetadata is the public, non-sensitive record describing a key: never
// the key material itself. Invariants: CreatedAt <= ExpiresAt; RotatedAt is
// set iff PreviousVersionID is set; only State == Active permits encryption
// or new-use signing.
type KeyMetadata struct {
	ID                KeyId
	Algorithm         Algorithm
	Type              KeyType
	State             KeyState
	CreatedAt         time.Time
	ExpiresAt         time.Time
	RotatedAt         *time.Time
	PreviousVersionID *KeyId
	OwnerService      string
	AllowedOperations []Operation
	UsageCount        uint64
}

// Allows reports whether op is present in AllowedOperations. An empty
// AllowedOperations set is treated as "all operations allowed" to preserve
// the behavior of keys generated without an explicit restriction.
func (m KeyMetadata) Allows(op Operation) bool {
	if len(m.AllowedOperations) == 0 {
		return true
	}
	for _, allowed := range m.AllowedOperations {
		if allowed == op {
			return true
		}
	}
	return false
}

// Expired reports whether m's validity window has elapsed as of now.
func (m KeyMetadata) Expired(now time.Time) bool {
	return now.After(m.ExpiresAt)
}

// WrappedKey is the persisted, at-rest form of a key: the raw key bytes (or
// DER-encoded private key, for asymmetric algorithms) sealed under the
// service's master wrapping key via AES-256-GCM. The master key itself never
// enters this struct or the store that persists it.
type WrappedKey struct {
	Ciphertext []byte
	IV         []byte
	Tag        []byte
	KEKId      string
	Metadata   KeyMetadata
}

// EncryptResult is the output of a symmetric encryption call. Tag is present
// only for AEAD modes (GCM); CBC encryptions leave it nil.
type EncryptResult struct {
	Ciphertext []byte
	IV         []byte
	Tag        []byte
}

// HybridResult is the output of hybrid (RSA-wrapped AES) encryption: an
// RSA-OAEP wrapped, freshly generated AES-256 key, plus the AES-256-GCM
// sealed payload under that key.
type HybridResult struct {
	WrappedSymmetricKey []byte
	Ciphertext          []byte
	IV                  []byte
	Tag                 []byte
}
