package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"

	"southwinds.dev/cryptosvc/internal/secure"
)

// Argon2id parameters for deriving the process-private master key from an
// operator passphrase when one is configured (see DeriveMasterKey).
const (
	ArgonTime    uint32 = 4
	ArgonMemory  uint32 = 128 * 1024
	ArgonThreads uint8  = 4
	ArgonKeyLen  uint32 = 32
	SaltSize            = 32
)

// DeriveMasterKey derives a 32-byte AES-256 key from passphrase and salt
// using Argon2id, returning it in a secure.Buffer so the derived bytes are
// never left in ordinary Go memory.
func DeriveMasterKey(passphrase []byte, salt []byte) *secure.Buffer {
	derived := argon2.IDKey(passphrase, salt, ArgonTime, ArgonMemory, ArgonThreads, ArgonKeyLen)
	return secure.NewBufferFromBytes(derived)
}

// DerivePBKDF2 derives a key of length keyLen from passphrase and salt using
// PBKDF2-HMAC-SHA256 with the given iteration count. Used for legacy
// master-key files that predate the Argon2id default.
func DerivePBKDF2(passphrase, salt []byte, iterations, keyLen int) *secure.Buffer {
	derived := pbkdf2.Key(passphrase, salt, iterations, keyLen, sha256.New)
	return secure.NewBufferFromBytes(derived)
}

// SealMasterKey encrypts a derived master key with ChaCha20-Poly1305 under
// a wrapping key, for at-rest storage of the master key material itself
// (e.g. a local master-key file) — independent of the AES-256-GCM sealing
// the key service applies to ordinary WrappedKey records.
func SealMasterKey(masterKey, wrappingKey []byte) (sealed []byte, err error) {
	aead, err := chacha20poly1305.New(wrappingKey)
	if err != nil {
		return nil, fmt.Errorf("new chacha20poly1305 cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext := aead.Seal(nil, nonce, masterKey, nil)
	out := make([]byte, 0, len(nonce)+len(ciphertext))
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

// OpenMasterKey reverses SealMasterKey.
func OpenMasterKey(sealed, wrappingKey []byte) (*secure.Buffer, error) {
	aead, err := chacha20poly1305.New(wrappingKey)
	if err != nil {
		return nil, fmt.Errorf("new chacha20poly1305 cipher: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return nil, ErrIntegrity
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrIntegrity
	}
	return secure.NewBufferFromBytes(plaintext), nil
}

// NewSalt generates a fresh cryptographically random salt of SaltSize
// bytes.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}
