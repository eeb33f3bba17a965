package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
)

// HybridEncryptedKeySize is the size in bytes of the freshly generated
// AES-256 key every hybrid encryption wraps.
const HybridEncryptedKeySize = 32

// HybridEncrypt generates a fresh 256-bit AES key, seals plaintext under it
// with AES-256-GCM, and wraps that key under the recipient's RSA public key
// with OAEP.
func HybridEncrypt(plaintext []byte, recipient *rsa.PublicKey, h HashAlgorithm) (wrappedKey, ciphertext, iv, tag []byte, err error) {
	dek := make([]byte, HybridEncryptedKeySize)
	if _, err = rand.Read(dek); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("generate dek: %w", err)
	}
	ciphertext, iv, tag, err = GCMEncrypt(plaintext, dek, nil)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	wrappedKey, err = RSAOAEPEncrypt(dek, recipient, h)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return wrappedKey, ciphertext, iv, tag, nil
}

// HybridDecrypt reverses HybridEncrypt: it unwraps the AES key with the
// recipient's private key, then opens the AES-256-GCM payload under it. An
// unwrapped key whose size is not 32 bytes is rejected before it is ever
// used to attempt decryption.
func HybridDecrypt(wrappedKey, ciphertext, iv, tag []byte, priv *rsa.PrivateKey, h HashAlgorithm) ([]byte, error) {
	dek, err := RSAOAEPDecrypt(wrappedKey, priv, h)
	if err != nil {
		return nil, err
	}
	if len(dek) != HybridEncryptedKeySize {
		return nil, ErrIntegrity
	}
	return GCMDecrypt(ciphertext, dek, iv, tag, nil)
}
