package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

// ErrIntegrity is returned when a ciphertext fails to open: a torn
// ciphertext, a flipped GCM tag bit, a mismatched aad, bad CBC padding or
// length, or an OAEP decryption failure. It never indicates which of those
// was the cause.
var ErrIntegrity = errors.New("data integrity verification failed")

// GCMEncrypt seals plaintext under key with a fresh random 96-bit IV,
// returning ciphertext and a 128-bit tag. aad, if non-nil, is bound to the
// ciphertext and must be supplied unchanged to GCMDecrypt.
func GCMEncrypt(plaintext, key, aad []byte) (ciphertext, iv, tag []byte, err error) {
	if err := ValidatePlaintext(len(plaintext)); err != nil {
		return nil, nil, nil, err
	}
	if err := ValidateAAD(len(aad)); err != nil {
		return nil, nil, nil, err
	}
	if err := ValidateAESKey(key); err != nil {
		return nil, nil, nil, err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, nil, err
	}
	iv = make([]byte, GCMIVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, nil, fmt.Errorf("generate iv: %w", err)
	}
	sealed := gcm.Seal(nil, iv, plaintext, aad)
	ct := sealed[:len(sealed)-gcm.Overhead()]
	t := sealed[len(sealed)-gcm.Overhead():]
	return ct, iv, t, nil
}

// GCMEncryptWithIV is the explicit-IV variant used only to reproduce
// deterministic test vectors. Production code must always go through
// GCMEncrypt, which sources the IV from the CSPRNG.
func GCMEncryptWithIV(plaintext, key, iv, aad []byte) (ciphertext, tag []byte, err error) {
	if err := ValidatePlaintext(len(plaintext)); err != nil {
		return nil, nil, err
	}
	if err := ValidateAAD(len(aad)); err != nil {
		return nil, nil, err
	}
	if err := ValidateAESKey(key); err != nil {
		return nil, nil, err
	}
	if err := ValidateGCMIV(iv); err != nil {
		return nil, nil, err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	sealed := gcm.Seal(nil, iv, plaintext, aad)
	return sealed[:len(sealed)-gcm.Overhead()], sealed[len(sealed)-gcm.Overhead():], nil
}

// GCMDecrypt opens a ciphertext produced by GCMEncrypt/GCMEncryptWithIV. Any
// mismatch among ciphertext, iv, tag, or aad yields the single opaque
// ErrIntegrity; there is no way to distinguish which field was wrong.
func GCMDecrypt(ciphertext, key, iv, tag, aad []byte) ([]byte, error) {
	if err := ValidateCiphertext(len(ciphertext)); err != nil {
		return nil, err
	}
	if err := ValidateAAD(len(aad)); err != nil {
		return nil, err
	}
	if err := ValidateAESKey(key); err != nil {
		return nil, err
	}
	if err := ValidateGCMIV(iv); err != nil {
		return nil, err
	}
	if err := ValidateGCMTag(tag); err != nil {
		return nil, err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)
	plaintext, err := gcm.Open(nil, iv, sealed, aad)
	if err != nil {
		return nil, ErrIntegrity
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithTagSize(block, GCMTagSize)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return gcm, nil
}

// CBCEncrypt encrypts plaintext under key with PKCS#7 padding and a fresh
// random 128-bit IV. CBC provides confidentiality only: it is retained for
// compatibility with existing ciphertexts, never recommended for new data.
func CBCEncrypt(plaintext, key []byte) (ciphertext, iv []byte, err error) {
	if err := ValidatePlaintext(len(plaintext)); err != nil {
		return nil, nil, err
	}
	if err := ValidateAESKey(key); err != nil {
		return nil, nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("new aes cipher: %w", err)
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	iv = make([]byte, CBCIVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, fmt.Errorf("generate iv: %w", err)
	}
	ciphertext = make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return ciphertext, iv, nil
}

// CBCDecrypt reverses CBCEncrypt. It validates the ciphertext length is a
// block-size multiple before touching any bytes, and returns ErrIntegrity
// (not a detailed padding description) when the PKCS#7 padding is invalid,
// so a padding-oracle cannot distinguish "bad padding" from "bad key".
func CBCDecrypt(ciphertext, key, iv []byte) ([]byte, error) {
	if err := ValidateCiphertext(len(ciphertext)); err != nil {
		return nil, err
	}
	if err := ValidateAESKey(key); err != nil {
		return nil, err
	}
	if err := ValidateCBCIV(iv); err != nil {
		return nil, err
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrIntegrity
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new aes cipher: %w", err)
	}
	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)
	plaintext, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		return nil, ErrIntegrity
	}
	return plaintext, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(append([]byte{}, data...), padding...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	n := len(data)
	if n == 0 || n%blockSize != 0 {
		return nil, errors.New("invalid padded length")
	}
	padLen := int(data[n-1])
	if padLen == 0 || padLen > blockSize || padLen > n {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[n-padLen:] {
		if int(b) != padLen {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:n-padLen], nil
}
