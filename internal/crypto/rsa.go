package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"fmt"
	"hash"
)

// HashAlgorithm selects the hash (and, for OAEP, its paired MGF1 hash) used
// by an RSA operation.
type HashAlgorithm string

const (
	HashSHA256 HashAlgorithm = "SHA-256"
	HashSHA384 HashAlgorithm = "SHA-384"
	HashSHA512 HashAlgorithm = "SHA-512"
)

func (h HashAlgorithm) new() hash.Hash {
	switch h {
	case HashSHA384:
		return sha512.New384()
	case HashSHA512:
		return sha512.New()
	default:
		return sha256.New()
	}
}

func (h HashAlgorithm) cryptoHash() crypto.Hash {
	switch h {
	case HashSHA384:
		return crypto.SHA384
	case HashSHA512:
		return crypto.SHA512
	default:
		return crypto.SHA256
	}
}

// GenerateRSAKeyPair generates a fresh RSA private key of the given modulus
// size in bits (one of 2048, 3072, 4096).
func GenerateRSAKeyPair(bits int) (*rsa.PrivateKey, error) {
	if err := ValidateRSAKeyBits(bits); err != nil {
		return nil, err
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}
	return key, nil
}

// RSAOAEPMaxPlaintext returns the largest plaintext OAEP can encrypt under a
// key of the given modulus size with hash h: key_bytes - 2*hash_bytes - 2.
func RSAOAEPMaxPlaintext(keyBits int, h HashAlgorithm) int {
	keyBytes := keyBits / 8
	hashBytes := h.new().Size()
	return keyBytes - 2*hashBytes - 2
}

// RSAOAEPEncrypt encrypts plaintext under pub with OAEP, using h for both
// the hash and its MGF1 partner. Plaintext exceeding the OAEP bound yields a
// size error without any partial output.
func RSAOAEPEncrypt(plaintext []byte, pub *rsa.PublicKey, h HashAlgorithm) ([]byte, error) {
	maxLen := RSAOAEPMaxPlaintext(pub.N.BitLen(), h)
	if len(plaintext) > maxLen {
		return nil, sizeErr("plaintext", "exceeds OAEP bound for this key and hash")
	}
	ciphertext, err := rsa.EncryptOAEP(h.new(), rand.Reader, pub, plaintext, nil)
	if err != nil {
		return nil, fmt.Errorf("oaep encrypt: %w", err)
	}
	return ciphertext, nil
}

// RSAOAEPDecrypt reverses RSAOAEPEncrypt. Any OAEP padding or hash mismatch
// surfaces as ErrIntegrity, never a description of which check failed.
func RSAOAEPDecrypt(ciphertext []byte, priv *rsa.PrivateKey, h HashAlgorithm) ([]byte, error) {
	plaintext, err := rsa.DecryptOAEP(h.new(), rand.Reader, priv, ciphertext, nil)
	if err != nil {
		return nil, ErrIntegrity
	}
	return plaintext, nil
}

// VerifyOutcome is the three-way result of a signature verification: the
// service never collapses "cryptographically invalid" into an error, only
// an internal failure (e.g. a malformed key) or an input the validator
// rejects (an oversize signature) becomes one.
type VerifyOutcome int

const (
	VerifyValid VerifyOutcome = iota
	VerifyInvalid
)

// RSAPSSSign signs data under priv with PSS, salt length equal to the hash
// size.
func RSAPSSSign(data []byte, priv *rsa.PrivateKey, h HashAlgorithm) ([]byte, error) {
	digest := hashSum(h, data)
	sig, err := rsa.SignPSS(rand.Reader, priv, h.cryptoHash(), digest, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       h.cryptoHash(),
	})
	if err != nil {
		return nil, fmt.Errorf("pss sign: %w", err)
	}
	return sig, nil
}

// RSAPSSVerify checks sig over data against pub. It returns (VerifyInvalid,
// nil) for a cryptographically invalid signature and (_, error) only for an
// internal failure distinct from signature validity (spec §4.2's
// three-outcome contract) or for a signature longer than
// MaxSignatureBytes, which is rejected with its *ValidationError.
func RSAPSSVerify(data, sig []byte, pub *rsa.PublicKey, h HashAlgorithm) (VerifyOutcome, error) {
	if err := ValidateSignature(sig); err != nil {
		return VerifyInvalid, err
	}
	digest := hashSum(h, data)
	err := rsa.VerifyPSS(pub, h.cryptoHash(), digest, sig, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       h.cryptoHash(),
	})
	if err != nil {
		return VerifyInvalid, nil
	}
	return VerifyValid, nil
}

func hashSum(h HashAlgorithm, data []byte) []byte {
	hh := h.new()
	hh.Write(data)
	return hh.Sum(nil)
}

// MarshalPKCS8 serializes an RSA or ECDSA private key to DER PKCS#8, the
// format in which WrappedKey.Ciphertext stores asymmetric key material
// before master-key sealing.
func MarshalPKCS8(key crypto.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal pkcs8: %w", err)
	}
	return der, nil
}

// ParsePKCS8 is the inverse of MarshalPKCS8.
func ParsePKCS8(der []byte) (crypto.PrivateKey, error) {
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse pkcs8: %w", err)
	}
	return key, nil
}
