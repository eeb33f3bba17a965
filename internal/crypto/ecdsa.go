package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
)

// Curve identifies an ECDSA curve. The hash used to sign/verify is fixed by
// the curve: P-256 pairs with SHA-256, P-384 with SHA-384, P-521 with
// SHA-512.
type Curve string

const (
	CurveP256 Curve = "P-256"
	CurveP384 Curve = "P-384"
	CurveP521 Curve = "P-521"
)

func (c Curve) ellipticCurve() elliptic.Curve {
	switch c {
	case CurveP384:
		return elliptic.P384()
	case CurveP521:
		return elliptic.P521()
	default:
		return elliptic.P256()
	}
}

// Hash returns the hash algorithm fixed for this curve.
func (c Curve) Hash() HashAlgorithm {
	switch c {
	case CurveP384:
		return HashSHA384
	case CurveP521:
		return HashSHA512
	default:
		return HashSHA256
	}
}

// GenerateECDSAKeyPair generates a fresh ECDSA private key on the given
// curve.
func GenerateECDSAKeyPair(curve Curve) (*ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(curve.ellipticCurve(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ecdsa key: %w", err)
	}
	return key, nil
}

// ECDSASign signs data under priv, hashing with the curve's fixed hash.
func ECDSASign(data []byte, priv *ecdsa.PrivateKey, curve Curve) ([]byte, error) {
	if err := ValidateSignData(len(data)); err != nil {
		return nil, err
	}
	digest := hashSum(curve.Hash(), data)
	sig, err := ecdsa.SignASN1(rand.Reader, priv, digest)
	if err != nil {
		return nil, fmt.Errorf("ecdsa sign: %w", err)
	}
	return sig, nil
}

// ECDSAVerify checks sig over data against pub, following the same
// three-outcome contract as RSAPSSVerify: a cryptographically invalid
// signature is (VerifyInvalid, nil), never an error. A signature longer
// than MaxSignatureBytes is rejected with its *ValidationError.
func ECDSAVerify(data, sig []byte, pub *ecdsa.PublicKey, curve Curve) (VerifyOutcome, error) {
	if err := ValidateSignature(sig); err != nil {
		return VerifyInvalid, err
	}
	digest := hashSum(curve.Hash(), data)
	if !ecdsa.VerifyASN1(pub, digest, sig) {
		return VerifyInvalid, nil
	}
	return VerifyValid, nil
}
