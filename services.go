package cryptosvc

import (
	"context"
	gocrypto "crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"time"

	"southwinds.dev/cryptosvc/internal/crypto"
)

var errInvalidKeyMaterial = errors.New("services: key material is not an RSA private key")

func timeNow() time.Time { return time.Now() }

// translateValidationError maps a primitive engine's input-shape rejection
// to its matching Input-category code, so a plaintext one byte over the
// bound (or a malformed key/IV/tag) surfaces as SizeLimitExceeded /
// InvalidKeySize / InvalidIvSize / InvalidTagSize at the public API
// instead of being flattened into a generic crypto-failure code. Any other
// error is wrapped under fallback unchanged.
func translateValidationError(err error, fallback Code) error {
	var verr *crypto.ValidationError
	if errors.As(err, &verr) {
		switch verr.Field {
		case "key":
			return Wrap(CodeInvalidKeySize, "", err)
		case "iv":
			return Wrap(CodeInvalidIvSize, "", err)
		case "tag":
			return Wrap(CodeInvalidTagSize, "", err)
		default:
			return Wrap(CodeSizeLimitExceeded, "", err)
		}
	}
	return Wrap(fallback, "", err)
}

// EncryptionService resolves a KeyId through a KeyService and drives the
// matching primitive engine, so callers never juggle key resolution and
// engine selection themselves. It is the root package's primary entry
// point for symmetric and RSA encryption, mirroring the split the original
// crypto-service kept between its key service and its engines.
type EncryptionService struct {
	keys *KeyService
}

// NewEncryptionService builds an EncryptionService over ks.
func NewEncryptionService(ks *KeyService) *EncryptionService {
	return &EncryptionService{keys: ks}
}

// Encrypt seals plaintext under keyID. The key must be Active and must
// allow OpEncrypt; anything else is rejected before any material is
// touched.
func (s *EncryptionService) Encrypt(ctx context.Context, keyID KeyId, plaintext, aad []byte) (EncryptResult, error) {
	meta, err := s.keys.GetMetadata(ctx, keyID)
	if err != nil {
		return EncryptResult{}, err
	}
	if meta.State != KeyStateActive {
		return EncryptResult{}, NewError(CodeKeyInvalidState, "")
	}
	if !meta.Allows(OpEncrypt) {
		return EncryptResult{}, NewError(CodePermissionDenied, "")
	}
	if meta.Expired(timeNow()) {
		return EncryptResult{}, NewError(CodeKeyExpired, "")
	}

	buf, err := s.keys.GetMaterial(ctx, keyID)
	if err != nil {
		return EncryptResult{}, err
	}

	switch {
	case meta.Algorithm == AlgAES128GCM || meta.Algorithm == AlgAES256GCM:
		ciphertext, iv, tag, err := crypto.GCMEncrypt(plaintext, buf.Bytes(), aad)
		if err != nil {
			return EncryptResult{}, translateValidationError(err, CodeEncryptionFailed)
		}
		return EncryptResult{Ciphertext: ciphertext, IV: iv, Tag: tag}, nil

	case meta.Algorithm == AlgAES128CBC || meta.Algorithm == AlgAES256CBC:
		ciphertext, iv, err := crypto.CBCEncrypt(plaintext, buf.Bytes())
		if err != nil {
			return EncryptResult{}, translateValidationError(err, CodeEncryptionFailed)
		}
		return EncryptResult{Ciphertext: ciphertext, IV: iv}, nil

	case meta.Algorithm.IsAsymmetric() && meta.Algorithm.RSABits() > 0:
		pub, err := rsaPublicKeyFromMaterial(buf.Bytes())
		if err != nil {
			return EncryptResult{}, Wrap(CodeInvalidKeyType, "", err)
		}
		ciphertext, err := crypto.RSAOAEPEncrypt(plaintext, pub, crypto.HashSHA256)
		if err != nil {
			return EncryptResult{}, translateValidationError(err, CodeEncryptionFailed)
		}
		return EncryptResult{Ciphertext: ciphertext}, nil

	default:
		return EncryptResult{}, NewError(CodeInvalidKeyType, "")
	}
}

// Decrypt opens a ciphertext produced by Encrypt under keyID. The key must
// allow OpDecrypt, must be Active or Deprecated, and must not have expired:
// a Deprecated key stays usable for decryption until its ExpiresAt.
func (s *EncryptionService) Decrypt(ctx context.Context, keyID KeyId, result EncryptResult, aad []byte) ([]byte, error) {
	meta, err := s.keys.GetMetadata(ctx, keyID)
	if err != nil {
		return nil, err
	}
	if meta.State != KeyStateActive && meta.State != KeyStateDeprecated {
		return nil, NewError(CodeKeyInvalidState, "")
	}
	if !meta.Allows(OpDecrypt) {
		return nil, NewError(CodePermissionDenied, "")
	}
	if meta.Expired(timeNow()) {
		return nil, NewError(CodeKeyExpired, "")
	}

	buf, err := s.keys.GetMaterial(ctx, keyID)
	if err != nil {
		return nil, err
	}

	switch {
	case meta.Algorithm == AlgAES128GCM || meta.Algorithm == AlgAES256GCM:
		plaintext, err := crypto.GCMDecrypt(result.Ciphertext, buf.Bytes(), result.IV, result.Tag, aad)
		if err != nil {
			return nil, translateValidationError(err, CodeIntegrityError)
		}
		return plaintext, nil

	case meta.Algorithm == AlgAES128CBC || meta.Algorithm == AlgAES256CBC:
		plaintext, err := crypto.CBCDecrypt(result.Ciphertext, buf.Bytes(), result.IV)
		if err != nil {
			return nil, translateValidationError(err, CodeIntegrityError)
		}
		return plaintext, nil

	case meta.Algorithm.IsAsymmetric() && meta.Algorithm.RSABits() > 0:
		priv, err := crypto.ParsePKCS8(buf.Bytes())
		if err != nil {
			return nil, Wrap(CodeInvalidKeyType, "", err)
		}
		rsaPriv, ok := priv.(*rsa.PrivateKey)
		if !ok {
			return nil, NewError(CodeInvalidKeyType, "")
		}
		plaintext, err := crypto.RSAOAEPDecrypt(result.Ciphertext, rsaPriv, crypto.HashSHA256)
		if err != nil {
			return nil, translateValidationError(err, CodeDecryptionFailed)
		}
		return plaintext, nil

	default:
		return nil, NewError(CodeInvalidKeyType, "")
	}
}

// SignatureService resolves a KeyId through a KeyService and drives the
// matching signing engine, the signature-side counterpart of
// EncryptionService.
type SignatureService struct {
	keys *KeyService
}

// NewSignatureService builds a SignatureService over ks.
func NewSignatureService(ks *KeyService) *SignatureService {
	return &SignatureService{keys: ks}
}

// Sign signs data under keyID. The key must be Active and must allow
// OpSign.
func (s *SignatureService) Sign(ctx context.Context, keyID KeyId, data []byte) ([]byte, error) {
	meta, err := s.keys.GetMetadata(ctx, keyID)
	if err != nil {
		return nil, err
	}
	if meta.State != KeyStateActive {
		return nil, NewError(CodeKeyInvalidState, "")
	}
	if !meta.Allows(OpSign) {
		return nil, NewError(CodePermissionDenied, "")
	}
	if meta.Expired(timeNow()) {
		return nil, NewError(CodeKeyExpired, "")
	}

	buf, err := s.keys.GetMaterial(ctx, keyID)
	if err != nil {
		return nil, err
	}
	priv, err := crypto.ParsePKCS8(buf.Bytes())
	if err != nil {
		return nil, Wrap(CodeInvalidKeyType, "", err)
	}

	switch key := priv.(type) {
	case *rsa.PrivateKey:
		sig, err := crypto.RSAPSSSign(data, key, crypto.HashSHA256)
		if err != nil {
			return nil, translateValidationError(err, CodeCryptoError)
		}
		return sig, nil
	case *gocrypto.PrivateKey:
		sig, err := crypto.ECDSASign(data, key, curveForECDSAKey(key))
		if err != nil {
			return nil, translateValidationError(err, CodeCryptoError)
		}
		return sig, nil
	default:
		return nil, NewError(CodeInvalidKeyType, "")
	}
}

// Verify checks sig over data against the public half of keyID. Unlike
// Sign, Verify is permitted against Deprecated keys as well as Active
// ones, and never decrypts or exposes the private key beyond this call's
// own stack.
func (s *SignatureService) Verify(ctx context.Context, keyID KeyId, data, sig []byte) (crypto.VerifyOutcome, error) {
	meta, err := s.keys.GetMetadata(ctx, keyID)
	if err != nil {
		return crypto.VerifyInvalid, err
	}
	if meta.State != KeyStateActive && meta.State != KeyStateDeprecated {
		return crypto.VerifyInvalid, NewError(CodeKeyInvalidState, "")
	}
	if !meta.Allows(OpVerify) {
		return crypto.VerifyInvalid, NewError(CodePermissionDenied, "")
	}

	buf, err := s.keys.GetMaterial(ctx, keyID)
	if err != nil {
		return crypto.VerifyInvalid, err
	}
	priv, err := crypto.ParsePKCS8(buf.Bytes())
	if err != nil {
		return crypto.VerifyInvalid, Wrap(CodeInvalidKeyType, "", err)
	}

	switch key := priv.(type) {
	case *rsa.PrivateKey:
		outcome, err := crypto.RSAPSSVerify(data, sig, &key.PublicKey, crypto.HashSHA256)
		if err != nil {
			return crypto.VerifyInvalid, translateValidationError(err, CodeCryptoError)
		}
		return outcome, nil
	case *gocrypto.PrivateKey:
		outcome, err := crypto.ECDSAVerify(data, sig, &key.PublicKey, curveForECDSAKey(key))
		if err != nil {
			return crypto.VerifyInvalid, translateValidationError(err, CodeCryptoError)
		}
		return outcome, nil
	default:
		return crypto.VerifyInvalid, NewError(CodeInvalidKeyType, "")
	}
}

func rsaPublicKeyFromMaterial(der []byte) (*rsa.PublicKey, error) {
	priv, err := crypto.ParsePKCS8(der)
	if err != nil {
		return nil, err
	}
	rsaPriv, ok := priv.(*rsa.PrivateKey)
	if !ok {
		return nil, errInvalidKeyMaterial
	}
	return &rsaPriv.PublicKey, nil
}

func curveForECDSAKey(key *gocrypto.PrivateKey) crypto.Curve {
	switch key.Curve.Params().BitSize {
	case 384:
		return crypto.CurveP384
	case 521:
		return crypto.CurveP521
	default:
		return crypto.CurveP256
	}
}
