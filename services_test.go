package cryptosvc_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"southwinds.dev/cryptosvc"
	"southwinds.dev/cryptosvc/cache"
	"southwinds.dev/cryptosvc/internal/crypto"
	"southwinds.dev/cryptosvc/persist"
)

func newTestServices(t *testing.T) (*cryptosvc.EncryptionService, *cryptosvc.SignatureService, *cryptosvc.KeyService) {
	t.Helper()
	store := persist.NewMemoryStore()
	c, err := cache.NewTwoTier(cache.Config{LocalSize: 64})
	require.NoError(t, err)
	masterKey := make([]byte, 32)
	ks, err := cryptosvc.NewKeyService(store, c, masterKey, time.Hour, nil)
	require.NoError(t, err)
	return cryptosvc.NewEncryptionService(ks), cryptosvc.NewSignatureService(ks), ks
}

func TestEncryptDecryptGCMRoundTrip(t *testing.T) {
	ctx := context.Background()
	enc, _, ks := newTestServices(t)

	id, err := ks.Generate(ctx, cryptosvc.GenerateParams{Namespace: "ns1", Algorithm: cryptosvc.AlgAES256GCM})
	require.NoError(t, err)

	result, err := enc.Encrypt(ctx, id, []byte("top secret"), []byte("aad"))
	require.NoError(t, err)

	plaintext, err := enc.Decrypt(ctx, id, result, []byte("aad"))
	require.NoError(t, err)
	assert.Equal(t, "top secret", string(plaintext))
}

func TestDecryptRejectsTamperedTag(t *testing.T) {
	ctx := context.Background()
	enc, _, ks := newTestServices(t)

	id, err := ks.Generate(ctx, cryptosvc.GenerateParams{Namespace: "ns1", Algorithm: cryptosvc.AlgAES256GCM})
	require.NoError(t, err)

	result, err := enc.Encrypt(ctx, id, []byte("top secret"), nil)
	require.NoError(t, err)
	result.Tag[0] ^= 0xFF

	_, err = enc.Decrypt(ctx, id, result, nil)
	require.Error(t, err)
	var svcErr *cryptosvc.Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, cryptosvc.CodeIntegrityError, svcErr.Code)
}

// TestEncryptRejectsOversizePlaintext exercises spec scenario S6: an
// AES-GCM encrypt one byte over the 64 MiB bound must surface
// SizeLimitExceeded, not a generic encryption-failure code.
func TestEncryptRejectsOversizePlaintext(t *testing.T) {
	ctx := context.Background()
	enc, _, ks := newTestServices(t)

	id, err := ks.Generate(ctx, cryptosvc.GenerateParams{Namespace: "ns1", Algorithm: cryptosvc.AlgAES256GCM})
	require.NoError(t, err)

	oversize := make([]byte, crypto.MaxPlaintextBytes+1)
	_, err = enc.Encrypt(ctx, id, oversize, nil)
	require.Error(t, err)
	var svcErr *cryptosvc.Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, cryptosvc.CodeSizeLimitExceeded, svcErr.Code)
}

func TestDecryptRejectsMalformedIV(t *testing.T) {
	ctx := context.Background()
	enc, _, ks := newTestServices(t)

	id, err := ks.Generate(ctx, cryptosvc.GenerateParams{Namespace: "ns1", Algorithm: cryptosvc.AlgAES256GCM})
	require.NoError(t, err)

	result, err := enc.Encrypt(ctx, id, []byte("top secret"), nil)
	require.NoError(t, err)
	result.IV = result.IV[:len(result.IV)-1]

	_, err = enc.Decrypt(ctx, id, result, nil)
	require.Error(t, err)
	var svcErr *cryptosvc.Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, cryptosvc.CodeInvalidIvSize, svcErr.Code)
}

func TestSignVerifyECDSARoundTrip(t *testing.T) {
	ctx := context.Background()
	_, sig, ks := newTestServices(t)

	id, err := ks.Generate(ctx, cryptosvc.GenerateParams{Namespace: "ns1", Algorithm: cryptosvc.AlgECDSAP256})
	require.NoError(t, err)

	data := []byte("message to sign")
	signature, err := sig.Sign(ctx, id, data)
	require.NoError(t, err)

	outcome, err := sig.Verify(ctx, id, data, signature)
	require.NoError(t, err)
	assert.Equal(t, crypto.VerifyValid, outcome)
}

func TestVerifyRejectsOversizeSignature(t *testing.T) {
	ctx := context.Background()
	_, sig, ks := newTestServices(t)

	id, err := ks.Generate(ctx, cryptosvc.GenerateParams{Namespace: "ns1", Algorithm: cryptosvc.AlgECDSAP256})
	require.NoError(t, err)

	oversizedSig := make([]byte, crypto.MaxSignatureBytes+1)
	_, err = sig.Verify(ctx, id, []byte("message"), oversizedSig)
	require.Error(t, err)
	var svcErr *cryptosvc.Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, cryptosvc.CodeSizeLimitExceeded, svcErr.Code)
}

func TestEncryptRejectsDeprecatedKey(t *testing.T) {
	ctx := context.Background()
	enc, _, ks := newTestServices(t)

	id, err := ks.Generate(ctx, cryptosvc.GenerateParams{Namespace: "ns1", Algorithm: cryptosvc.AlgAES256GCM})
	require.NoError(t, err)
	require.NoError(t, ks.Deprecate(ctx, id))

	_, err = enc.Encrypt(ctx, id, []byte("data"), nil)
	require.Error(t, err)
	var svcErr *cryptosvc.Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, cryptosvc.CodeKeyInvalidState, svcErr.Code)
}
