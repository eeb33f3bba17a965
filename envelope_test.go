package cryptosvc_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"southwinds.dev/cryptosvc"
	"southwinds.dev/cryptosvc/cache"
	"southwinds.dev/cryptosvc/persist"
)

func newEnvelopeKeyService(t *testing.T) *cryptosvc.KeyService {
	t.Helper()
	store := persist.NewMemoryStore()
	c, err := cache.NewTwoTier(cache.Config{LocalSize: 64})
	require.NoError(t, err)
	ks, err := cryptosvc.NewKeyService(store, c, make([]byte, 32), time.Hour, nil)
	require.NoError(t, err)
	return ks
}

func TestFileEnvelopeRoundTripsWithSymmetricKEK(t *testing.T) {
	ctx := context.Background()
	ks := newEnvelopeKeyService(t)

	kekID, err := ks.Generate(ctx, cryptosvc.GenerateParams{Namespace: "ns1", Algorithm: cryptosvc.AlgAES256GCM})
	require.NoError(t, err)

	plaintext := bytes.Repeat([]byte("file-envelope-payload-"), 1000)
	var encrypted bytes.Buffer
	require.NoError(t, cryptosvc.EncryptFile(ctx, ks, kekID, &encrypted, bytes.NewReader(plaintext)))

	var decrypted bytes.Buffer
	require.NoError(t, cryptosvc.DecryptFile(ctx, ks, &decrypted, bytes.NewReader(encrypted.Bytes())))
	assert.Equal(t, plaintext, decrypted.Bytes())
}

func TestFileEnvelopeRoundTripsWithRSAKEK(t *testing.T) {
	ctx := context.Background()
	ks := newEnvelopeKeyService(t)

	kekID, err := ks.Generate(ctx, cryptosvc.GenerateParams{Namespace: "ns1", Algorithm: cryptosvc.AlgRSA2048})
	require.NoError(t, err)

	plaintext := []byte("small payload under an rsa kek")
	var encrypted bytes.Buffer
	require.NoError(t, cryptosvc.EncryptFile(ctx, ks, kekID, &encrypted, bytes.NewReader(plaintext)))

	var decrypted bytes.Buffer
	require.NoError(t, cryptosvc.DecryptFile(ctx, ks, &decrypted, bytes.NewReader(encrypted.Bytes())))
	assert.Equal(t, plaintext, decrypted.Bytes())
}

func TestFileEnvelopeEmptyInputRoundTrips(t *testing.T) {
	ctx := context.Background()
	ks := newEnvelopeKeyService(t)

	kekID, err := ks.Generate(ctx, cryptosvc.GenerateParams{Namespace: "ns1", Algorithm: cryptosvc.AlgAES256GCM})
	require.NoError(t, err)

	var encrypted bytes.Buffer
	require.NoError(t, cryptosvc.EncryptFile(ctx, ks, kekID, &encrypted, bytes.NewReader(nil)))

	var decrypted bytes.Buffer
	require.NoError(t, cryptosvc.DecryptFile(ctx, ks, &decrypted, bytes.NewReader(encrypted.Bytes())))
	assert.Empty(t, decrypted.Bytes())
}

func TestFileEnvelopeTamperedCiphertextByteFailsIntegrity(t *testing.T) {
	ctx := context.Background()
	ks := newEnvelopeKeyService(t)

	kekID, err := ks.Generate(ctx, cryptosvc.GenerateParams{Namespace: "ns1", Algorithm: cryptosvc.AlgAES256GCM})
	require.NoError(t, err)

	var encrypted bytes.Buffer
	require.NoError(t, cryptosvc.EncryptFile(ctx, ks, kekID, &encrypted, bytes.NewReader([]byte("tamper me please"))))

	corrupted := append([]byte{}, encrypted.Bytes()...)
	// The last 32 bytes are the SHA-256 checksum trailer; flip the final
	// ciphertext byte just before it.
	corrupted[len(corrupted)-1-32] ^= 0xFF

	var decrypted bytes.Buffer
	err = cryptosvc.DecryptFile(ctx, ks, &decrypted, bytes.NewReader(corrupted))
	require.Error(t, err)
	assert.Empty(t, decrypted.Bytes())
}

func TestFileEnvelopeTamperedHeaderByteFailsToParseOrDecrypt(t *testing.T) {
	ctx := context.Background()
	ks := newEnvelopeKeyService(t)

	kekID, err := ks.Generate(ctx, cryptosvc.GenerateParams{Namespace: "ns1", Algorithm: cryptosvc.AlgAES256GCM})
	require.NoError(t, err)

	var encrypted bytes.Buffer
	require.NoError(t, cryptosvc.EncryptFile(ctx, ks, kekID, &encrypted, bytes.NewReader([]byte("header tamper target"))))

	corrupted := append([]byte{}, encrypted.Bytes()...)
	corrupted[0] ^= 0xFF // flip a magic byte

	var decrypted bytes.Buffer
	err = cryptosvc.DecryptFile(ctx, ks, &decrypted, bytes.NewReader(corrupted))
	require.Error(t, err)
	assert.Empty(t, decrypted.Bytes())
}

func TestFileEnvelopeRejectsUnknownKeyId(t *testing.T) {
	ctx := context.Background()
	ks := newEnvelopeKeyService(t)

	unknown := cryptosvc.NewKeyId("ns1")
	var encrypted bytes.Buffer
	err := cryptosvc.EncryptFile(ctx, ks, unknown, &encrypted, bytes.NewReader([]byte("x")))
	require.Error(t, err)
}
