package cryptosvc

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"southwinds.dev/cryptosvc/internal/crypto"
)

// fileEnvelopeMagic is the fixed u32 (the ASCII bytes "CRYP" read
// big-endian) every FileEnvelope stream starts with; it is written
// little-endian, so the first four bytes on disk are "PYRC".
const fileEnvelopeMagic uint32 = 0x43525950

// fileEnvelopeVersion is the only wire version this codec emits or accepts.
const fileEnvelopeVersion uint16 = 1

// DefaultFileChunkSize is recorded in the header of every envelope this
// codec writes; it is informational only — the payload itself is sealed
// as a single AES-256-GCM message regardless of chunk size; original_size
// and chunk_size together let a reader pre-size its output buffer.
const DefaultFileChunkSize uint32 = 64 * 1024

// maxFileEnvelopeSize bounds EncryptFile/DecryptFile to spec.md §4.7's 1
// GiB round-trip contract.
const maxFileEnvelopeSize = 1 << 30

// fileEnvelopeHeader is the parsed form of a FileEnvelope's fixed fields,
// everything before the ciphertext.
type fileEnvelopeHeader struct {
	Version      uint16
	KEKAlgorithm Algorithm
	KEKId        KeyId
	WrappedDEK   []byte
	IV           []byte
	Tag          []byte
	OriginalSize uint64
	ChunkSize    uint32
}

// EncryptFile streams plaintext from r into w as a FileEnvelope (spec
// §4.7/§6): a freshly generated AES-256 DEK seals the payload, and the DEK
// itself is wrapped under kekID — via RSA-OAEP if the KEK is an RSA key,
// or AES-GCM under the KEK's own key (AES-128 or AES-256, matching the
// KEK's length) if it is symmetric. A trailing SHA-256 checksum of the
// plaintext is appended after the ciphertext for client-side convenience;
// it is not covered by the GCM tag and a mismatch never blocks a decrypt
// the tag already accepted.
func EncryptFile(ctx context.Context, keys *KeyService, kekID KeyId, w io.Writer, r io.Reader) error {
	meta, err := keys.GetMetadata(ctx, kekID)
	if err != nil {
		return err
	}
	if meta.State != KeyStateActive {
		return NewError(CodeKeyInvalidState, "")
	}

	plaintext, err := io.ReadAll(io.LimitReader(r, maxFileEnvelopeSize+1))
	if err != nil {
		return Wrap(CodeInvalidInput, "", fmt.Errorf("read plaintext: %w", err))
	}
	if len(plaintext) > maxFileEnvelopeSize {
		return NewError(CodeSizeLimitExceeded, "")
	}

	dek := make([]byte, crypto.HybridEncryptedKeySize)
	if _, err := rand.Read(dek); err != nil {
		return Wrap(CodeKeyGenerationFailed, "", err)
	}

	kekBuf, err := keys.GetMaterial(ctx, kekID)
	if err != nil {
		return err
	}
	wrappedDEK, err := wrapDEK(dek, meta.Algorithm, kekBuf.Bytes())
	if err != nil {
		return Wrap(CodeEncryptionFailed, "", err)
	}

	ciphertext, iv, tag, err := crypto.GCMEncrypt(plaintext, dek, nil)
	if err != nil {
		return Wrap(CodeEncryptionFailed, "", err)
	}

	checksum := sha256.Sum256(plaintext)

	header := fileEnvelopeHeader{
		Version:      fileEnvelopeVersion,
		KEKAlgorithm: meta.Algorithm,
		KEKId:        kekID,
		WrappedDEK:   wrappedDEK,
		IV:           iv,
		Tag:          tag,
		OriginalSize: uint64(len(plaintext)),
		ChunkSize:    DefaultFileChunkSize,
	}

	bw := bufio.NewWriter(w)
	if err := writeFileEnvelopeHeader(bw, header); err != nil {
		return Wrap(CodeInvalidInput, "", err)
	}
	if _, err := bw.Write(ciphertext); err != nil {
		return Wrap(CodeInvalidInput, "", err)
	}
	if _, err := bw.Write(checksum[:]); err != nil {
		return Wrap(CodeInvalidInput, "", err)
	}
	if err := bw.Flush(); err != nil {
		return Wrap(CodeInvalidInput, "", err)
	}
	return nil
}

// DecryptFile reverses EncryptFile: it parses the header, unwraps the DEK
// through keys, and opens the AES-256-GCM payload. Any corruption in the
// header, IV, tag, or ciphertext surfaces as CodeIntegrityError with no
// plaintext written to w, except that a key id changed into another
// well-formed id that names no stored key surfaces as CodeKeyNotFound.
func DecryptFile(ctx context.Context, keys *KeyService, w io.Writer, r io.Reader) error {
	br := bufio.NewReader(r)
	header, err := readFileEnvelopeHeader(br)
	if err != nil {
		return Wrap(CodeIntegrityError, "", err)
	}
	if header.ChunkSize != DefaultFileChunkSize {
		return Wrap(CodeIntegrityError, "", fmt.Errorf("envelope: unexpected chunk size %d", header.ChunkSize))
	}
	meta, err := keys.GetMetadata(ctx, header.KEKId)
	if err != nil {
		return err
	}
	if meta.Algorithm != header.KEKAlgorithm {
		return Wrap(CodeIntegrityError, "", fmt.Errorf("envelope: algorithm tag does not match the kek"))
	}

	rest, err := io.ReadAll(io.LimitReader(br, maxFileEnvelopeSize+1+sha256.Size))
	if err != nil {
		return Wrap(CodeInvalidInput, "", err)
	}
	if uint64(len(rest)) != header.OriginalSize+sha256.Size {
		return Wrap(CodeIntegrityError, "", fmt.Errorf("envelope: payload length does not match header"))
	}
	ciphertext := rest[:len(rest)-sha256.Size]

	kekBuf, err := keys.GetMaterial(ctx, header.KEKId)
	if err != nil {
		return err
	}
	dek, err := unwrapDEK(header.WrappedDEK, header.KEKAlgorithm, kekBuf.Bytes())
	if err != nil {
		return Wrap(CodeIntegrityError, "", err)
	}

	plaintext, err := crypto.GCMDecrypt(ciphertext, dek, header.IV, header.Tag, nil)
	if err != nil {
		return Wrap(CodeIntegrityError, "", err)
	}

	if _, err := w.Write(plaintext); err != nil {
		return Wrap(CodeInvalidInput, "", err)
	}
	return nil
}

// wrapDEK seals dek under kekMaterial. RSA KEKs use OAEP directly; AES
// KEKs pack iv(12)||tag(16)||ciphertext(32), the same layout the cache's
// remote-tier seal uses, so a single fixed-offset unwrap is all either
// reader needs.
func wrapDEK(dek []byte, kekAlgo Algorithm, kekMaterial []byte) ([]byte, error) {
	if kekAlgo.IsAsymmetric() && kekAlgo.RSABits() > 0 {
		pub, err := rsaPublicKeyFromMaterial(kekMaterial)
		if err != nil {
			return nil, err
		}
		return crypto.RSAOAEPEncrypt(dek, pub, crypto.HashSHA256)
	}
	ciphertext, iv, tag, err := crypto.GCMEncrypt(dek, kekMaterial, nil)
	if err != nil {
		return nil, err
	}
	wrapped := make([]byte, 0, len(iv)+len(tag)+len(ciphertext))
	wrapped = append(wrapped, iv...)
	wrapped = append(wrapped, tag...)
	wrapped = append(wrapped, ciphertext...)
	return wrapped, nil
}

func unwrapDEK(wrapped []byte, kekAlgo Algorithm, kekMaterial []byte) ([]byte, error) {
	if kekAlgo.IsAsymmetric() && kekAlgo.RSABits() > 0 {
		priv, err := crypto.ParsePKCS8(kekMaterial)
		if err != nil {
			return nil, err
		}
		rsaPriv, ok := priv.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("envelope: kek material is not an rsa private key")
		}
		return crypto.RSAOAEPDecrypt(wrapped, rsaPriv, crypto.HashSHA256)
	}
	const ivLen, tagLen = 12, 16
	if len(wrapped) < ivLen+tagLen {
		return nil, crypto.ErrIntegrity
	}
	iv := wrapped[:ivLen]
	tag := wrapped[ivLen : ivLen+tagLen]
	ciphertext := wrapped[ivLen+tagLen:]
	return crypto.GCMDecrypt(ciphertext, kekMaterial, iv, tag, nil)
}

func writeFileEnvelopeHeader(w io.Writer, h fileEnvelopeHeader) error {
	idBytes := []byte(h.KEKId.String())

	if err := binary.Write(w, binary.LittleEndian, fileEnvelopeMagic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, h.Version); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, h.KEKAlgorithm.fileEnvelopeTag()); err != nil {
		return err
	}
	for _, field := range [][]byte{idBytes, h.WrappedDEK, h.IV, h.Tag} {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(field))); err != nil {
			return err
		}
		if _, err := w.Write(field); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, h.OriginalSize); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, h.ChunkSize)
}

func readFileEnvelopeHeader(r io.Reader) (fileEnvelopeHeader, error) {
	var magic uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return fileEnvelopeHeader{}, fmt.Errorf("read magic: %w", err)
	}
	if magic != fileEnvelopeMagic {
		return fileEnvelopeHeader{}, fmt.Errorf("envelope: bad magic %#x", magic)
	}

	var version uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return fileEnvelopeHeader{}, fmt.Errorf("read version: %w", err)
	}
	if version != fileEnvelopeVersion {
		return fileEnvelopeHeader{}, fmt.Errorf("envelope: unsupported version %d", version)
	}

	var algoTag uint16
	if err := binary.Read(r, binary.LittleEndian, &algoTag); err != nil {
		return fileEnvelopeHeader{}, fmt.Errorf("read algorithm: %w", err)
	}
	algo, ok := algorithmFromFileEnvelopeTag(algoTag)
	if !ok {
		return fileEnvelopeHeader{}, fmt.Errorf("envelope: unknown algorithm tag %d", algoTag)
	}

	idBytes, err := readLengthPrefixed(r)
	if err != nil {
		return fileEnvelopeHeader{}, fmt.Errorf("read key id: %w", err)
	}
	kekID, err := ParseKeyId(string(idBytes))
	if err != nil {
		return fileEnvelopeHeader{}, fmt.Errorf("parse key id: %w", err)
	}

	wrappedDEK, err := readLengthPrefixed(r)
	if err != nil {
		return fileEnvelopeHeader{}, fmt.Errorf("read wrapped dek: %w", err)
	}
	iv, err := readLengthPrefixed(r)
	if err != nil {
		return fileEnvelopeHeader{}, fmt.Errorf("read iv: %w", err)
	}
	tag, err := readLengthPrefixed(r)
	if err != nil {
		return fileEnvelopeHeader{}, fmt.Errorf("read tag: %w", err)
	}

	var originalSize uint64
	if err := binary.Read(r, binary.LittleEndian, &originalSize); err != nil {
		return fileEnvelopeHeader{}, fmt.Errorf("read original size: %w", err)
	}
	if originalSize > maxFileEnvelopeSize {
		return fileEnvelopeHeader{}, fmt.Errorf("envelope: original size exceeds limit")
	}

	var chunkSize uint32
	if err := binary.Read(r, binary.LittleEndian, &chunkSize); err != nil {
		return fileEnvelopeHeader{}, fmt.Errorf("read chunk size: %w", err)
	}

	return fileEnvelopeHeader{
		Version:      version,
		KEKAlgorithm: algo,
		KEKId:        kekID,
		WrappedDEK:   wrappedDEK,
		IV:           iv,
		Tag:          tag,
		OriginalSize: originalSize,
		ChunkSize:    chunkSize,
	}, nil
}

func readLengthPrefixed(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if n > maxFileEnvelopeSize {
		return nil, fmt.Errorf("length-prefixed field too large: %d", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
