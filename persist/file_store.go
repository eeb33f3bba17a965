package persist

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"context"

	"southwinds.dev/cryptosvc"
)

const (
	filePermissions = os.FileMode(0600)
	dirPermissions  = os.FileMode(0700)
)

// FileSystemStore implements Store on the local filesystem: one file per
// KeyId at <base>/<namespace>/<uuid>_v<version>.key, using a fixed
// length-prefixed record layout so a partial write can never be mistaken
// for a valid one.
//
// Record layout:
//
//	u32 iv_len | iv
//	u32 tag_len | tag
//	u32 ct_len | ciphertext
//	u16 kek_id_len | kek_id (KEKId string)
//	u32 meta_len | metadata (JSON)
type FileSystemStore struct {
	basePath string
}

// NewFileSystemStore creates a FileSystemStore rooted at basePath, creating
// the directory if it does not already exist.
func NewFileSystemStore(basePath string) (*FileSystemStore, error) {
	if err := os.MkdirAll(basePath, dirPermissions); err != nil {
		return nil, fmt.Errorf("persist: create base dir: %w", err)
	}
	return &FileSystemStore{basePath: basePath}, nil
}

func (fs *FileSystemStore) pathFor(id cryptosvc.KeyId) string {
	return filepath.Join(fs.basePath, id.Namespace, fmt.Sprintf("%s_v%d.key", id.UUID, id.Version))
}

func (fs *FileSystemStore) Store(_ context.Context, id cryptosvc.KeyId, wrapped cryptosvc.WrappedKey) error {
	metaJSON, err := json.Marshal(wrapped.Metadata)
	if err != nil {
		return fmt.Errorf("persist: marshal metadata: %w", err)
	}

	buf := make([]byte, 0, 4+len(wrapped.IV)+4+len(wrapped.Tag)+4+len(wrapped.Ciphertext)+2+len(wrapped.KEKId)+4+len(metaJSON))
	buf = appendU32Field(buf, wrapped.IV)
	buf = appendU32Field(buf, wrapped.Tag)
	buf = appendU32Field(buf, wrapped.Ciphertext)
	buf = appendU16Field(buf, []byte(wrapped.KEKId))
	buf = appendU32Field(buf, metaJSON)

	dir := filepath.Join(fs.basePath, id.Namespace)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("persist: create namespace dir: %w", err)
	}
	return writeFileAtomic(fs.pathFor(id), buf, filePermissions)
}

func (fs *FileSystemStore) Retrieve(_ context.Context, id cryptosvc.KeyId) (cryptosvc.WrappedKey, error) {
	data, err := os.ReadFile(fs.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return cryptosvc.WrappedKey{}, ErrNotFound
		}
		return cryptosvc.WrappedKey{}, fmt.Errorf("persist: read record: %w", err)
	}
	return decodeRecord(data)
}

func (fs *FileSystemStore) Remove(_ context.Context, id cryptosvc.KeyId) error {
	if err := os.Remove(fs.pathFor(id)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("persist: remove record: %w", err)
	}
	return nil
}

func (fs *FileSystemStore) Exists(_ context.Context, id cryptosvc.KeyId) (bool, error) {
	_, err := os.Stat(fs.pathFor(id))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (fs *FileSystemStore) List(_ context.Context, namespacePrefix string) ([]cryptosvc.KeyId, error) {
	entries, err := os.ReadDir(fs.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("persist: read base dir: %w", err)
	}

	var ids []cryptosvc.KeyId
	for _, ns := range entries {
		if !ns.IsDir() || !strings.HasPrefix(ns.Name(), namespacePrefix) {
			continue
		}
		keyFiles, err := os.ReadDir(filepath.Join(fs.basePath, ns.Name()))
		if err != nil {
			return nil, fmt.Errorf("persist: read namespace dir: %w", err)
		}
		for _, kf := range keyFiles {
			id, ok := parseKeyFileName(ns.Name(), kf.Name())
			if ok {
				ids = append(ids, id)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (fs *FileSystemStore) UpdateMetadata(ctx context.Context, id cryptosvc.KeyId, meta cryptosvc.KeyMetadata) error {
	wrapped, err := fs.Retrieve(ctx, id)
	if err != nil {
		return err
	}
	wrapped.Metadata = meta
	return fs.Store(ctx, id, wrapped)
}

func parseKeyFileName(namespace, filename string) (cryptosvc.KeyId, bool) {
	name := strings.TrimSuffix(filename, ".key")
	if name == filename {
		return cryptosvc.KeyId{}, false
	}
	parts := strings.SplitN(name, "_v", 2)
	if len(parts) != 2 {
		return cryptosvc.KeyId{}, false
	}
	version, err := strconv.Atoi(parts[1])
	if err != nil {
		return cryptosvc.KeyId{}, false
	}
	return cryptosvc.KeyId{Namespace: namespace, UUID: parts[0], Version: version}, true
}

func decodeRecord(data []byte) (cryptosvc.WrappedKey, error) {
	var w cryptosvc.WrappedKey
	rest := data

	iv, rest, err := readU32Field(rest)
	if err != nil {
		return w, err
	}
	tag, rest, err := readU32Field(rest)
	if err != nil {
		return w, err
	}
	ct, rest, err := readU32Field(rest)
	if err != nil {
		return w, err
	}
	kekID, rest, err := readU16Field(rest)
	if err != nil {
		return w, err
	}
	metaJSON, _, err := readU32Field(rest)
	if err != nil {
		return w, err
	}

	var meta cryptosvc.KeyMetadata
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return w, fmt.Errorf("persist: unmarshal metadata: %w", err)
	}

	w.IV = iv
	w.Tag = tag
	w.Ciphertext = ct
	w.KEKId = string(kekID)
	w.Metadata = meta
	return w, nil
}

func appendU32Field(buf, field []byte) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(field)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, field...)
}

func appendU16Field(buf, field []byte) []byte {
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(field)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, field...)
}

func readU32Field(buf []byte) (field, rest []byte, err error) {
	if len(buf) < 4 {
		return nil, nil, fmt.Errorf("persist: truncated record")
	}
	n := binary.LittleEndian.Uint32(buf[:4])
	buf = buf[4:]
	if uint64(len(buf)) < uint64(n) {
		return nil, nil, fmt.Errorf("persist: truncated record field")
	}
	return buf[:n], buf[n:], nil
}

func readU16Field(buf []byte) (field, rest []byte, err error) {
	if len(buf) < 2 {
		return nil, nil, fmt.Errorf("persist: truncated record")
	}
	n := binary.LittleEndian.Uint16(buf[:2])
	buf = buf[2:]
	if int(n) > len(buf) {
		return nil, nil, fmt.Errorf("persist: truncated record field")
	}
	return buf[:n], buf[n:], nil
}

// writeFileAtomic writes to a temp file in the same directory, syncs it,
// then renames over the destination so a reader never observes a partial
// file, mirroring the teacher's writeSecureFile.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("persist: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("persist: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("persist: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("persist: close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("persist: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("persist: rename temp file: %w", err)
	}
	return nil
}
