package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"southwinds.dev/cryptosvc"
)

const s3CtxTimeout = 10 * time.Second

// S3Config configures an S3Store's connection to a MinIO-compatible
// endpoint.
type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	KeyPrefix       string
	UseSSL          bool
	Region          string
}

// S3Store implements Store against an S3-compatible object store, one
// object per KeyId at [keyPrefix/]<namespace>/<uuid>_v<version>.key. Each
// write replaces the object in place; the store neither enables bucket
// versioning nor checks ETags, so concurrent writes to one KeyId are
// last-writer-wins.
type S3Store struct {
	client     *minio.Client
	bucketName string
	keyPrefix  string
}

// NewS3Store connects to the given endpoint and ensures the target bucket
// exists.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("persist: create minio client: %w", err)
	}

	store := &S3Store{client: client, bucketName: cfg.Bucket, keyPrefix: cfg.KeyPrefix}

	ctx, cancel := context.WithTimeout(context.Background(), s3CtxTimeout)
	defer cancel()
	if err := store.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *S3Store) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return fmt.Errorf("persist: check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{Region: ""}); err != nil {
			return fmt.Errorf("persist: create bucket: %w", err)
		}
	}
	return nil
}

func (s *S3Store) objectName(id cryptosvc.KeyId) string {
	parts := []string{}
	if s.keyPrefix != "" {
		parts = append(parts, strings.Trim(s.keyPrefix, "/"))
	}
	parts = append(parts, id.Namespace, fmt.Sprintf("%s_v%d.key", id.UUID, id.Version))
	return strings.Join(parts, "/")
}

// wireRecord is the JSON envelope stored as the S3 object body. Unlike the
// filesystem store's length-prefixed binary layout, S3 object bodies are
// already framed by the object itself, so JSON is sufficient here.
type wireRecord struct {
	IV         []byte               `json:"iv"`
	Tag        []byte               `json:"tag"`
	Ciphertext []byte               `json:"ciphertext"`
	KEKId      string               `json:"kek_id"`
	Metadata   cryptosvc.KeyMetadata `json:"metadata"`
}

func (s *S3Store) Store(ctx context.Context, id cryptosvc.KeyId, wrapped cryptosvc.WrappedKey) error {
	rec := wireRecord{IV: wrapped.IV, Tag: wrapped.Tag, Ciphertext: wrapped.Ciphertext, KEKId: wrapped.KEKId, Metadata: wrapped.Metadata}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("persist: marshal record: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s3CtxTimeout)
	defer cancel()
	_, err = s.client.PutObject(ctx, s.bucketName, s.objectName(id), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("persist: put object: %w", err)
	}
	return nil
}

func (s *S3Store) Retrieve(ctx context.Context, id cryptosvc.KeyId) (cryptosvc.WrappedKey, error) {
	ctx, cancel := context.WithTimeout(ctx, s3CtxTimeout)
	defer cancel()

	obj, err := s.client.GetObject(ctx, s.bucketName, s.objectName(id), minio.GetObjectOptions{})
	if err != nil {
		return cryptosvc.WrappedKey{}, fmt.Errorf("persist: get object: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return cryptosvc.WrappedKey{}, ErrNotFound
		}
		return cryptosvc.WrappedKey{}, fmt.Errorf("persist: read object: %w", err)
	}

	var rec wireRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return cryptosvc.WrappedKey{}, fmt.Errorf("persist: unmarshal record: %w", err)
	}
	return cryptosvc.WrappedKey{IV: rec.IV, Tag: rec.Tag, Ciphertext: rec.Ciphertext, KEKId: rec.KEKId, Metadata: rec.Metadata}, nil
}

func (s *S3Store) Remove(ctx context.Context, id cryptosvc.KeyId) error {
	exists, err := s.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, s3CtxTimeout)
	defer cancel()
	if err := s.client.RemoveObject(ctx, s.bucketName, s.objectName(id), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("persist: remove object: %w", err)
	}
	return nil
}

func (s *S3Store) Exists(ctx context.Context, id cryptosvc.KeyId) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s3CtxTimeout)
	defer cancel()
	_, err := s.client.StatObject(ctx, s.bucketName, s.objectName(id), minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("persist: stat object: %w", err)
	}
	return true, nil
}

func (s *S3Store) List(ctx context.Context, namespacePrefix string) ([]cryptosvc.KeyId, error) {
	ctx, cancel := context.WithTimeout(ctx, s3CtxTimeout)
	defer cancel()

	prefix := s.keyPrefix
	if prefix != "" {
		prefix = strings.Trim(prefix, "/") + "/"
	}
	prefix += namespacePrefix

	var ids []cryptosvc.KeyId
	for obj := range s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("persist: list objects: %w", obj.Err)
		}
		key := obj.Key
		if s.keyPrefix != "" {
			key = strings.TrimPrefix(key, strings.Trim(s.keyPrefix, "/")+"/")
		}
		parts := strings.Split(key, "/")
		if len(parts) != 2 {
			continue
		}
		if id, ok := parseKeyFileName(parts[0], parts[1]); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *S3Store) UpdateMetadata(ctx context.Context, id cryptosvc.KeyId, meta cryptosvc.KeyMetadata) error {
	wrapped, err := s.Retrieve(ctx, id)
	if err != nil {
		return err
	}
	wrapped.Metadata = meta
	return s.Store(ctx, id, wrapped)
}

func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey"
}
