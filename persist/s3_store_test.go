package persist

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"southwinds.dev/cryptosvc"
)

const (
	testS3AccessKey = "minioadmin"
	testS3SecretKey = "minioadmin"
)

// TestS3Store exercises S3Store against a throwaway MinIO container, in the
// same style as the filesystem store's in-process tests. Skipped when
// CRYPTOSVC_SKIP_CONTAINER_TESTS is set; otherwise it uses the endpoint in
// S3_MINIO_ENDPOINT or, when that is unset, starts a MinIO container, which
// needs a reachable Docker daemon.
func TestS3Store(t *testing.T) {
	if os.Getenv("CRYPTOSVC_SKIP_CONTAINER_TESTS") != "" {
		t.Skip("container tests disabled")
	}

	endpoint := os.Getenv("S3_MINIO_ENDPOINT")
	if endpoint == "" {
		ctx := context.Background()

		req := testcontainers.ContainerRequest{
			Image:        "minio/minio:latest",
			ExposedPorts: []string{"9000/tcp"},
			Env: map[string]string{
				"MINIO_ROOT_USER":     testS3AccessKey,
				"MINIO_ROOT_PASSWORD": testS3SecretKey,
			},
			Cmd:        []string{"server", "/data"},
			WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp"),
		}

		minioContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
		require.NoError(t, err)
		defer func() { _ = minioContainer.Terminate(ctx) }()

		mappedPort, err := minioContainer.MappedPort(ctx, "9000")
		require.NoError(t, err)
		endpoint = fmt.Sprintf("localhost:%s", mappedPort.Port())
	}

	store, err := NewS3Store(S3Config{
		Endpoint:        stripScheme(endpoint),
		AccessKeyID:     testS3AccessKey,
		SecretAccessKey: testS3SecretKey,
		Bucket:          "cryptosvc-test-" + strconv.FormatInt(int64(os.Getpid()), 10),
		KeyPrefix:       "test",
		UseSSL:          false,
	})
	require.NoError(t, err)

	ctx := context.Background()
	id := cryptosvc.NewKeyId("payments")
	wrapped := testWrappedKey(id)

	require.NoError(t, store.Store(ctx, id, wrapped))

	exists, err := store.Exists(ctx, id)
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := store.Retrieve(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, wrapped.Ciphertext, got.Ciphertext)
	assert.Equal(t, wrapped.Metadata.ID, got.Metadata.ID)

	ids, err := store.List(ctx, "payments")
	require.NoError(t, err)
	assert.Len(t, ids, 1)

	require.NoError(t, store.Remove(ctx, id))
	exists, err = store.Exists(ctx, id)
	require.NoError(t, err)
	assert.False(t, exists)
}

func stripScheme(endpoint string) string {
	return strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
}
