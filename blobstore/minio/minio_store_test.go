package minio

import (
	"context"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/zlog/blobstore"
)

// TestMinioStore_Integration requires a running MinIO instance.
// Skip if not available.
func TestMinioStore_Integration(t *testing.T) {
	endpoint := "localhost:9000"
	accessKey := "minioadmin"
	secretKey := "minioadmin"
	bucket := "test-zlog"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()

	// Check if MinIO is reachable
	if _, err := client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	store := NewStore(client, bucket, "test-prefix/")
	t.Cleanup(func() {
		names, _ := store.List(ctx, "")
		for _, name := range names {
			_ = store.Delete(ctx, name)
		}
	})

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	require.NoError(t, store.Put(ctx, "CURRENT", []byte("0")))
	data, err := store.Get(ctx, "CURRENT")
	require.NoError(t, err)
	assert.Equal(t, []byte("0"), data)

	require.NoError(t, store.PutIfAbsent(ctx, "PROJECTION-000000", []byte("p0")))
	assert.ErrorIs(t, store.PutIfAbsent(ctx, "PROJECTION-000000", []byte("p0'")), blobstore.ErrExists)

	names, err := store.List(ctx, "PROJECTION-")
	require.NoError(t, err)
	assert.Equal(t, []string{"PROJECTION-000000"}, names)

	require.NoError(t, store.Delete(ctx, "CURRENT"))
	_, err = store.Get(ctx, "CURRENT")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestStore_Keys(t *testing.T) {
	s := NewStore(nil, "bucket", "logs/")
	assert.Equal(t, "logs/PROJECTION-000001", s.key("PROJECTION-000001"))

	root := NewStore(nil, "bucket", "")
	assert.Equal(t, "CURRENT", root.key("CURRENT"))
}
