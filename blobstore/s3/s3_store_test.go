package s3

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/zlog/blobstore"
)

func TestStore_Fake(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3Client()
	store := NewStore(client, "bucket", "prefix/", DefaultUploadConfig())

	t.Run("NotFound", func(t *testing.T) {
		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
	})

	t.Run("PutGet", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "CURRENT", []byte("3")))
		data, err := store.Get(ctx, "CURRENT")
		require.NoError(t, err)
		assert.Equal(t, []byte("3"), data)
		assert.Contains(t, client.keys(), "prefix/CURRENT")
	})

	t.Run("PutIfAbsent", func(t *testing.T) {
		require.NoError(t, store.PutIfAbsent(ctx, "PROJECTION-000001", []byte("p1")))
		assert.ErrorIs(t, store.PutIfAbsent(ctx, "PROJECTION-000001", []byte("p1'")), blobstore.ErrExists)

		data, err := store.Get(ctx, "PROJECTION-000001")
		require.NoError(t, err)
		assert.Equal(t, []byte("p1"), data)
	})

	t.Run("List", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "PROJECTION-000002", nil))
		require.NoError(t, store.Put(ctx, "PROJECTIONX", nil))

		names, err := store.List(ctx, "PROJECTION-")
		require.NoError(t, err)
		assert.Equal(t, []string{"PROJECTION-000001", "PROJECTION-000002"}, names)

		all, err := store.List(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 4)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "CURRENT"))
		_, err := store.Get(ctx, "CURRENT")
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
	})
}

func TestStore_Errors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	t.Run("GetPropagates", func(t *testing.T) {
		client := new(MockS3Client)
		store := NewStore(client, "bucket", "p", DefaultUploadConfig())

		client.On("GetObject", mock.Anything, mock.MatchedBy(func(in *s3.GetObjectInput) bool {
			return aws.ToString(in.Bucket) == "bucket" && aws.ToString(in.Key) == "p/x"
		})).Return(nil, boom).Once()

		_, err := store.Get(ctx, "x")
		assert.ErrorIs(t, err, boom)
		client.AssertExpectations(t)
	})

	t.Run("ConditionalConflict", func(t *testing.T) {
		client := new(MockS3Client)
		store := NewStore(client, "bucket", "p", DefaultUploadConfig())

		client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
			return aws.ToString(in.IfNoneMatch) == "*" && in.ChecksumCRC32C != nil
		})).Return(nil, &smithyConflict{}).Once()

		assert.ErrorIs(t, store.PutIfAbsent(ctx, "x", []byte("data")), blobstore.ErrExists)
		client.AssertExpectations(t)
	})

	t.Run("DeleteMissing", func(t *testing.T) {
		client := new(MockS3Client)
		store := NewStore(client, "bucket", "p", DefaultUploadConfig())

		client.On("DeleteObject", mock.Anything, mock.Anything).Return(nil, &types.NotFound{}).Once()
		assert.NoError(t, store.Delete(ctx, "x"))
	})

	t.Run("ListPagination", func(t *testing.T) {
		client := new(MockS3Client)
		store := NewStore(client, "bucket", "prefix/", DefaultUploadConfig())

		client.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
			return in.ContinuationToken == nil
		})).Return(&s3.ListObjectsV2Output{
			Contents:              []types.Object{{Key: aws.String("prefix/b")}},
			IsTruncated:           aws.Bool(true),
			NextContinuationToken: aws.String("next"),
		}, nil).Once()
		client.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(in *s3.ListObjectsV2Input) bool {
			return aws.ToString(in.ContinuationToken) == "next"
		})).Return(&s3.ListObjectsV2Output{
			Contents: []types.Object{{Key: aws.String("prefix/a")}},
		}, nil).Once()

		names, err := store.List(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, names)
	})
}

// smithyConflict mimics the API error S3 returns for a lost
// If-None-Match race.
type smithyConflict struct{}

func (*smithyConflict) Error() string                 { return "ConditionalRequestConflict" }
func (*smithyConflict) ErrorCode() string             { return "ConditionalRequestConflict" }
func (*smithyConflict) ErrorMessage() string          { return "conflict" }
func (*smithyConflict) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

func TestComputeCRC32C(t *testing.T) {
	// CRC32C("123456789") = 0xE3069283
	assert.Equal(t, "4waSgw==", computeCRC32C([]byte("123456789")))
}
