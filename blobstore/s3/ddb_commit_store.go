package s3

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/hupe1980/zlog/blobstore"
)

// stagedMarker separates a blob name from the unique suffix of its staged
// S3 object.
const stagedMarker = ".staged-"

// DDBCommitStore implements blobstore.ConditionalStore backed by S3 with
// DynamoDB for atomic create-if-absent commits. This enables safe concurrent
// reconfigurations on buckets without conditional writes.
//
// A conditional create:
//   - Writes the content to a uniquely named staged S3 object
//   - Commits name -> staged object with a DynamoDB conditional write
//   - Deletes the staged object if another writer committed first
//
// Table schema:
//   - Partition key: base_uri (string) - the S3 prefix/path
//   - Sort key: name (string) - the blob name
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name zlog-commits \
//	  --attribute-definitions AttributeName=base_uri,AttributeType=S AttributeName=name,AttributeType=S \
//	  --key-schema AttributeName=base_uri,KeyType=HASH AttributeName=name,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type DDBCommitStore struct {
	s3Store   *Store
	ddbClient DDBClient
	tableName string
	baseURI   string // S3 bucket/prefix used as partition key
}

// DDBClient is the interface for DynamoDB operations.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// NewDDBCommitStore creates a new S3+DynamoDB commit store.
// The baseURI should be "s3://bucket/prefix" format used as partition key.
func NewDDBCommitStore(s3Store *Store, ddbClient DDBClient, tableName, baseURI string) *DDBCommitStore {
	return &DDBCommitStore{
		s3Store:   s3Store,
		ddbClient: ddbClient,
		tableName: tableName,
		baseURI:   baseURI,
	}
}

func (s *DDBCommitStore) itemKey(name string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"base_uri": &types.AttributeValueMemberS{Value: s.baseURI},
		"name":     &types.AttributeValueMemberS{Value: name},
	}
}

// committedKey returns the staged object a committed name points to.
func (s *DDBCommitStore) committedKey(ctx context.Context, name string) (string, bool, error) {
	resp, err := s.ddbClient.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.itemKey(name),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to read commit from DynamoDB: %w", err)
	}
	if len(resp.Item) == 0 {
		return "", false, nil
	}
	objAttr, ok := resp.Item["object_key"].(*types.AttributeValueMemberS)
	if !ok {
		return "", false, errors.New("invalid object_key attribute in DynamoDB")
	}
	return objAttr.Value, true, nil
}

// Get reads a blob, resolving committed names through DynamoDB.
func (s *DDBCommitStore) Get(ctx context.Context, name string) ([]byte, error) {
	objectKey, ok, err := s.committedKey(ctx, name)
	if err != nil {
		return nil, err
	}
	if ok {
		return s.s3Store.Get(ctx, objectKey)
	}
	return s.s3Store.Get(ctx, name)
}

// Put writes a blob directly to S3 (last writer wins).
func (s *DDBCommitStore) Put(ctx context.Context, name string, data []byte) error {
	return s.s3Store.Put(ctx, name, data)
}

// PutIfAbsent stages data in S3 and commits it with a conditional write.
func (s *DDBCommitStore) PutIfAbsent(ctx context.Context, name string, data []byte) error {
	staged := name + stagedMarker + uuid.NewString()
	if err := s.s3Store.Put(ctx, staged, data); err != nil {
		return err
	}

	item := s.itemKey(name)
	item["object_key"] = &types.AttributeValueMemberS{Value: staged}

	_, err := s.ddbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(s.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#n)"),
		ExpressionAttributeNames: map[string]string{"#n": "name"},
	})
	if err != nil {
		_ = s.s3Store.Delete(ctx, staged)

		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return blobstore.ErrExists
		}
		return fmt.Errorf("failed to commit %s to DynamoDB: %w", name, err)
	}
	return nil
}

// Delete removes a blob and its commit record.
func (s *DDBCommitStore) Delete(ctx context.Context, name string) error {
	objectKey, ok, err := s.committedKey(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return s.s3Store.Delete(ctx, name)
	}

	if _, err := s.ddbClient.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.itemKey(name),
	}); err != nil {
		return fmt.Errorf("failed to delete commit from DynamoDB: %w", err)
	}
	return s.s3Store.Delete(ctx, objectKey)
}

// List merges committed names with plain S3 blobs. Staged objects are
// hidden.
func (s *DDBCommitStore) List(ctx context.Context, prefix string) ([]string, error) {
	seen := make(map[string]struct{})

	paginator := dynamodb.NewQueryPaginator(s.ddbClient, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("base_uri = :uri AND begins_with(#n, :prefix)"),
		ExpressionAttributeNames: map[string]string{
			"#n": "name",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri":    &types.AttributeValueMemberS{Value: s.baseURI},
			":prefix": &types.AttributeValueMemberS{Value: prefix},
		},
		ConsistentRead: aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query DynamoDB: %w", err)
		}
		for _, item := range page.Items {
			if n, ok := item["name"].(*types.AttributeValueMemberS); ok {
				seen[n.Value] = struct{}{}
			}
		}
	}

	plain, err := s.s3Store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	for _, name := range plain {
		if !strings.Contains(name, stagedMarker) {
			seen[name] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

var _ blobstore.ConditionalStore = (*DDBCommitStore)(nil)
