// Package dynamodb implements a backend on Amazon DynamoDB.
//
// Every object is a partition. The partition holds one epoch item and one
// item per slot or key. Slot writes are transactions that check the epoch
// item and the slot's absence together, so fencing and write-once hold across
// any number of clients.
//
// Table schema:
//   - Partition key: oid (string)
//   - Sort key: sk (string)
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name zlog \
//	  --attribute-definitions AttributeName=oid,AttributeType=S AttributeName=sk,AttributeType=S \
//	  --key-schema AttributeName=oid,KeyType=HASH AttributeName=sk,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/hupe1980/zlog/backend"
	"github.com/hupe1980/zlog/internal/compress"
)

const (
	attrOID   = "oid"
	attrSK    = "sk"
	attrEpoch = "epoch"
	attrState = "state"
	attrData  = "data"

	epochSK   = "epoch"
	slotSKPfx = "p#"
	kvSKPfx   = "k#"

	stateData      = "data"
	stateTombstone = "tomb"

	// maxTransactItems is DynamoDB's per-transaction item limit.
	maxTransactItems = 100
)

// Condition expressions. The mock client in the tests evaluates exactly
// these strings.
const (
	condEpochCurrent = "attribute_not_exists(#e) OR #e <= :e"
	condEpochAdvance = "attribute_not_exists(#e) OR #e < :e"
	condSlotEmpty    = "attribute_not_exists(#sk)"
	condSlotFillable = "attribute_not_exists(#sk) OR #st = :tomb"
)

// ErrTableNotFound is returned when the configured table does not exist.
var ErrTableNotFound = errors.New("dynamodb: table not found")

// DDBClient is the subset of the DynamoDB API the backend uses.
type DDBClient interface {
	GetItem(ctx context.Context, params *ddb.GetItemInput, optFns ...func(*ddb.Options)) (*ddb.GetItemOutput, error)
	Query(ctx context.Context, params *ddb.QueryInput, optFns ...func(*ddb.Options)) (*ddb.QueryOutput, error)
	UpdateItem(ctx context.Context, params *ddb.UpdateItemInput, optFns ...func(*ddb.Options)) (*ddb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, params *ddb.TransactWriteItemsInput, optFns ...func(*ddb.Options)) (*ddb.TransactWriteItemsOutput, error)
}

type options struct {
	compression compress.Type
}

// Option configures a Backend.
type Option func(*options)

// WithCompression sets the compression applied to slot payloads.
func WithCompression(t compress.Type) Option {
	return func(o *options) {
		o.compression = t
	}
}

// Backend stores log objects in a DynamoDB table.
type Backend struct {
	client DDBClient
	table  string
	opts   options
}

// New creates a backend on table using client.
func New(client DDBClient, table string, optFns ...Option) *Backend {
	opts := options{compression: compress.None}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Backend{client: client, table: table, opts: opts}
}

// NewFromConfig creates a backend with a client built from cfg.
func NewFromConfig(cfg aws.Config, table string, optFns ...Option) *Backend {
	return New(ddb.NewFromConfig(cfg), table, optFns...)
}

func slotSK(pos uint64) string {
	// Zero padding keeps lexical order equal to numeric order.
	return fmt.Sprintf("%s%020d", slotSKPfx, pos)
}

func parseSlotSK(sk string) (uint64, error) {
	return strconv.ParseUint(strings.TrimPrefix(sk, slotSKPfx), 10, 64)
}

func itemKey(oid, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrOID: &types.AttributeValueMemberS{Value: oid},
		attrSK:  &types.AttributeValueMemberS{Value: sk},
	}
}

func epochValue(epoch uint64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatUint(epoch, 10)}
}

// epochCheck fences a transaction on the object's epoch item.
func (b *Backend) epochCheck(oid string, epoch uint64) types.TransactWriteItem {
	return types.TransactWriteItem{
		ConditionCheck: &types.ConditionCheck{
			TableName:                aws.String(b.table),
			Key:                      itemKey(oid, epochSK),
			ConditionExpression:      aws.String(condEpochCurrent),
			ExpressionAttributeNames: map[string]string{"#e": attrEpoch},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":e": epochValue(epoch),
			},
		},
	}
}

func (b *Backend) slotPut(oid string, pos uint64, state string, data []byte, cond string) types.TransactWriteItem {
	item := itemKey(oid, slotSK(pos))
	item[attrState] = &types.AttributeValueMemberS{Value: state}
	if data != nil {
		item[attrData] = &types.AttributeValueMemberB{Value: data}
	}

	put := &types.Put{
		TableName: aws.String(b.table),
		Item:      item,
	}
	if cond != "" {
		put.ConditionExpression = aws.String(cond)
		put.ExpressionAttributeNames = map[string]string{"#sk": attrSK}
		if cond == condSlotFillable {
			put.ExpressionAttributeNames["#st"] = attrState
			put.ExpressionAttributeValues = map[string]types.AttributeValue{
				":tomb": &types.AttributeValueMemberS{Value: stateTombstone},
			}
		}
	}
	return types.TransactWriteItem{Put: put}
}

// fencedPut runs an epoch check and a slot put as one transaction and maps a
// cancellation to the failing condition.
func (b *Backend) fencedPut(ctx context.Context, oid string, epoch uint64, put types.TransactWriteItem) error {
	_, err := b.client.TransactWriteItems(ctx, &ddb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{b.epochCheck(oid, epoch), put},
	})
	if err == nil {
		return nil
	}

	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		reasons := canceled.CancellationReasons
		if len(reasons) > 0 && aws.ToString(reasons[0].Code) == "ConditionalCheckFailed" {
			return backend.ErrStaleEpoch
		}
		if len(reasons) > 1 && aws.ToString(reasons[1].Code) == "ConditionalCheckFailed" {
			return backend.ErrReadOnly
		}
	}
	return b.translate(err)
}

func (b *Backend) translate(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ResourceNotFoundException" {
		return fmt.Errorf("%w: %s", ErrTableNotFound, b.table)
	}
	return fmt.Errorf("dynamodb: %w", err)
}

// Write implements backend.Backend.
func (b *Backend) Write(ctx context.Context, oid string, epoch, position uint64, data []byte) error {
	block, err := compress.Encode(data, b.opts.compression)
	if err != nil {
		return fmt.Errorf("dynamodb: compress: %w", err)
	}
	return b.fencedPut(ctx, oid, epoch, b.slotPut(oid, position, stateData, block, condSlotEmpty))
}

// Read implements backend.Backend.
func (b *Backend) Read(ctx context.Context, oid string, position uint64) ([]byte, error) {
	out, err := b.client.GetItem(ctx, &ddb.GetItemInput{
		TableName:      aws.String(b.table),
		Key:            itemKey(oid, slotSK(position)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, b.translate(err)
	}
	if len(out.Item) == 0 {
		return nil, backend.ErrNotWritten
	}

	state, _ := out.Item[attrState].(*types.AttributeValueMemberS)
	if state != nil && state.Value == stateTombstone {
		return nil, backend.ErrInvalidated
	}
	data, ok := out.Item[attrData].(*types.AttributeValueMemberB)
	if !ok {
		return nil, fmt.Errorf("dynamodb: %s@%d: missing data attribute", oid, position)
	}
	return compress.Decode(data.Value)
}

// Fill implements backend.Backend.
func (b *Backend) Fill(ctx context.Context, oid string, epoch, position uint64) error {
	return b.fencedPut(ctx, oid, epoch, b.slotPut(oid, position, stateTombstone, nil, condSlotFillable))
}

// Trim implements backend.Backend.
func (b *Backend) Trim(ctx context.Context, oid string, epoch, position uint64) error {
	return b.fencedPut(ctx, oid, epoch, b.slotPut(oid, position, stateTombstone, nil, ""))
}

// Seal implements backend.Backend.
func (b *Backend) Seal(ctx context.Context, oid string, epoch uint64) error {
	_, err := b.client.UpdateItem(ctx, &ddb.UpdateItemInput{
		TableName:                aws.String(b.table),
		Key:                      itemKey(oid, epochSK),
		UpdateExpression:         aws.String("SET #e = :e"),
		ConditionExpression:      aws.String(condEpochAdvance),
		ExpressionAttributeNames: map[string]string{"#e": attrEpoch},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":e": epochValue(epoch),
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return backend.ErrStaleEpoch
		}
		return b.translate(err)
	}
	return nil
}

// MaxPosition implements backend.Backend.
func (b *Backend) MaxPosition(ctx context.Context, oid string) (uint64, bool, error) {
	out, err := b.client.Query(ctx, &ddb.QueryInput{
		TableName:              aws.String(b.table),
		KeyConditionExpression: aws.String("#oid = :oid AND begins_with(#sk, :p)"),
		ExpressionAttributeNames: map[string]string{
			"#oid": attrOID,
			"#sk":  attrSK,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":oid": &types.AttributeValueMemberS{Value: oid},
			":p":   &types.AttributeValueMemberS{Value: slotSKPfx},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
		ConsistentRead:   aws.Bool(true),
	})
	if err != nil {
		return 0, false, b.translate(err)
	}
	if len(out.Items) == 0 {
		return 0, false, nil
	}

	sk, ok := out.Items[0][attrSK].(*types.AttributeValueMemberS)
	if !ok {
		return 0, false, errors.New("dynamodb: invalid sort key attribute")
	}
	pos, err := parseSlotSK(sk.Value)
	if err != nil {
		return 0, false, fmt.Errorf("dynamodb: parse sort key %q: %w", sk.Value, err)
	}
	return pos, true, nil
}

// SetKeys implements backend.KVStore. All keys are written in one
// transaction, so at most 100 keys are accepted per call.
func (b *Backend) SetKeys(ctx context.Context, oid string, kvs map[string][]byte) error {
	if len(kvs) == 0 {
		return nil
	}
	if len(kvs) > maxTransactItems {
		return fmt.Errorf("dynamodb: %d keys exceed the transaction limit of %d", len(kvs), maxTransactItems)
	}

	items := make([]types.TransactWriteItem, 0, len(kvs))
	for k, v := range kvs {
		item := itemKey(oid, kvSKPfx+k)
		item[attrData] = &types.AttributeValueMemberB{Value: v}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{TableName: aws.String(b.table), Item: item},
		})
	}

	if _, err := b.client.TransactWriteItems(ctx, &ddb.TransactWriteItemsInput{TransactItems: items}); err != nil {
		return b.translate(err)
	}
	return nil
}

// GetKey implements backend.KVStore.
func (b *Backend) GetKey(ctx context.Context, oid, key string) ([]byte, error) {
	out, err := b.client.GetItem(ctx, &ddb.GetItemInput{
		TableName:      aws.String(b.table),
		Key:            itemKey(oid, kvSKPfx+key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, b.translate(err)
	}
	v, ok := out.Item[attrData].(*types.AttributeValueMemberB)
	if !ok {
		return nil, backend.ErrNotFound
	}
	return v.Value, nil
}

// Close implements backend.Backend.
func (b *Backend) Close() error {
	return nil
}

var (
	_ backend.Backend = (*Backend)(nil)
	_ backend.KVStore = (*Backend)(nil)
)
