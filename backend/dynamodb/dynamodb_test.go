package dynamodb

import (
	"bytes"
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/zlog/backend"
	"github.com/hupe1980/zlog/backend/backendtest"
	"github.com/hupe1980/zlog/internal/compress"
)

// mockDDBClient is an in-memory DynamoDB that understands the condition
// expressions the backend issues.
type mockDDBClient struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
}

func newMockDDBClient() *mockDDBClient {
	return &mockDDBClient{items: make(map[string]map[string]types.AttributeValue)}
}

func keyOf(key map[string]types.AttributeValue) string {
	return key[attrOID].(*types.AttributeValueMemberS).Value + "\x00" + key[attrSK].(*types.AttributeValueMemberS).Value
}

func numAttr(av types.AttributeValue) uint64 {
	n, _ := strconv.ParseUint(av.(*types.AttributeValueMemberN).Value, 10, 64)
	return n
}

func (m *mockDDBClient) eval(item map[string]types.AttributeValue, cond *string, values map[string]types.AttributeValue) bool {
	if cond == nil {
		return true
	}
	switch *cond {
	case condEpochCurrent, condEpochAdvance:
		cur, ok := item[attrEpoch]
		if item == nil || !ok {
			return true
		}
		if *cond == condEpochCurrent {
			return numAttr(cur) <= numAttr(values[":e"])
		}
		return numAttr(cur) < numAttr(values[":e"])
	case condSlotEmpty:
		return item == nil
	case condSlotFillable:
		if item == nil {
			return true
		}
		st, _ := item[attrState].(*types.AttributeValueMemberS)
		return st != nil && st.Value == stateTombstone
	}
	panic("unexpected condition " + *cond)
}

func (m *mockDDBClient) GetItem(_ context.Context, params *ddb.GetItemInput, _ ...func(*ddb.Options)) (*ddb.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &ddb.GetItemOutput{Item: m.items[keyOf(params.Key)]}, nil
}

func (m *mockDDBClient) Query(_ context.Context, params *ddb.QueryInput, _ ...func(*ddb.Options)) (*ddb.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	oid := params.ExpressionAttributeValues[":oid"].(*types.AttributeValueMemberS).Value
	prefix := params.ExpressionAttributeValues[":p"].(*types.AttributeValueMemberS).Value

	var items []map[string]types.AttributeValue
	for _, item := range m.items {
		sk := item[attrSK].(*types.AttributeValueMemberS).Value
		if item[attrOID].(*types.AttributeValueMemberS).Value == oid && strings.HasPrefix(sk, prefix) {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		a := items[i][attrSK].(*types.AttributeValueMemberS).Value
		b := items[j][attrSK].(*types.AttributeValueMemberS).Value
		if aws.ToBool(params.ScanIndexForward) {
			return a < b
		}
		return a > b
	})
	if params.Limit != nil && int(*params.Limit) < len(items) {
		items = items[:*params.Limit]
	}
	return &ddb.QueryOutput{Items: items}, nil
}

func (m *mockDDBClient) UpdateItem(_ context.Context, params *ddb.UpdateItemInput, _ ...func(*ddb.Options)) (*ddb.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := keyOf(params.Key)
	item := m.items[k]
	if !m.eval(item, params.ConditionExpression, params.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
	}
	if item == nil {
		item = map[string]types.AttributeValue{
			attrOID: params.Key[attrOID],
			attrSK:  params.Key[attrSK],
		}
		m.items[k] = item
	}
	item[attrEpoch] = params.ExpressionAttributeValues[":e"]
	return &ddb.UpdateItemOutput{}, nil
}

func (m *mockDDBClient) TransactWriteItems(_ context.Context, params *ddb.TransactWriteItemsInput, _ ...func(*ddb.Options)) (*ddb.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reasons := make([]types.CancellationReason, len(params.TransactItems))
	failed := false
	for i, ti := range params.TransactItems {
		ok := true
		switch {
		case ti.ConditionCheck != nil:
			ok = m.eval(m.items[keyOf(ti.ConditionCheck.Key)], ti.ConditionCheck.ConditionExpression, ti.ConditionCheck.ExpressionAttributeValues)
		case ti.Put != nil:
			ok = m.eval(m.items[keyOf(ti.Put.Item)], ti.Put.ConditionExpression, ti.Put.ExpressionAttributeValues)
		}
		reasons[i].Code = aws.String("None")
		if !ok {
			reasons[i].Code = aws.String("ConditionalCheckFailed")
			failed = true
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("transaction cancelled"),
			CancellationReasons: reasons,
		}
	}

	for _, ti := range params.TransactItems {
		if ti.Put != nil {
			m.items[keyOf(ti.Put.Item)] = ti.Put.Item
		}
	}
	return &ddb.TransactWriteItemsOutput{}, nil
}

// missingTableClient fails every call as if the table did not exist.
type missingTableClient struct {
	DDBClient
}

func (missingTableClient) GetItem(context.Context, *ddb.GetItemInput, ...func(*ddb.Options)) (*ddb.GetItemOutput, error) {
	return nil, &types.ResourceNotFoundException{Message: aws.String("no table")}
}

func TestBackend(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) backend.Backend {
		return New(newMockDDBClient(), "zlog")
	})
}

func TestBackend_Compressed(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) backend.Backend {
		return New(newMockDDBClient(), "zlog", WithCompression(compress.LZ4))
	})
}

func TestBackend_KV(t *testing.T) {
	backendtest.RunKV(t, New(newMockDDBClient(), "zlog"))
}

func TestBackend_SetKeysLimit(t *testing.T) {
	b := New(newMockDDBClient(), "zlog")

	kvs := make(map[string][]byte, maxTransactItems+1)
	for i := 0; i <= maxTransactItems; i++ {
		kvs[strconv.Itoa(i)] = []byte{byte(i)}
	}
	assert.Error(t, b.SetKeys(context.Background(), "kv.0", kvs))
	assert.NoError(t, b.SetKeys(context.Background(), "kv.0", nil))
}

func TestBackend_LargeCompressiblePayload(t *testing.T) {
	ctx := context.Background()
	client := newMockDDBClient()
	b := New(client, "zlog", WithCompression(compress.ZSTD))

	payload := bytes.Repeat([]byte("entry"), 10000)
	require.NoError(t, b.Write(ctx, "log.0", 0, 1, payload))

	stored := client.items["log.0\x00"+slotSK(1)][attrData].(*types.AttributeValueMemberB).Value
	assert.Less(t, len(stored), len(payload))

	data, err := b.Read(ctx, "log.0", 1)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestBackend_SlotKeysSortNumerically(t *testing.T) {
	assert.Less(t, slotSK(9), slotSK(10))
	assert.Less(t, slotSK(99), slotSK(1000))

	pos, err := parseSlotSK(slotSK(18446744073709551615))
	require.NoError(t, err)
	assert.Equal(t, uint64(18446744073709551615), pos)
}

func TestBackend_TableNotFound(t *testing.T) {
	b := New(missingTableClient{}, "missing")
	_, err := b.Read(context.Background(), "log.0", 0)
	assert.ErrorIs(t, err, ErrTableNotFound)
}
