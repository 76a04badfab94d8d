package abandonment

import (
	"context"
	"errors"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// mockDynamo is a minimal in-memory stand-in for the DynamoDB API used
// by DynamoLogRepo: conditional puts keyed by reference_id, a fake
// id-index GSI, naive update expressions and unfiltered scans (the repo
// re-filters client side).
type mockDynamo struct {
	mu    sync.Mutex
	table map[string]map[string]types.AttributeValue // reference_id -> item
}

var _ DynamoDBAPI = (*mockDynamo)(nil)

func newMockDynamo() *mockDynamo {
	return &mockDynamo{table: map[string]map[string]types.AttributeValue{}}
}

func strAttr(item map[string]types.AttributeValue, key string) string {
	if v, ok := item[key].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func (m *mockDynamo) PutItem(_ context.Context, params *dyn.PutItemInput, _ ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pk := strAttr(params.Item, "reference_id")
	if pk == "" {
		return nil, errors.New("missing reference_id in put")
	}
	if params.ConditionExpression != nil && *params.ConditionExpression == "attribute_not_exists(reference_id)" {
		if _, exists := m.table[pk]; exists {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.table[pk] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(_ context.Context, params *dyn.GetItemInput, _ ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pk := strAttr(params.Key, "reference_id")
	item, ok := m.table[pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *mockDynamo) UpdateItem(_ context.Context, params *dyn.UpdateItemInput, _ ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pk := strAttr(params.Key, "reference_id")
	item, ok := m.table[pk]
	if !ok {
		return nil, errors.New("item not found")
	}
	// naive SET application for the expressions the repo builds
	if v, ok := params.ExpressionAttributeValues[":ua"]; ok {
		item["updated_at"] = v
	}
	if v, ok := params.ExpressionAttributeValues[":rs"]; ok {
		item["recovery_status"] = v
	}
	if v, ok := params.ExpressionAttributeValues[":n"]; ok {
		item["notes"] = v
	}
	m.table[pk] = item
	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

func (m *mockDynamo) Query(_ context.Context, params *dyn.QueryInput, _ ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if params.IndexName == nil || *params.IndexName != idIndex {
		return nil, errors.New("mock only supports the id-index GSI")
	}
	if params.KeyConditionExpression == nil || !strings.Contains(*params.KeyConditionExpression, "id = :id") {
		return nil, errors.New("unsupported key condition")
	}
	want, ok := params.ExpressionAttributeValues[":id"].(*types.AttributeValueMemberS)
	if !ok {
		return nil, errors.New("missing :id value")
	}

	out := &dyn.QueryOutput{}
	for _, item := range m.table {
		if strAttr(item, "id") == want.Value {
			out.Items = append(out.Items, item)
			break
		}
	}
	return out, nil
}

func (m *mockDynamo) Scan(_ context.Context, _ *dyn.ScanInput, _ ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := &dyn.ScanOutput{}
	for _, item := range m.table {
		out.Items = append(out.Items, item)
	}
	return out, nil
}
