package abandonment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// idIndex is the GSI projecting all attributes keyed by log id.
const idIndex = "id-index"

// DynamoDBAPI is the subset of the DynamoDB client this repository
// uses. Declared here on the consumer side; the client bundle in
// internal/aws satisfies it.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error)
	GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error)
	Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error)
	Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error)
}

// DynamoLogRepo is the durable LogRepo. The table's partition key is
// reference_id, so the conditional put in CreateIfAbsent enforces the
// at-most-one-log invariant even across process restarts.
type DynamoLogRepo struct {
	client    DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewDynamoLogRepo returns a repository bound to the given table.
func NewDynamoLogRepo(client DynamoDBAPI, tableName string) *DynamoLogRepo {
	return &DynamoLogRepo{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// CreateIfAbsent implements LogRepo. Returns (false, nil) when a log
// for the same reference id already exists.
func (r *DynamoLogRepo) CreateIfAbsent(ctx context.Context, log Log) (bool, error) {
	now := r.nowFunc()
	log.CreatedAt = now
	log.UpdatedAt = now
	if log.Recovery == "" {
		log.Recovery = RecoveryPending
	}

	item, err := attributevalue.MarshalMap(log)
	if err != nil {
		return false, fmt.Errorf("marshal log: %w", err)
	}

	input := &dyn.PutItemInput{
		TableName:           &r.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(reference_id)"),
	}
	if _, err := r.client.PutItem(ctx, input); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException" {
			return false, nil
		}
		return false, fmt.Errorf("put log: %w", err)
	}
	return true, nil
}

// FindByReference implements LogRepo.
func (r *DynamoLogRepo) FindByReference(ctx context.Context, referenceID string) (*Log, error) {
	out, err := r.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &r.tableName,
		Key: map[string]types.AttributeValue{
			"reference_id": &types.AttributeValueMemberS{Value: referenceID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get log by reference: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var log Log
	if err := attributevalue.UnmarshalMap(out.Item, &log); err != nil {
		return nil, fmt.Errorf("unmarshal log: %w", err)
	}
	return &log, nil
}

// Get implements LogRepo via the id GSI.
func (r *DynamoLogRepo) Get(ctx context.Context, logID string) (*Log, error) {
	out, err := r.client.Query(ctx, &dyn.QueryInput{
		TableName:                 &r.tableName,
		IndexName:                 awsString(idIndex),
		KeyConditionExpression:    awsString("id = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":id": &types.AttributeValueMemberS{Value: logID}},
		Limit:                     awsInt32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("query log by id: %w", err)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}
	var log Log
	if err := attributevalue.UnmarshalMap(out.Items[0], &log); err != nil {
		return nil, fmt.Errorf("unmarshal log: %w", err)
	}
	return &log, nil
}

// Update implements LogRepo. The patch is applied with a single
// UpdateItem keyed by the log's reference id.
func (r *DynamoLogRepo) Update(ctx context.Context, logID string, patch Patch) (*Log, error) {
	log, err := r.Get(ctx, logID)
	if err != nil {
		return nil, err
	}
	if log == nil {
		return nil, fmt.Errorf("update log %s: not found", logID)
	}

	expr := "SET updated_at = :ua"
	values := map[string]types.AttributeValue{
		":ua": &types.AttributeValueMemberS{Value: r.nowFunc().Format(time.RFC3339Nano)},
	}
	names := map[string]string{}
	if patch.Recovery != nil {
		expr += ", recovery_status = :rs"
		values[":rs"] = &types.AttributeValueMemberS{Value: *patch.Recovery}
	}
	if patch.Notes != nil {
		expr += ", #n = :n"
		names["#n"] = "notes"
		values[":n"] = &types.AttributeValueMemberS{Value: *patch.Notes}
	}

	input := &dyn.UpdateItemInput{
		TableName: &r.tableName,
		Key: map[string]types.AttributeValue{
			"reference_id": &types.AttributeValueMemberS{Value: log.ReferenceID},
		},
		UpdateExpression:          &expr,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	}
	if len(names) > 0 {
		input.ExpressionAttributeNames = names
	}

	out, err := r.client.UpdateItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("update log: %w", err)
	}
	var updated Log
	if err := attributevalue.UnmarshalMap(out.Attributes, &updated); err != nil {
		return nil, fmt.Errorf("unmarshal updated log: %w", err)
	}
	return &updated, nil
}

// Query implements LogRepo with a filtered scan. The recovery table is
// operator-scale, so a scan is acceptable here.
func (r *DynamoLogRepo) Query(ctx context.Context, filter Filter) ([]Log, error) {
	input := &dyn.ScanInput{TableName: &r.tableName}

	var exprs []string
	values := map[string]types.AttributeValue{}
	names := map[string]string{}
	if filter.Recovery != "" {
		exprs = append(exprs, "recovery_status = :rs")
		values[":rs"] = &types.AttributeValueMemberS{Value: filter.Recovery}
	}
	if filter.Type != "" {
		exprs = append(exprs, "#t = :t")
		names["#t"] = "type"
		values[":t"] = &types.AttributeValueMemberS{Value: filter.Type}
	}
	if filter.MinValue > 0 {
		exprs = append(exprs, "#v >= :mv")
		names["#v"] = "value"
		values[":mv"] = &types.AttributeValueMemberN{Value: strconv.FormatFloat(filter.MinValue, 'f', -1, 64)}
	}
	if len(exprs) > 0 {
		filterExpr := exprs[0]
		for _, e := range exprs[1:] {
			filterExpr += " AND " + e
		}
		input.FilterExpression = &filterExpr
		input.ExpressionAttributeValues = values
		if len(names) > 0 {
			input.ExpressionAttributeNames = names
		}
	}

	out, err := r.client.Scan(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("scan logs: %w", err)
	}

	var logs []Log
	for _, item := range out.Items {
		var log Log
		if err := attributevalue.UnmarshalMap(item, &log); err != nil {
			return nil, fmt.Errorf("unmarshal log: %w", err)
		}
		// Date-range filtering happens client side: abandoned_at is
		// stored as an RFC3339 string attribute.
		if filter.Matches(log) {
			logs = append(logs, log)
		}
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].AbandonedAt.After(logs[j].AbandonedAt) })
	return logs, nil
}

func awsString(s string) *string { return &s }
func awsInt32(n int32) *int32    { return &n }
