// Package dynamo stores collections as items of a DynamoDB table keyed by "key".
package dynamo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// API is the subset of the DynamoDB client used here.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// KV is a store.KV over one table.
type KV struct {
	api   API
	table string
}

// New loads the default AWS configuration. endpoint overrides the service URL, which is how
// DynamoDB Local is reached.
func New(ctx context.Context, table, region, endpoint string) (*KV, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return NewWithAPI(client, table), nil
}

// NewWithAPI wraps an existing client.
func NewWithAPI(api API, table string) *KV {
	return &KV{api: api, table: table}
}

// Read returns the stored value, or nil when the item does not exist.
func (k *KV) Read(ctx context.Context, key string) ([]byte, error) {
	out, err := k.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(k.table),
		Key:            map[string]types.AttributeValue{"key": &types.AttributeValueMemberS{Value: key}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", key, err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}

	switch v := out.Item["value"].(type) {
	case *types.AttributeValueMemberB:
		return v.Value, nil
	case *types.AttributeValueMemberS:
		return []byte(v.Value), nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("get item %s: unexpected value attribute %T", key, v)
	}
}

// Write puts the value under key.
func (k *KV) Write(ctx context.Context, key string, value []byte) error {
	_, err := k.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(k.table),
		Item: map[string]types.AttributeValue{
			"key":        &types.AttributeValueMemberS{Value: key},
			"value":      &types.AttributeValueMemberB{Value: value},
			"updated_at": &types.AttributeValueMemberN{Value: strconv.FormatInt(time.Now().UTC().Unix(), 10)},
		},
	})
	if err != nil {
		return fmt.Errorf("put item %s: %w", key, err)
	}
	return nil
}

// Ping describes the table.
func (k *KV) Ping(ctx context.Context) error {
	if _, err := k.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(k.table)}); err != nil {
		return fmt.Errorf("describe table %s: %w", k.table, err)
	}
	return nil
}
