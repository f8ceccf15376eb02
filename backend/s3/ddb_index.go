package s3

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DDBClient is the interface for DynamoDB operations used by the index.
// *dynamodb.Client satisfies it.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// ExistenceIndex records which cache keys have been written to an S3 tier,
// turning most ProbablyExists probes into one cheap DynamoDB read instead of
// an S3 HeadObject.
//
// The index is advisory: a missing row falls back to S3 (no false
// negatives), and a stale row is a false positive corrected at Get time.
// Both are allowed by the backend contract.
//
// Table schema:
//   - Partition key: cache_key (string)
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name cachego-index \
//	  --attribute-definitions AttributeName=cache_key,AttributeType=S \
//	  --key-schema AttributeName=cache_key,KeyType=HASH \
//	  --billing-mode PAY_PER_REQUEST
type ExistenceIndex struct {
	client    DDBClient
	tableName string
}

// NewExistenceIndex creates an index over the given DynamoDB table.
func NewExistenceIndex(client DDBClient, tableName string) *ExistenceIndex {
	return &ExistenceIndex{
		client:    client,
		tableName: tableName,
	}
}

// Add records that key has been written.
func (ix *ExistenceIndex) Add(ctx context.Context, key string) error {
	_, err := ix.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(ix.tableName),
		Item: map[string]types.AttributeValue{
			"cache_key": &types.AttributeValueMemberS{Value: key},
		},
	})
	return err
}

// Has reports whether key is recorded in the index.
func (ix *ExistenceIndex) Has(ctx context.Context, key string) (bool, error) {
	out, err := ix.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(ix.tableName),
		ConsistentRead: aws.Bool(false),
		Key: map[string]types.AttributeValue{
			"cache_key": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return false, err
	}
	return len(out.Item) > 0, nil
}

// Remove drops key from the index.
func (ix *ExistenceIndex) Remove(ctx context.Context, key string) error {
	_, err := ix.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(ix.tableName),
		Key: map[string]types.AttributeValue{
			"cache_key": &types.AttributeValueMemberS{Value: key},
		},
	})
	return err
}
