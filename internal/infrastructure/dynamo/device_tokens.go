package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-notify-nosql/internal/domain"
)

// DeviceTokenRepo provides typed DynamoDB operations for the device_tokens
// table. The token itself is the partition key, so re-registering a token
// moves it to its new owner.
type DeviceTokenRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewDeviceTokenRepo(client *dynamodb.Client, tableName string) *DeviceTokenRepo {
	return &DeviceTokenRepo{client: client, tableName: tableName}
}

func (r *DeviceTokenRepo) Put(ctx context.Context, t *domain.DeviceToken) error {
	item, err := attributevalue.MarshalMap(t)
	if err != nil {
		return fmt.Errorf("marshal device token: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *DeviceTokenRepo) ListByRecipient(ctx context.Context, userID string) ([]domain.DeviceToken, error) {
	p := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:                aws.String(r.tableName),
		IndexName:                aws.String(indexUser),
		KeyConditionExpression:   aws.String("#uid = :uid"),
		ExpressionAttributeNames: map[string]string{"#uid": fieldUserID},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
	})
	var tokens []domain.DeviceToken
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var page []domain.DeviceToken
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, err
		}
		tokens = append(tokens, page...)
	}
	return tokens, nil
}

// Delete removes token if it still belongs to userID. A token owned by
// someone else, or already gone, yields domain.ErrNotFound.
func (r *DeviceTokenRepo) Delete(ctx context.Context, userID, token string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(r.tableName),
		Key:                      strKey(fieldToken, token),
		ConditionExpression:      aws.String("#uid = :uid"),
		ExpressionAttributeNames: map[string]string{"#uid": fieldUserID},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("device token not found: %w", domain.ErrNotFound)
	}
	return err
}

// DeleteTokens removes tokens regardless of owner. Used to prune tokens the
// push provider rejected.
func (r *DeviceTokenRepo) DeleteTokens(ctx context.Context, tokens []string) error {
	for start := 0; start < len(tokens); start += batchWriteLimit {
		end := start + batchWriteLimit
		if end > len(tokens) {
			end = len(tokens)
		}
		reqs := make([]types.WriteRequest, 0, end-start)
		for _, tok := range tokens[start:end] {
			reqs = append(reqs, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: strKey(fieldToken, tok)},
			})
		}
		out, err := r.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{r.tableName: reqs},
		})
		if err != nil {
			return fmt.Errorf("batch delete device tokens: %w", err)
		}
		if n := len(out.UnprocessedItems[r.tableName]); n > 0 {
			return fmt.Errorf("batch delete device tokens: %d items unprocessed", n)
		}
	}
	return nil
}
