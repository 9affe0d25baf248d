package dynamo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-notify-nosql/internal/domain"
)

// maxUnprocessedRetries bounds resubmission of BatchWriteItem leftovers.
const maxUnprocessedRetries = 3

// NotificationRepo provides typed DynamoDB operations for the notifications table.
type NotificationRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewNotificationRepo(client *dynamodb.Client, tableName string) *NotificationRepo {
	return &NotificationRepo{client: client, tableName: tableName}
}

func (r *NotificationRepo) marshal(n *domain.Notification) (map[string]types.AttributeValue, error) {
	item, err := attributevalue.MarshalMap(n)
	if err != nil {
		return nil, fmt.Errorf("marshal notification: %w", err)
	}
	item[fieldCreatedAt] = &types.AttributeValueMemberS{Value: sortKeyTime(n.CreatedAt)}
	return item, nil
}

func groupHeadKey(userID string, category domain.Category) map[string]types.AttributeValue {
	return strKey(fieldNotificationID, groupHeadPrefix+userID+"|"+string(category))
}

// Head reads the group's pointer item and the record it names, both with
// strongly consistent reads, so a record created a moment ago is visible even
// while the GSI lags. headID is the stored pointer; n is nil when there is no
// pointer yet or the record it names was deleted.
func (r *NotificationRepo) Head(ctx context.Context, userID string, category domain.Category) (string, *domain.Notification, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            groupHeadKey(userID, category),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", nil, err
	}
	v, ok := out.Item[fieldHeadID].(*types.AttributeValueMemberS)
	if !ok {
		return "", nil, nil
	}
	n, err := r.Get(ctx, v.Value)
	if errors.Is(err, domain.ErrNotFound) {
		return v.Value, nil, nil
	}
	if err != nil {
		return "", nil, err
	}
	return v.Value, n, nil
}

// Create stores a new record and moves the group head from prevHeadID to it
// in one transaction. It fails with domain.ErrConflict when the id is taken or
// another writer moved the head first.
func (r *NotificationRepo) Create(ctx context.Context, n *domain.Notification, prevHeadID string) error {
	item, err := r.marshal(n)
	if err != nil {
		return err
	}
	_, err = r.client.TransactWriteItems(ctx, createTransaction(r.tableName, item, n, prevHeadID))
	return transactionConflict(err, "notification group changed concurrently")
}

func createTransaction(table string, item map[string]types.AttributeValue, n *domain.Notification, prevHeadID string) *dynamodb.TransactWriteItemsInput {
	head := groupHeadKey(n.RecipientID, n.Category)
	head[fieldHeadID] = &types.AttributeValueMemberS{Value: n.NotificationID}
	head[fieldUpdatedAt] = &types.AttributeValueMemberS{Value: sortKeyTime(n.UpdatedAt)}

	headPut := &types.Put{
		TableName:                aws.String(table),
		Item:                     head,
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": fieldNotificationID},
	}
	if prevHeadID != "" {
		headPut.ConditionExpression = aws.String("#head = :prev")
		headPut.ExpressionAttributeNames = map[string]string{"#head": fieldHeadID}
		headPut.ExpressionAttributeValues = map[string]types.AttributeValue{
			":prev": &types.AttributeValueMemberS{Value: prevHeadID},
		}
	}
	return &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:                aws.String(table),
				Item:                     item,
				ConditionExpression:      aws.String("attribute_not_exists(#id)"),
				ExpressionAttributeNames: map[string]string{"#id": fieldNotificationID},
			}},
			{Put: headPut},
		},
	}
}

// Replace overwrites n only while the stored copy still has prevCount items
// and is unread, so a bundle never loses a concurrent merge or reopens after
// being read.
func (r *NotificationRepo) Replace(ctx context.Context, n *domain.Notification, prevCount int) error {
	item, err := r.marshal(n)
	if err != nil {
		return err
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("#bc = :prev AND #rd = :false"),
		ExpressionAttributeNames: map[string]string{
			"#bc": fieldBundleCount,
			"#rd": fieldIsRead,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":prev":  &types.AttributeValueMemberN{Value: fmt.Sprint(prevCount)},
			":false": &types.AttributeValueMemberBOOL{Value: false},
		},
	})
	return conditionFailed(err, "notification changed concurrently")
}

func (r *NotificationRepo) Get(ctx context.Context, notificationID string) (*domain.Notification, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldNotificationID, notificationID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("notification not found: %w", domain.ErrNotFound)
	}
	var n domain.Notification
	if err := attributevalue.UnmarshalMap(out.Item, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// query drains a paginated query on the user_id-created_at GSI, newest first.
// It stops early once limit items are collected (limit <= 0 means all).
func (r *NotificationRepo) query(ctx context.Context, input *dynamodb.QueryInput, limit int) ([]domain.Notification, error) {
	input.TableName = aws.String(r.tableName)
	input.IndexName = aws.String(indexUserCreatedAt)
	input.ScanIndexForward = aws.Bool(false)

	var notifications []domain.Notification
	p := dynamodb.NewQueryPaginator(r.client, input)
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var page []domain.Notification
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, err
		}
		notifications = append(notifications, page...)
		if limit > 0 && len(notifications) >= limit {
			return notifications[:limit], nil
		}
	}
	return notifications, nil
}

// ListRecent returns the recipient's records of one category created at or
// after since, newest first.
func (r *NotificationRepo) ListRecent(ctx context.Context, userID string, category domain.Category, since time.Time) ([]domain.Notification, error) {
	return r.query(ctx, &dynamodb.QueryInput{
		KeyConditionExpression: aws.String("#uid = :uid AND #ca >= :since"),
		FilterExpression:       aws.String("#cat = :cat"),
		ExpressionAttributeNames: map[string]string{
			"#uid": fieldUserID,
			"#ca":  fieldCreatedAt,
			"#cat": fieldCategory,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid":   &types.AttributeValueMemberS{Value: userID},
			":since": &types.AttributeValueMemberS{Value: sortKeyTime(since)},
			":cat":   &types.AttributeValueMemberS{Value: string(category)},
		},
	}, 0)
}

// ListUnread queries the user_id-created_at GSI and filters for is_read = false.
func (r *NotificationRepo) ListUnread(ctx context.Context, userID string) ([]domain.Notification, error) {
	return r.query(ctx, &dynamodb.QueryInput{
		KeyConditionExpression: aws.String("#uid = :uid"),
		FilterExpression:       aws.String("#rd = :false"),
		ExpressionAttributeNames: map[string]string{
			"#uid": fieldUserID,
			"#rd":  fieldIsRead,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid":   &types.AttributeValueMemberS{Value: userID},
			":false": &types.AttributeValueMemberBOOL{Value: false},
		},
	}, 0)
}

func (r *NotificationRepo) CountByRecipient(ctx context.Context, userID string) (int, error) {
	p := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:                aws.String(r.tableName),
		IndexName:                aws.String(indexUserCreatedAt),
		KeyConditionExpression:   aws.String("#uid = :uid"),
		ExpressionAttributeNames: map[string]string{"#uid": fieldUserID},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
		Select: types.SelectCount,
	})
	total := 0
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		total += int(out.Count)
	}
	return total, nil
}

// ListPage returns limit records after skipping offset, newest first. DynamoDB
// has no offset, so the skipped prefix is read and discarded.
func (r *NotificationRepo) ListPage(ctx context.Context, userID string, offset, limit int) ([]domain.Notification, error) {
	all, err := r.query(ctx, &dynamodb.QueryInput{
		KeyConditionExpression:   aws.String("#uid = :uid"),
		ExpressionAttributeNames: map[string]string{"#uid": fieldUserID},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
	}, offset+limit)
	if err != nil {
		return nil, err
	}
	if offset >= len(all) {
		return nil, nil
	}
	return all[offset:], nil
}

// MarkAsRead sets is_read and returns the updated record.
func (r *NotificationRepo) MarkAsRead(ctx context.Context, notificationID string) (*domain.Notification, error) {
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldIsRead:    true,
		fieldUpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	ue.Names["#id"] = fieldNotificationID
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldNotificationID, notificationID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, fmt.Errorf("notification not found: %w", domain.ErrNotFound)
		}
		return nil, err
	}
	var n domain.Notification
	if err := attributevalue.UnmarshalMap(out.Attributes, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

// Delete removes records in BatchWriteItem chunks.
func (r *NotificationRepo) Delete(ctx context.Context, notificationIDs []string) error {
	for start := 0; start < len(notificationIDs); start += batchWriteLimit {
		end := start + batchWriteLimit
		if end > len(notificationIDs) {
			end = len(notificationIDs)
		}
		reqs := make([]types.WriteRequest, 0, end-start)
		for _, id := range notificationIDs[start:end] {
			reqs = append(reqs, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: strKey(fieldNotificationID, id)},
			})
		}
		if err := r.batchWrite(ctx, reqs); err != nil {
			return err
		}
	}
	return nil
}

func (r *NotificationRepo) batchWrite(ctx context.Context, reqs []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{r.tableName: reqs}
	for attempt := 0; attempt <= maxUnprocessedRetries; attempt++ {
		out, err := r.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return fmt.Errorf("batch delete notifications: %w", err)
		}
		if len(out.UnprocessedItems[r.tableName]) == 0 {
			return nil
		}
		pending = out.UnprocessedItems
		slog.Warn("batch delete left unprocessed items", "table", r.tableName, "count", len(pending[r.tableName]), "attempt", attempt+1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 100 * time.Millisecond):
		}
	}
	return fmt.Errorf("batch delete notifications: %d items unprocessed", len(pending[r.tableName]))
}
