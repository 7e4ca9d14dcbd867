package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/atulwalsh/legal-intake-ai/pkg/logging"
)

// transactMaxItems is the DynamoDB TransactWriteItems limit.
const transactMaxItems = 100

type dynamoAPI interface {
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(context.Context, *dynamodb.TransactWriteItemsInput, ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// dynamoItem is the single-table layout: collection is the partition key,
// documentId the sort key, payload a JSON string.
type dynamoItem struct {
	Collection string `dynamodbav:"collection"`
	DocumentID string `dynamodbav:"documentId"`
	Data       string `dynamodbav:"data"`
	Timestamp  string `dynamodbav:"timestamp"`
}

// DynamoStore implements Store on a single DynamoDB table.
type DynamoStore struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

var _ Store = (*DynamoStore)(nil)

// NewDynamoStore builds a store backed by the provided DynamoDB client.
func NewDynamoStore(client dynamoAPI, tableName string, logger *logging.Logger) *DynamoStore {
	if client == nil {
		panic("store: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("store: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

func (s *DynamoStore) key(ns Namespace) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"collection": &types.AttributeValueMemberS{Value: ns.Collection},
		"documentId": &types.AttributeValueMemberS{Value: ns.DocumentID},
	}
}

// Get fetches a single document, returning (nil, nil) when absent.
func (s *DynamoStore) Get(ctx context.Context, ns Namespace) (*Memory, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.key(ns),
	})
	if err != nil {
		return nil, fmt.Errorf("store: failed to get %s/%s: %w", ns.Collection, ns.DocumentID, err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	return itemToMemory(out.Item)
}

// Set writes a single document outside any batch.
func (s *DynamoStore) Set(ctx context.Context, ns Namespace, data json.RawMessage) error {
	item, err := attributevalue.MarshalMap(dynamoItem{
		Collection: ns.Collection,
		DocumentID: ns.DocumentID,
		Data:       string(data),
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("store: failed to marshal %s/%s: %w", ns.Collection, ns.DocumentID, err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("store: failed to put %s/%s: %w", ns.Collection, ns.DocumentID, err)
	}
	return nil
}

// Delete removes a document. Deleting an absent document is not an error.
func (s *DynamoStore) Delete(ctx context.Context, ns Namespace) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.key(ns),
	})
	if err != nil {
		return fmt.Errorf("store: failed to delete %s/%s: %w", ns.Collection, ns.DocumentID, err)
	}
	return nil
}

// Query returns every document in a collection whose payload matches the
// filters. Payload filtering happens client-side; the collection partition
// bounds the scan.
func (s *DynamoStore) Query(ctx context.Context, collection string, filters []Filter) ([]Memory, error) {
	var (
		results   []Memory
		exclusive map[string]types.AttributeValue
	)
	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			KeyConditionExpression: aws.String("#c = :collection"),
			ExpressionAttributeNames: map[string]string{
				"#c": "collection",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":collection": &types.AttributeValueMemberS{Value: collection},
			},
			ExclusiveStartKey: exclusive,
		})
		if err != nil {
			return nil, fmt.Errorf("store: failed to query %s: %w", collection, err)
		}
		for _, item := range out.Items {
			mem, err := itemToMemory(item)
			if err != nil {
				return nil, err
			}
			if matchesFilters(mem.Data, filters) {
				results = append(results, *mem)
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		exclusive = out.LastEvaluatedKey
	}
	return results, nil
}

// NewBatch opens a staged write set committed via TransactWriteItems.
func (s *DynamoStore) NewBatch() Batch {
	return &dynamoBatch{store: s}
}

type dynamoBatch struct {
	store  *DynamoStore
	mu     sync.Mutex
	staged []types.TransactWriteItem
	closed bool
}

func (b *dynamoBatch) Set(ns Namespace, data json.RawMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrNoBatchInProgress
	}
	if len(b.staged) >= transactMaxItems {
		return fmt.Errorf("store: batch exceeds %d staged writes", transactMaxItems)
	}
	item, err := attributevalue.MarshalMap(dynamoItem{
		Collection: ns.Collection,
		DocumentID: ns.DocumentID,
		Data:       string(data),
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("store: failed to marshal %s/%s: %w", ns.Collection, ns.DocumentID, err)
	}
	b.staged = append(b.staged, types.TransactWriteItem{
		Put: &types.Put{
			TableName: aws.String(b.store.tableName),
			Item:      item,
		},
	})
	return nil
}

// Commit applies all staged writes in one transaction. On error nothing is
// applied and the batch stays open so the caller may retry.
func (b *dynamoBatch) Commit(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrNoBatchInProgress
	}
	if len(b.staged) == 0 {
		b.closed = true
		return nil
	}
	_, err := b.store.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: b.staged,
	})
	if err != nil {
		return fmt.Errorf("store: batch commit failed: %w", err)
	}
	b.closed = true
	b.staged = nil
	return nil
}

func itemToMemory(item map[string]types.AttributeValue) (*Memory, error) {
	var di dynamoItem
	if err := attributevalue.UnmarshalMap(item, &di); err != nil {
		return nil, fmt.Errorf("store: failed to unmarshal item: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, di.Timestamp)
	if err != nil {
		var zero time.Time
		ts = zero
	}
	return &Memory{
		Collection: di.Collection,
		DocumentID: di.DocumentID,
		Data:       json.RawMessage(di.Data),
		Timestamp:  ts,
	}, nil
}
