package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client the adapter uses.
type DynamoAPI interface {
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// DynamoStore is the durable adapter backed by DynamoDB. The events table
// is keyed by aggregate_id (partition) and sequence (sort); conditional
// writes stand in for the relational uniqueness constraint.
type DynamoStore struct {
	client         DynamoAPI
	eventsTable    string
	snapshotsTable string
}

func NewDynamoStore(client DynamoAPI, eventsTable, snapshotsTable string) *DynamoStore {
	return &DynamoStore{
		client:         client,
		eventsTable:    eventsTable,
		snapshotsTable: snapshotsTable,
	}
}

// dynamoEvent is the DynamoDB item layout for events.
type dynamoEvent struct {
	AggregateID string `dynamodbav:"aggregate_id"`
	Sequence    int    `dynamodbav:"sequence"`
	ID          string `dynamodbav:"id"`
	Type        string `dynamodbav:"type"`
	Body        string `dynamodbav:"body"`
	CreatedAt   string `dynamodbav:"created_at"`
}

// dynamoSnapshot is the DynamoDB item layout for snapshots, one item per
// aggregate keyed by aggregate_id alone.
type dynamoSnapshot struct {
	AggregateID string `dynamodbav:"aggregate_id"`
	Sequence    int    `dynamodbav:"sequence"`
	Body        string `dynamodbav:"body"`
	CreatedAt   string `dynamodbav:"created_at"`
}

// CommitEvents writes the batch in one TransactWriteItems call. Each put
// carries a condition that the key does not exist yet, so a sequence
// collision cancels the whole transaction and maps to ErrConflict.
func (s *DynamoStore) CommitEvents(ctx context.Context, events []Event) error {
	items := make([]types.TransactWriteItem, 0, len(events))
	for i := range events {
		e := &events[i]
		av, err := attributevalue.MarshalMap(dynamoEvent{
			AggregateID: e.AggregateID,
			Sequence:    e.Sequence,
			ID:          e.ID,
			Type:        e.Type,
			Body:        string(e.Body),
			CreatedAt:   e.Timestamp.Format(time.RFC3339Nano),
		})
		if err != nil {
			return fmt.Errorf("marshal event %d: %w", i, err)
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(s.eventsTable),
				Item:                av,
				ConditionExpression: aws.String("attribute_not_exists(aggregate_id)"),
			},
		})
	}

	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		if isConditionalCancellation(err) {
			return ErrConflict
		}
		return fmt.Errorf("commit events: %w", err)
	}
	return nil
}

// isConditionalCancellation reports whether the transaction was cancelled
// because a conditional check failed, i.e. a key already existed.
func isConditionalCancellation(err error) bool {
	var cancelled *types.TransactionCanceledException
	if !errors.As(err, &cancelled) {
		return false
	}
	for _, reason := range cancelled.CancellationReasons {
		if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
			return true
		}
	}
	return false
}

// GetEvents queries the aggregate's partition for sequence > afterSequence,
// ascending by sort key.
func (s *DynamoStore) GetEvents(ctx context.Context, aggregateID string, afterSequence int) ([]Event, error) {
	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.eventsTable),
		KeyConditionExpression: aws.String("aggregate_id = :aid AND #seq > :after"),
		ExpressionAttributeNames: map[string]string{
			"#seq": "sequence",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid":   &types.AttributeValueMemberS{Value: aggregateID},
			":after": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", afterSequence)},
		},
		ScanIndexForward: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}

	events := make([]Event, 0, len(result.Items))
	for _, item := range result.Items {
		var de dynamoEvent
		if err := attributevalue.UnmarshalMap(item, &de); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		timestamp, _ := time.Parse(time.RFC3339Nano, de.CreatedAt)
		events = append(events, Event{
			ID:          de.ID,
			AggregateID: de.AggregateID,
			Sequence:    de.Sequence,
			Type:        de.Type,
			Body:        []byte(de.Body),
			Timestamp:   timestamp,
		})
	}
	return events, nil
}

// CommitSnapshot puts the snapshot with a condition that no fresher one
// exists. A failed condition means a snapshot at an equal or greater
// sequence is already cached, which is the documented no-op.
func (s *DynamoStore) CommitSnapshot(ctx context.Context, snapshot Snapshot) error {
	av, err := attributevalue.MarshalMap(dynamoSnapshot{
		AggregateID: snapshot.AggregateID,
		Sequence:    snapshot.Sequence,
		Body:        string(snapshot.Body),
		CreatedAt:   snapshot.CreatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.snapshotsTable),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(aggregate_id) OR #seq < :seq"),
		ExpressionAttributeNames: map[string]string{
			"#seq": "sequence",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":seq": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", snapshot.Sequence)},
		},
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return nil
		}
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// GetSnapshot fetches the aggregate's snapshot item and applies the
// freshness rule in the adapter, since GetItem cannot filter.
func (s *DynamoStore) GetSnapshot(ctx context.Context, aggregateID string, minSequence int) (*Snapshot, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.snapshotsTable),
		Key: map[string]types.AttributeValue{
			"aggregate_id": &types.AttributeValueMemberS{Value: aggregateID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var ds dynamoSnapshot
	if err := attributevalue.UnmarshalMap(result.Item, &ds); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if ds.Sequence < minSequence {
		return nil, nil
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, ds.CreatedAt)
	return &Snapshot{
		AggregateID: ds.AggregateID,
		Sequence:    ds.Sequence,
		Body:        []byte(ds.Body),
		CreatedAt:   createdAt,
	}, nil
}
