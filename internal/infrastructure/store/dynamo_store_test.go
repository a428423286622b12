package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDynamo is a canned-response DynamoAPI for exercising the adapter's
// request shapes and error translation without a live table.
type stubDynamo struct {
	transactIn  *dynamodb.TransactWriteItemsInput
	transactErr error
	queryIn     *dynamodb.QueryInput
	queryOut    *dynamodb.QueryOutput
	queryErr    error
	putIn       *dynamodb.PutItemInput
	putErr      error
	getOut      *dynamodb.GetItemOutput
	getErr      error
}

func (s *stubDynamo) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	s.transactIn = params
	if s.transactErr != nil {
		return nil, s.transactErr
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (s *stubDynamo) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	s.queryIn = params
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.queryOut, nil
}

func (s *stubDynamo) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	s.putIn = params
	if s.putErr != nil {
		return nil, s.putErr
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (s *stubDynamo) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.getOut, nil
}

func newDynamoTestStore() (*DynamoStore, *stubDynamo) {
	stub := &stubDynamo{}
	return NewDynamoStore(stub, "events", "snapshots"), stub
}

func TestDynamoStore_CommitEvents_BuildsConditionalTransaction(t *testing.T) {
	s, stub := newDynamoTestStore()

	events := []Event{
		{ID: "ev-1", AggregateID: "order-1", Sequence: 1, Type: "OrderPlaced", Body: json.RawMessage(`{}`), Timestamp: time.Now()},
		{ID: "ev-2", AggregateID: "order-1", Sequence: 2, Type: "OrderPaid", Body: json.RawMessage(`{}`), Timestamp: time.Now()},
	}

	err := s.CommitEvents(context.Background(), events)
	require.NoError(t, err)
	require.NotNil(t, stub.transactIn)
	require.Len(t, stub.transactIn.TransactItems, 2)

	for _, item := range stub.transactIn.TransactItems {
		require.NotNil(t, item.Put)
		assert.Equal(t, "events", *item.Put.TableName)
		assert.Equal(t, "attribute_not_exists(aggregate_id)", *item.Put.ConditionExpression)
	}
}

func TestDynamoStore_CommitEvents_ConditionFailureIsConflict(t *testing.T) {
	s, stub := newDynamoTestStore()
	stub.transactErr = &types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{
			{Code: aws.String("None")},
			{Code: aws.String("ConditionalCheckFailed")},
		},
	}

	err := s.CommitEvents(context.Background(), []Event{
		{ID: "ev-1", AggregateID: "order-1", Sequence: 1, Type: "OrderPlaced", Body: json.RawMessage(`{}`), Timestamp: time.Now()},
	})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestDynamoStore_CommitEvents_OtherCancellationIsTransport(t *testing.T) {
	s, stub := newDynamoTestStore()
	stub.transactErr = &types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{
			{Code: aws.String("TransactionConflict")},
		},
	}

	err := s.CommitEvents(context.Background(), []Event{
		{ID: "ev-1", AggregateID: "order-1", Sequence: 1, Type: "OrderPlaced", Body: json.RawMessage(`{}`), Timestamp: time.Now()},
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConflict)
}

func TestDynamoStore_CommitEvents_PlainErrorIsTransport(t *testing.T) {
	s, stub := newDynamoTestStore()
	stub.transactErr = errors.New("throughput exceeded")

	err := s.CommitEvents(context.Background(), []Event{
		{ID: "ev-1", AggregateID: "order-1", Sequence: 1, Type: "OrderPlaced", Body: json.RawMessage(`{}`), Timestamp: time.Now()},
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConflict)
}

func TestDynamoStore_GetEvents(t *testing.T) {
	s, stub := newDynamoTestStore()

	mustItem := func(e dynamoEvent) map[string]types.AttributeValue {
		av, err := attributevalue.MarshalMap(e)
		require.NoError(t, err)
		return av
	}

	stub.queryOut = &dynamodb.QueryOutput{
		Items: []map[string]types.AttributeValue{
			mustItem(dynamoEvent{AggregateID: "order-1", Sequence: 4, ID: "ev-4", Type: "OrderShipped", Body: `{"carrier":"dhl"}`, CreatedAt: time.Now().Format(time.RFC3339Nano)}),
			mustItem(dynamoEvent{AggregateID: "order-1", Sequence: 5, ID: "ev-5", Type: "OrderDelivered", Body: `{}`, CreatedAt: time.Now().Format(time.RFC3339Nano)}),
		},
	}

	events, err := s.GetEvents(context.Background(), "order-1", 3)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 4, events[0].Sequence)
	assert.Equal(t, "OrderShipped", events[0].Type)
	assert.JSONEq(t, `{"carrier":"dhl"}`, string(events[0].Body))

	require.NotNil(t, stub.queryIn)
	assert.Equal(t, "aggregate_id = :aid AND #seq > :after", *stub.queryIn.KeyConditionExpression)
	assert.True(t, *stub.queryIn.ScanIndexForward)
}

func TestDynamoStore_GetEvents_EmptyTail(t *testing.T) {
	s, stub := newDynamoTestStore()
	stub.queryOut = &dynamodb.QueryOutput{}

	events, err := s.GetEvents(context.Background(), "order-unknown", 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestDynamoStore_CommitSnapshot_GuardsOnSequence(t *testing.T) {
	s, stub := newDynamoTestStore()

	err := s.CommitSnapshot(context.Background(), Snapshot{
		AggregateID: "cart-1", Sequence: 7, Body: json.RawMessage(`{}`), CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	require.NotNil(t, stub.putIn)
	assert.Equal(t, "snapshots", *stub.putIn.TableName)
	assert.Equal(t, "attribute_not_exists(aggregate_id) OR #seq < :seq", *stub.putIn.ConditionExpression)
}

func TestDynamoStore_CommitSnapshot_StaleWriteIsSilentNoOp(t *testing.T) {
	s, stub := newDynamoTestStore()
	stub.putErr = &types.ConditionalCheckFailedException{}

	err := s.CommitSnapshot(context.Background(), Snapshot{
		AggregateID: "cart-1", Sequence: 3, Body: json.RawMessage(`{}`), CreatedAt: time.Now(),
	})
	assert.NoError(t, err)
}

func TestDynamoStore_GetSnapshot(t *testing.T) {
	s, stub := newDynamoTestStore()

	av, err := attributevalue.MarshalMap(dynamoSnapshot{
		AggregateID: "cart-1", Sequence: 7, Body: `{"items":2}`, CreatedAt: time.Now().Format(time.RFC3339Nano),
	})
	require.NoError(t, err)
	stub.getOut = &dynamodb.GetItemOutput{Item: av}

	snapshot, err := s.GetSnapshot(context.Background(), "cart-1", 5)
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, 7, snapshot.Sequence)
	assert.JSONEq(t, `{"items":2}`, string(snapshot.Body))

	// GetItem cannot filter, so the freshness rule is applied in code.
	snapshot, err = s.GetSnapshot(context.Background(), "cart-1", 8)
	require.NoError(t, err)
	assert.Nil(t, snapshot)
}

func TestDynamoStore_GetSnapshot_ColdAggregate(t *testing.T) {
	s, stub := newDynamoTestStore()
	stub.getOut = &dynamodb.GetItemOutput{}

	snapshot, err := s.GetSnapshot(context.Background(), "cart-unknown", 0)
	require.NoError(t, err)
	assert.Nil(t, snapshot)
}
