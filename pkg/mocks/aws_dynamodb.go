package mocks

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/stretchr/testify/mock"
)

// MockDynamoDBClient provides a mock implementation of the DynamoDB client
// surface used by the migration ledger and lock.
//
// Example usage:
//
//	ddb := new(mocks.MockDynamoDBClient)
//	ddb.On("PutItem", mock.Anything, mock.Anything, mock.Anything).
//	    Return(&dynamodb.PutItemOutput{}, nil)
//
//	locks := lease.NewManager(ddb, "columntheory_locks")
type MockDynamoDBClient struct {
	mock.Mock
}

// PutItem mocks the DynamoDB PutItem operation
func (m *MockDynamoDBClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	output, ok := args.Get(0).(*dynamodb.PutItemOutput)
	if !ok {
		panic("unexpected type: expected *dynamodb.PutItemOutput")
	}
	return output, args.Error(1)
}

// UpdateItem mocks the DynamoDB UpdateItem operation
func (m *MockDynamoDBClient) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	output, ok := args.Get(0).(*dynamodb.UpdateItemOutput)
	if !ok {
		panic("unexpected type: expected *dynamodb.UpdateItemOutput")
	}
	return output, args.Error(1)
}

// DeleteItem mocks the DynamoDB DeleteItem operation
func (m *MockDynamoDBClient) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	output, ok := args.Get(0).(*dynamodb.DeleteItemOutput)
	if !ok {
		panic("unexpected type: expected *dynamodb.DeleteItemOutput")
	}
	return output, args.Error(1)
}

// Query mocks the DynamoDB Query operation
func (m *MockDynamoDBClient) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	output, ok := args.Get(0).(*dynamodb.QueryOutput)
	if !ok {
		panic("unexpected type: expected *dynamodb.QueryOutput")
	}
	return output, args.Error(1)
}
