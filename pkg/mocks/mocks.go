// Package mocks provides mock implementations for ColumnTheory interfaces.
//
// The mocks cover three layers: the core.DB and core.Model runtime surface,
// the warehouse.Gateway that executes compiled SQL, and the narrow AWS SDK
// clients used for encryption and migrations.
//
// # Basic Usage
//
// Mock a model when testing code that consumes ColumnTheory:
//
//	func TestUserService(t *testing.T) {
//	    mockDB := new(mocks.MockDB)
//	    users := new(mocks.MockModel)
//
//	    mockDB.On("Model", "User").Return(users, nil)
//	    users.On("FindByPk", mock.Anything, "u1", mock.Anything).
//	        Return(reassemble.Record{"id": "u1", "name": "Alice"}, nil)
//
//	    service := NewUserService(mockDB)
//	    user, err := service.GetUser(ctx, "u1")
//
//	    mockDB.AssertExpectations(t)
//	    users.AssertExpectations(t)
//	}
//
// # Gateway Level Mocking
//
// To assert on the SQL the runtime sends to the warehouse:
//
//	gw := new(mocks.MockGateway)
//	gw.On("Query", mock.Anything, mock.MatchedBy(func(sql string) bool {
//	    return strings.HasPrefix(sql, "SELECT")
//	}), mock.Anything).Return([]warehouse.Row{{"user_id": "u1"}}, nil)
//
// A gateway with no expectations panics on any call, which makes it a
// convenient spy for operations that must fail before reaching the warehouse.
//
// # AWS SDK Level Mocking
//
// For code that talks to DynamoDB, S3 or KMS directly:
//
//	ddb := new(mocks.MockDynamoDBClient)
//	ddb.On("PutItem", mock.Anything, mock.Anything, mock.Anything).
//	    Return(&dynamodb.PutItemOutput{}, nil)
//
// # Tips
//
// 1. Use mock.Anything when you don't need to assert on specific arguments
// 2. Use mock.MatchedBy for custom argument matching
// 3. Always assert expectations were met with AssertExpectations
package mocks

// Helper type aliases for convenience
type (
	// DB is an alias for MockDB to allow shorter declarations
	DB = MockDB

	// Model is an alias for MockModel to allow shorter declarations
	Model = MockModel

	// Gateway is an alias for MockGateway to allow shorter declarations
	Gateway = MockGateway
)
