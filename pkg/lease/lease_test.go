package lease

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/theory-cloud/columntheory/pkg/mocks"
)

func newTestManager(t *testing.T, client *mocks.MockDynamoDBClient, opts ...Option) *Manager {
	t.Helper()
	fixed := time.Unix(1000, 0)
	base := []Option{
		WithNow(func() time.Time { return fixed }),
		WithTokenGenerator(func() string { return "tok" }),
		WithTTLBuffer(10 * time.Second),
	}
	mgr, err := NewManager(client, "locks", append(base, opts...)...)
	require.NoError(t, err)
	return mgr
}

func TestManager_Acquire_BuildsConditionalPut(t *testing.T) {
	client := new(mocks.MockDynamoDBClient)
	mgr := newTestManager(t, client)

	client.On("PutItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
		if in.TableName == nil || *in.TableName != "locks" {
			return false
		}
		if *in.ConditionExpression != "attribute_not_exists(#name) OR #expires <= :now" {
			return false
		}
		if in.ExpressionAttributeNames["#name"] != DefaultNameAttribute {
			return false
		}
		now, ok := in.ExpressionAttributeValues[":now"].(*types.AttributeValueMemberN)
		if !ok || now.Value != "1000" {
			return false
		}
		name, ok := in.Item[DefaultNameAttribute].(*types.AttributeValueMemberS)
		if !ok || name.Value != "migrations" {
			return false
		}
		exp, ok := in.Item[DefaultExpiresAtAttribute].(*types.AttributeValueMemberN)
		if !ok || exp.Value != "1030" {
			return false
		}
		ttl, ok := in.Item[DefaultTTLAttribute].(*types.AttributeValueMemberN)
		return ok && ttl.Value == "1040"
	}), mock.Anything).Return(&dynamodb.PutItemOutput{}, nil).Once()

	got, err := mgr.Acquire(context.Background(), "migrations", 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, Lease{Name: "migrations", Token: "tok", ExpiresAt: 1030}, *got)
	client.AssertExpectations(t)
}

func TestManager_Acquire_ReturnsLeaseHeldOnConditionalFailure(t *testing.T) {
	client := new(mocks.MockDynamoDBClient)
	mgr := newTestManager(t, client)

	client.On("PutItem", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &types.ConditionalCheckFailedException{}).Once()

	_, err := mgr.Acquire(context.Background(), "migrations", time.Minute)
	require.Error(t, err)
	assert.True(t, IsLeaseHeld(err))
	assert.Contains(t, err.Error(), "migrations")
}

func TestManager_Acquire_WrapsOtherErrors(t *testing.T) {
	client := new(mocks.MockDynamoDBClient)
	mgr := newTestManager(t, client)

	client.On("PutItem", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("throttled")).Once()

	_, err := mgr.Acquire(context.Background(), "migrations", time.Minute)
	require.Error(t, err)
	assert.False(t, IsLeaseHeld(err))
	assert.Contains(t, err.Error(), "throttled")
}

func TestManager_Acquire_Validates(t *testing.T) {
	mgr := newTestManager(t, new(mocks.MockDynamoDBClient))

	_, err := mgr.Acquire(context.Background(), "", time.Minute)
	assert.Error(t, err)
	_, err = mgr.Acquire(context.Background(), "x", 0)
	assert.Error(t, err)
}

func TestManager_Refresh_ConditionedOnTokenAndUnexpired(t *testing.T) {
	client := new(mocks.MockDynamoDBClient)
	mgr := newTestManager(t, client)

	client.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		if *in.ConditionExpression != "#token = :token AND #expires > :now" {
			return false
		}
		if *in.UpdateExpression != "SET #expires = :exp, #ttl = :ttl" {
			return false
		}
		tok, ok := in.ExpressionAttributeValues[":token"].(*types.AttributeValueMemberS)
		return ok && tok.Value == "tok"
	}), mock.Anything).Return(&dynamodb.UpdateItemOutput{}, nil).Once()

	got, err := mgr.Refresh(context.Background(), Lease{Name: "migrations", Token: "tok", ExpiresAt: 1010}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1060), got.ExpiresAt)
	client.AssertExpectations(t)
}

func TestManager_Refresh_WithoutTTL(t *testing.T) {
	client := new(mocks.MockDynamoDBClient)
	mgr := newTestManager(t, client, WithTTLBuffer(0))

	client.On("UpdateItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		_, hasTTL := in.ExpressionAttributeNames["#ttl"]
		return *in.UpdateExpression == "SET #expires = :exp" && !hasTTL
	}), mock.Anything).Return(&dynamodb.UpdateItemOutput{}, nil).Once()

	_, err := mgr.Refresh(context.Background(), Lease{Name: "m", Token: "tok"}, time.Minute)
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestManager_Refresh_ReturnsNotOwnedOnConditionalFailure(t *testing.T) {
	client := new(mocks.MockDynamoDBClient)
	mgr := newTestManager(t, client)

	client.On("UpdateItem", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &types.ConditionalCheckFailedException{}).Once()

	_, err := mgr.Refresh(context.Background(), Lease{Name: "m", Token: "tok"}, time.Minute)
	assert.True(t, IsLeaseNotOwned(err))

	_, err = mgr.Refresh(context.Background(), Lease{Name: "m"}, time.Minute)
	assert.Error(t, err)
}

func TestManager_Release_IsBestEffortOnConditionalFailure(t *testing.T) {
	client := new(mocks.MockDynamoDBClient)
	mgr := newTestManager(t, client)

	client.On("DeleteItem", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &types.ConditionalCheckFailedException{}).Once()

	require.NoError(t, mgr.Release(context.Background(), Lease{Name: "m", Token: "tok"}))
	assert.Error(t, mgr.Release(context.Background(), Lease{Name: "m"}))
}

func TestManager_Lock_ReleasesOnReturn(t *testing.T) {
	client := new(mocks.MockDynamoDBClient)
	mgr := newTestManager(t, client, WithDuration(time.Hour))

	client.On("PutItem", mock.Anything, mock.Anything, mock.Anything).Return(&dynamodb.PutItemOutput{}, nil).Once()
	client.On("DeleteItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.DeleteItemInput) bool {
		name, ok := in.Key[DefaultNameAttribute].(*types.AttributeValueMemberS)
		return ok && name.Value == "migrations"
	}), mock.Anything).Return(&dynamodb.DeleteItemOutput{}, nil).Once()

	release, err := mgr.Lock(context.Background(), "migrations")
	require.NoError(t, err)
	require.NoError(t, release(context.Background()))
	client.AssertExpectations(t)
}

func TestManager_Lock_Held(t *testing.T) {
	client := new(mocks.MockDynamoDBClient)
	mgr := newTestManager(t, client)

	client.On("PutItem", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &types.ConditionalCheckFailedException{}).Once()

	release, err := mgr.Lock(context.Background(), "migrations")
	assert.Nil(t, release)
	assert.True(t, IsLeaseHeld(err))
}

func TestNewManager_ValidatesInputs(t *testing.T) {
	_, err := NewManager(nil, "locks")
	assert.Error(t, err)
	_, err = NewManager(new(mocks.MockDynamoDBClient), "")
	assert.Error(t, err)
}

func TestManager_CustomAttributeNames(t *testing.T) {
	client := new(mocks.MockDynamoDBClient)
	mgr := newTestManager(t, client, WithAttributeNames("id", "owner", "until", "expires"))

	client.On("PutItem", mock.Anything, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
		_, hasID := in.Item["id"]
		_, hasOwner := in.Item["owner"]
		_, hasUntil := in.Item["until"]
		_, hasExpires := in.Item["expires"]
		return hasID && hasOwner && hasUntil && hasExpires && in.ExpressionAttributeNames["#name"] == "id"
	}), mock.Anything).Return(&dynamodb.PutItemOutput{}, nil).Once()

	_, err := mgr.Acquire(context.Background(), "m", time.Minute)
	require.NoError(t, err)
	client.AssertExpectations(t)
}
