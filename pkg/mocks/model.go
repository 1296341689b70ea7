package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/theory-cloud/columntheory/pkg/core"
	"github.com/theory-cloud/columntheory/pkg/model"
	"github.com/theory-cloud/columntheory/pkg/query"
	"github.com/theory-cloud/columntheory/pkg/reassemble"
)

// MockModel is a mock implementation of the core.Model interface.
//
// Example usage:
//
//	users := new(mocks.MockModel)
//	users.On("FindAll", mock.Anything, mock.Anything).
//	    Return([]reassemble.Record{{"id": "u1"}}, nil)
//	users.On("Destroy", mock.Anything, query.Filter{"id": "u1"}).Return(int64(1), nil)
type MockModel struct {
	mock.Mock
}

var _ core.Model = (*MockModel)(nil)

func (m *MockModel) Name() string {
	return m.Called().String(0)
}

func (m *MockModel) Entity() *model.Entity {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	e, ok := args.Get(0).(*model.Entity)
	if !ok {
		panic("unexpected type: expected *model.Entity")
	}
	return e
}

func (m *MockModel) Sync(ctx context.Context, opts core.SyncOptions) error {
	return m.Called(ctx, opts).Error(0)
}

func (m *MockModel) Drop(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// Read operations

func (m *MockModel) FindAll(ctx context.Context, req query.FindRequest) ([]reassemble.Record, error) {
	args := m.Called(ctx, req)
	return records(args.Get(0)), args.Error(1)
}

func (m *MockModel) FindOne(ctx context.Context, req query.FindRequest) (reassemble.Record, error) {
	args := m.Called(ctx, req)
	return record(args.Get(0)), args.Error(1)
}

func (m *MockModel) FindByPk(ctx context.Context, pk any, req query.FindRequest) (reassemble.Record, error) {
	args := m.Called(ctx, pk, req)
	return record(args.Get(0)), args.Error(1)
}

func (m *MockModel) FindAndCountAll(ctx context.Context, req query.FindRequest) (*core.CountResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	res, ok := args.Get(0).(*core.CountResult)
	if !ok {
		panic("unexpected type: expected *core.CountResult")
	}
	return res, args.Error(1)
}

func (m *MockModel) Count(ctx context.Context, req query.FindRequest) (int64, error) {
	args := m.Called(ctx, req)
	return int64Arg(args, 0), args.Error(1)
}

func (m *MockModel) Max(ctx context.Context, field string, req query.FindRequest) (any, error) {
	args := m.Called(ctx, field, req)
	return args.Get(0), args.Error(1)
}

func (m *MockModel) Min(ctx context.Context, field string, req query.FindRequest) (any, error) {
	args := m.Called(ctx, field, req)
	return args.Get(0), args.Error(1)
}

func (m *MockModel) Sum(ctx context.Context, field string, req query.FindRequest) (any, error) {
	args := m.Called(ctx, field, req)
	return args.Get(0), args.Error(1)
}

func (m *MockModel) Avg(ctx context.Context, field string, req query.FindRequest) (any, error) {
	args := m.Called(ctx, field, req)
	return args.Get(0), args.Error(1)
}

// Write operations

func (m *MockModel) Create(ctx context.Context, values map[string]any) (reassemble.Record, error) {
	args := m.Called(ctx, values)
	return record(args.Get(0)), args.Error(1)
}

func (m *MockModel) BulkCreate(ctx context.Context, values []map[string]any, opts core.BulkOptions) ([]reassemble.Record, error) {
	args := m.Called(ctx, values, opts)
	return records(args.Get(0)), args.Error(1)
}

func (m *MockModel) Update(ctx context.Context, values map[string]any, where query.Filter) (int64, error) {
	args := m.Called(ctx, values, where)
	return int64Arg(args, 0), args.Error(1)
}

func (m *MockModel) Destroy(ctx context.Context, where query.Filter) (int64, error) {
	args := m.Called(ctx, where)
	return int64Arg(args, 0), args.Error(1)
}

func (m *MockModel) Increment(ctx context.Context, by map[string]any, where query.Filter) (int64, error) {
	args := m.Called(ctx, by, where)
	return int64Arg(args, 0), args.Error(1)
}

func (m *MockModel) Decrement(ctx context.Context, by map[string]any, where query.Filter) (int64, error) {
	args := m.Called(ctx, by, where)
	return int64Arg(args, 0), args.Error(1)
}

func record(v any) reassemble.Record {
	switch r := v.(type) {
	case nil:
		return nil
	case reassemble.Record:
		return r
	case map[string]any:
		return reassemble.Record(r)
	}
	panic("unexpected type: expected reassemble.Record")
}

func records(v any) []reassemble.Record {
	if v == nil {
		return nil
	}
	rs, ok := v.([]reassemble.Record)
	if !ok {
		panic("unexpected type: expected []reassemble.Record")
	}
	return rs
}

func int64Arg(args mock.Arguments, i int) int64 {
	switch n := args.Get(i).(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case nil:
		return 0
	}
	panic("unexpected type: expected int64")
}
