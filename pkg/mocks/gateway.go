package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/theory-cloud/columntheory/pkg/types"
	"github.com/theory-cloud/columntheory/pkg/warehouse"
)

// MockGateway is a mock implementation of warehouse.Gateway.
//
// Example usage:
//
//	gw := new(mocks.MockGateway)
//	gw.On("Exec", mock.Anything, mock.Anything, mock.Anything).
//	    Return(&warehouse.JobResult{RowsAffected: 1}, nil)
type MockGateway struct {
	mock.Mock
}

var _ warehouse.Gateway = (*MockGateway)(nil)

func (m *MockGateway) Query(ctx context.Context, sql string, params map[string]any) ([]warehouse.Row, error) {
	args := m.Called(ctx, sql, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	rows, ok := args.Get(0).([]warehouse.Row)
	if !ok {
		panic("unexpected type: expected []warehouse.Row")
	}
	return rows, args.Error(1)
}

func (m *MockGateway) Exec(ctx context.Context, sql string, params map[string]any) (*warehouse.JobResult, error) {
	args := m.Called(ctx, sql, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	res, ok := args.Get(0).(*warehouse.JobResult)
	if !ok {
		panic("unexpected type: expected *warehouse.JobResult")
	}
	return res, args.Error(1)
}

func (m *MockGateway) InsertRows(ctx context.Context, table warehouse.TableRef, rows []warehouse.Row) error {
	return m.Called(ctx, table, rows).Error(0)
}

func (m *MockGateway) TableExists(ctx context.Context, table warehouse.TableRef) (bool, error) {
	args := m.Called(ctx, table)
	return args.Bool(0), args.Error(1)
}

func (m *MockGateway) DatasetExists(ctx context.Context, project, dataset string) (bool, error) {
	args := m.Called(ctx, project, dataset)
	return args.Bool(0), args.Error(1)
}

func (m *MockGateway) CreateTable(ctx context.Context, table warehouse.TableRef, fields []types.Field) error {
	return m.Called(ctx, table, fields).Error(0)
}

func (m *MockGateway) DropTable(ctx context.Context, table warehouse.TableRef) error {
	return m.Called(ctx, table).Error(0)
}
