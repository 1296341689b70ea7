package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/theory-cloud/columntheory/pkg/core"
	"github.com/theory-cloud/columntheory/pkg/model"
	"github.com/theory-cloud/columntheory/pkg/types"
)

// MockDB is a mock implementation of the core.DB interface.
//
// Example usage:
//
//	mockDB := new(mocks.MockDB)
//	mockModel := new(mocks.MockModel)
//	mockDB.On("Model", "User").Return(mockModel, nil)
type MockDB struct {
	mock.Mock
}

var _ core.DB = (*MockDB)(nil)

// Define registers an entity and returns its model
func (m *MockDB) Define(name string, attrs []types.Attribute, opts core.DefineOptions) (core.Model, error) {
	args := m.Called(name, attrs, opts)
	return modelOrNil(args.Get(0)), args.Error(1)
}

// Model returns a previously defined model
func (m *MockDB) Model(name string) (core.Model, error) {
	args := m.Called(name)
	return modelOrNil(args.Get(0)), args.Error(1)
}

func (m *MockDB) HasOne(source, target string, opts model.AssociationOptions) error {
	return m.Called(source, target, opts).Error(0)
}

func (m *MockDB) BelongsTo(source, target string, opts model.AssociationOptions) error {
	return m.Called(source, target, opts).Error(0)
}

func (m *MockDB) HasMany(source, target string, opts model.AssociationOptions) error {
	return m.Called(source, target, opts).Error(0)
}

func (m *MockDB) BelongsToMany(source, target string, opts model.AssociationOptions) error {
	return m.Called(source, target, opts).Error(0)
}

// Sync creates missing tables
func (m *MockDB) Sync(ctx context.Context, opts core.SyncOptions) error {
	return m.Called(ctx, opts).Error(0)
}

// Drop removes every table
func (m *MockDB) Drop(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// Registry returns the configured registry, or nil
func (m *MockDB) Registry() *model.Registry {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	registry, ok := args.Get(0).(*model.Registry)
	if !ok {
		panic("unexpected type: expected *model.Registry")
	}
	return registry
}

func modelOrNil(v any) core.Model {
	if v == nil {
		return nil
	}
	m, ok := v.(core.Model)
	if !ok {
		panic("unexpected type: expected core.Model")
	}
	return m
}
