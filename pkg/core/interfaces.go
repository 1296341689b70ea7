// Package core defines the core interfaces and types for ColumnTheory
package core

import (
	"context"

	"github.com/theory-cloud/columntheory/pkg/model"
	"github.com/theory-cloud/columntheory/pkg/query"
	"github.com/theory-cloud/columntheory/pkg/reassemble"
	"github.com/theory-cloud/columntheory/pkg/types"
)

// DB represents the main database interface
type DB interface {
	// Define registers an entity and returns its model
	Define(name string, attrs []types.Attribute, opts DefineOptions) (Model, error)

	// Model returns a previously defined model
	Model(name string) (Model, error)

	// HasOne registers an owns-one association from source to target
	HasOne(source, target string, opts model.AssociationOptions) error

	// BelongsTo registers an owned-by association; the foreign key lives on source
	BelongsTo(source, target string, opts model.AssociationOptions) error

	// HasMany registers a has-many association
	HasMany(source, target string, opts model.AssociationOptions) error

	// BelongsToMany registers a many-to-many association through a junction entity
	BelongsToMany(source, target string, opts model.AssociationOptions) error

	// Sync creates missing tables for every defined entity
	Sync(ctx context.Context, opts SyncOptions) error

	// Drop removes every defined entity's table
	Drop(ctx context.Context) error

	// Registry exposes the entity and association metadata
	Registry() *model.Registry
}

// Querier is the read side of a model
type Querier interface {
	FindAll(ctx context.Context, req query.FindRequest) ([]reassemble.Record, error)

	// FindOne returns nil, nil when nothing matches
	FindOne(ctx context.Context, req query.FindRequest) (reassemble.Record, error)

	FindByPk(ctx context.Context, pk any, req query.FindRequest) (reassemble.Record, error)

	// FindAndCountAll returns one page and the total number of matching parents
	FindAndCountAll(ctx context.Context, req query.FindRequest) (*CountResult, error)

	Count(ctx context.Context, req query.FindRequest) (int64, error)
	Max(ctx context.Context, field string, req query.FindRequest) (any, error)
	Min(ctx context.Context, field string, req query.FindRequest) (any, error)
	Sum(ctx context.Context, field string, req query.FindRequest) (any, error)
	Avg(ctx context.Context, field string, req query.FindRequest) (any, error)
}

// Writer is the write side of a model. Every method is subject to the
// read-only policy.
type Writer interface {
	Create(ctx context.Context, values map[string]any) (reassemble.Record, error)
	BulkCreate(ctx context.Context, values []map[string]any, opts BulkOptions) ([]reassemble.Record, error)

	// Update returns the number of rows changed
	Update(ctx context.Context, values map[string]any, where query.Filter) (int64, error)

	// Destroy returns the number of rows deleted
	Destroy(ctx context.Context, where query.Filter) (int64, error)

	Increment(ctx context.Context, by map[string]any, where query.Filter) (int64, error)
	Decrement(ctx context.Context, by map[string]any, where query.Filter) (int64, error)
}

// Model is one registered entity bound to a gateway
type Model interface {
	Querier
	Writer

	// Name returns the entity name
	Name() string

	// Entity returns the registered metadata
	Entity() *model.Entity

	// Sync creates the entity's table, or recreates it with Force
	Sync(ctx context.Context, opts SyncOptions) error

	// Drop removes the entity's table
	Drop(ctx context.Context) error
}

// DefineOptions configures Define
type DefineOptions struct {
	// TableName defaults to the lowercased entity name
	TableName string
	// Timestamps adds createdAt and updatedAt attributes
	Timestamps bool
}

// CountResult is the result of FindAndCountAll
type CountResult struct {
	Rows  []reassemble.Record
	Count int64
}

// BulkOptions configures BulkCreate
type BulkOptions struct {
	// IgnoreDuplicates skips records whose primary key already exists
	IgnoreDuplicates bool
}

// SyncOptions configures Sync
type SyncOptions struct {
	// Force drops existing tables before creating them
	Force bool
}
