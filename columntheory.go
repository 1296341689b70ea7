// Package columntheory is an entity runtime for columnar analytical
// warehouses: entities, associations and eager includes compiled into
// parameterized SQL and reassembled into nested records.
//
// Import path:
//
//	import "github.com/theory-cloud/columntheory"
//
// Implementation lives in `internal/columndb` so the repo root stays minimal.
package columntheory

import (
	"context"
	"time"

	"github.com/theory-cloud/columntheory/internal/columndb"
	"github.com/theory-cloud/columntheory/pkg/consistency"
	"github.com/theory-cloud/columntheory/pkg/core"
	"github.com/theory-cloud/columntheory/pkg/model"
	"github.com/theory-cloud/columntheory/pkg/query"
	"github.com/theory-cloud/columntheory/pkg/reassemble"
	"github.com/theory-cloud/columntheory/pkg/session"
	"github.com/theory-cloud/columntheory/pkg/types"
	"github.com/theory-cloud/columntheory/pkg/warehouse"
)

type (
	DB     = columndb.DB
	Model  = columndb.Model
	Option = columndb.Option

	// Re-export types for convenience.
	Config             = session.Config
	Gateway            = warehouse.Gateway
	Attribute          = types.Attribute
	AssociationOptions = model.AssociationOptions
	DefineOptions      = core.DefineOptions
	BulkOptions        = core.BulkOptions
	SyncOptions        = core.SyncOptions
	CountResult        = core.CountResult
	RetryPolicy        = core.RetryPolicy
	FindRequest        = query.FindRequest
	Include            = query.Include
	Order              = query.Order
	Filter             = query.Filter
	Ops                = query.Ops
	Record             = reassemble.Record
)

// Re-export default sentinels and options for convenience.
var (
	DefaultNow  = types.DefaultNow
	DefaultUUID = types.DefaultUUID
	DefaultULID = types.DefaultULID

	Asc  = query.Asc
	Desc = query.Desc

	WithRegistry     = columndb.WithRegistry
	WithLambdaBuffer = columndb.WithLambdaBuffer

	// Retry repeats an operation while it fails with a retryable
	// warehouse error, such as a streaming buffer conflict.
	Retry              = consistency.Retry
	DefaultRetryPolicy = core.DefaultRetryPolicy
)

// New creates a DB over gw. A nil cfg uses the defaults.
func New(cfg *Config, gw Gateway, opts ...Option) (*DB, error) {
	return columndb.New(cfg, gw, opts...)
}

// NewFromDefinitions creates a DB and applies the YAML definition file at path.
func NewFromDefinitions(cfg *Config, gw Gateway, path string, opts ...Option) (*DB, error) {
	defs, err := model.LoadDefinitions(path)
	if err != nil {
		return nil, err
	}
	db, err := columndb.New(cfg, gw, opts...)
	if err != nil {
		return nil, err
	}
	if err := db.Load(defs); err != nil {
		return nil, err
	}
	return db, nil
}

// LoadConfig reads a YAML config file and overlays .env and process
// environment variables.
func LoadConfig(path string) (*Config, error) {
	return session.Load(path)
}

func IsLambdaEnvironment() bool {
	return columndb.IsLambdaEnvironment()
}

func LambdaMemoryMB() int {
	return columndb.LambdaMemoryMB()
}

func LambdaContext(ctx context.Context, buffer time.Duration) (context.Context, context.CancelFunc) {
	return columndb.LambdaContext(ctx, buffer)
}
