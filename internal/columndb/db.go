// Package columndb binds the entity registry, the query compiler and the
// result reassembler to a warehouse gateway.
package columndb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/theory-cloud/columntheory/internal/encryption"
	"github.com/theory-cloud/columntheory/pkg/core"
	"github.com/theory-cloud/columntheory/pkg/errors"
	"github.com/theory-cloud/columntheory/pkg/model"
	"github.com/theory-cloud/columntheory/pkg/query"
	"github.com/theory-cloud/columntheory/pkg/schema"
	"github.com/theory-cloud/columntheory/pkg/session"
	"github.com/theory-cloud/columntheory/pkg/types"
	"github.com/theory-cloud/columntheory/pkg/warehouse"
)

// DB is one ColumnTheory instance. It owns its Config; nothing is shared
// between instances.
type DB struct {
	config       *session.Config
	gateway      warehouse.Gateway
	registry     *model.Registry
	compiler     *query.Compiler
	schema       *schema.Manager
	crypto       *encryption.Service
	logger       *slog.Logger
	now          func() time.Time
	lambdaBuffer time.Duration
}

// Option configures a DB.
type Option func(*DB)

// WithRegistry uses registry instead of a fresh one, e.g. one populated
// from a definition file.
func WithRegistry(registry *model.Registry) Option {
	return func(db *DB) { db.registry = registry }
}

// WithEncryption uses svc for Encrypted attributes instead of building one
// from the Config.
func WithEncryption(svc *encryption.Service) Option {
	return func(db *DB) { db.crypto = svc }
}

// WithLambdaBuffer sets how much of the Lambda deadline LambdaContext keeps
// in reserve.
func WithLambdaBuffer(d time.Duration) Option {
	return func(db *DB) { db.lambdaBuffer = d }
}

// New creates a DB over gw. A nil cfg uses session.DefaultConfig.
func New(cfg *session.Config, gw warehouse.Gateway, opts ...Option) (*DB, error) {
	if gw == nil {
		return nil, fmt.Errorf("%w: a warehouse gateway is required", errors.ErrConfiguration)
	}
	if cfg == nil {
		cfg = session.DefaultConfig()
	}

	db := &DB{
		config:       cfg,
		gateway:      gw,
		logger:       cfg.Log(),
		now:          cfg.Clock(),
		lambdaBuffer: DefaultLambdaBuffer,
	}
	for _, opt := range opts {
		opt(db)
	}
	if db.registry == nil {
		db.registry = model.NewRegistry()
	}

	if db.crypto == nil && cfg.KMSKeyARN != "" {
		client := cfg.KMSClient
		if client == nil {
			sess, err := session.NewSession(context.Background(), cfg)
			if err != nil {
				return nil, fmt.Errorf("failed to create session: %w", err)
			}
			client = sess.KMS()
		}
		db.crypto = encryption.NewServiceWithRand(cfg.KMSKeyARN, client, cfg.EncryptionRand)
	}

	var compilerOpts []query.Option
	var schemaOpts []schema.Option
	if cfg.Dataset != "" {
		compilerOpts = append(compilerOpts, query.WithDataset(cfg.Dataset), query.WithProject(cfg.Project))
		schemaOpts = append(schemaOpts, schema.WithDataset(cfg.Dataset), schema.WithProject(cfg.Project))
	}
	schemaOpts = append(schemaOpts, schema.WithLogger(db.logger))

	db.compiler = query.NewCompiler(db.registry, compilerOpts...)
	db.schema = schema.NewManager(gw, db.registry, schemaOpts...)
	return db, nil
}

// Define registers an entity and returns its model.
func (db *DB) Define(name string, attrs []types.Attribute, opts core.DefineOptions) (core.Model, error) {
	e, err := db.registry.Define(model.Definition{
		Name:       name,
		TableName:  opts.TableName,
		Attributes: attrs,
		Timestamps: opts.Timestamps,
	})
	if err != nil {
		return nil, err
	}
	return db.bind(e), nil
}

// Load applies a definition file to the registry.
func (db *DB) Load(defs *model.DefinitionFile) error {
	return defs.Apply(db.registry)
}

// Model returns a previously defined model.
func (db *DB) Model(name string) (core.Model, error) {
	e, err := db.registry.Entity(name)
	if err != nil {
		return nil, err
	}
	return db.bind(e), nil
}

func (db *DB) bind(e *model.Entity) *Model {
	return &Model{db: db, entity: e}
}

// HasOne registers an owns-one association.
func (db *DB) HasOne(source, target string, opts model.AssociationOptions) error {
	_, err := db.registry.Associate(model.KindOwnsOne, source, target, opts)
	return err
}

// BelongsTo registers an owned-by association.
func (db *DB) BelongsTo(source, target string, opts model.AssociationOptions) error {
	_, err := db.registry.Associate(model.KindOwnedBy, source, target, opts)
	return err
}

// HasMany registers a has-many association.
func (db *DB) HasMany(source, target string, opts model.AssociationOptions) error {
	_, err := db.registry.Associate(model.KindHasMany, source, target, opts)
	return err
}

// BelongsToMany registers a many-to-many association. opts.Through names
// the junction entity, which must already be defined.
func (db *DB) BelongsToMany(source, target string, opts model.AssociationOptions) error {
	_, err := db.registry.Associate(model.KindManyToMany, source, target, opts)
	return err
}

// Sync creates the table of every defined entity, concurrently.
func (db *DB) Sync(ctx context.Context, opts core.SyncOptions) error {
	return db.schema.SyncAll(ctx, schema.SyncOptions{Force: opts.Force})
}

// Drop removes the table of every defined entity.
func (db *DB) Drop(ctx context.Context) error {
	return db.schema.DropAll(ctx)
}

// Registry exposes the entity and association metadata.
func (db *DB) Registry() *model.Registry {
	return db.registry
}

// Compiler exposes the query compiler, e.g. to print SQL without running it.
func (db *DB) Compiler() *query.Compiler {
	return db.compiler
}

// Schema exposes the schema manager.
func (db *DB) Schema() *schema.Manager {
	return db.schema
}

// Gateway returns the warehouse gateway.
func (db *DB) Gateway() warehouse.Gateway {
	return db.gateway
}

var _ core.DB = (*DB)(nil)
