// Package schema creates and drops the warehouse tables behind registered
// entities.
package schema

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	customerrors "github.com/theory-cloud/columntheory/pkg/errors"
	"github.com/theory-cloud/columntheory/pkg/model"
	"github.com/theory-cloud/columntheory/pkg/types"
	"github.com/theory-cloud/columntheory/pkg/warehouse"
)

// Manager handles warehouse table lifecycle for a registry
type Manager struct {
	gateway  warehouse.Gateway
	registry *model.Registry
	logger   *slog.Logger
	project  string
	dataset  string
	// concurrency bounds SyncAll; zero means one goroutine per entity.
	concurrency int
}

// Option configures a Manager
type Option func(*Manager)

func WithProject(project string) Option {
	return func(m *Manager) { m.project = project }
}

func WithDataset(dataset string) Option {
	return func(m *Manager) { m.dataset = dataset }
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithConcurrency limits how many tables SyncAll touches at once.
func WithConcurrency(n int) Option {
	return func(m *Manager) { m.concurrency = n }
}

// NewManager creates a new schema manager
func NewManager(gw warehouse.Gateway, registry *model.Registry, opts ...Option) *Manager {
	m := &Manager{
		gateway:  gw,
		registry: registry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SyncOptions configures Sync
type SyncOptions struct {
	// Force drops an existing table before creating it.
	Force bool
}

// TableRef returns the warehouse location of e.
func (m *Manager) TableRef(e *model.Entity) warehouse.TableRef {
	return warehouse.TableRef{Project: m.project, Dataset: m.dataset, Table: e.TableName}
}

// Describe returns the physical schema of the named entity.
func (m *Manager) Describe(entity string) ([]types.Field, error) {
	e, err := m.registry.Entity(entity)
	if err != nil {
		return nil, err
	}
	return e.Schema()
}

// EnsureDataset fails when the configured dataset does not exist. The
// gateway cannot create datasets.
func (m *Manager) EnsureDataset(ctx context.Context) error {
	if m.dataset == "" {
		return nil
	}
	ok, err := m.gateway.DatasetExists(ctx, m.project, m.dataset)
	if err != nil {
		return fmt.Errorf("check dataset %s: %w", m.dataset, err)
	}
	if !ok {
		return fmt.Errorf("%w: dataset %s does not exist", customerrors.ErrConfiguration, m.dataset)
	}
	return nil
}

// Sync creates the named entity's table when it is missing. With Force the
// table is dropped and recreated.
func (m *Manager) Sync(ctx context.Context, entity string, opts SyncOptions) error {
	e, err := m.registry.Entity(entity)
	if err != nil {
		return err
	}
	return m.sync(ctx, e, opts)
}

// SyncAll syncs every registered entity concurrently. Junction entities are
// ordinary entities and are included.
func (m *Manager) SyncAll(ctx context.Context, opts SyncOptions) error {
	if err := m.EnsureDataset(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	if m.concurrency > 0 {
		g.SetLimit(m.concurrency)
	}
	for _, e := range m.registry.Entities() {
		g.Go(func() error {
			return m.sync(ctx, e, opts)
		})
	}
	return g.Wait()
}

// Drop removes the named entity's table if it exists.
func (m *Manager) Drop(ctx context.Context, entity string) error {
	e, err := m.registry.Entity(entity)
	if err != nil {
		return err
	}
	return m.drop(ctx, e)
}

// DropAll removes every registered entity's table.
func (m *Manager) DropAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if m.concurrency > 0 {
		g.SetLimit(m.concurrency)
	}
	for _, e := range m.registry.Entities() {
		g.Go(func() error {
			return m.drop(ctx, e)
		})
	}
	return g.Wait()
}

func (m *Manager) sync(ctx context.Context, e *model.Entity, opts SyncOptions) error {
	ref := m.TableRef(e)
	fields, err := e.Schema()
	if err != nil {
		return err
	}

	if opts.Force {
		if err := m.drop(ctx, e); err != nil {
			return err
		}
	} else {
		exists, err := m.gateway.TableExists(ctx, ref)
		if err != nil {
			return fmt.Errorf("check table %s: %w", ref, err)
		}
		if exists {
			m.logger.Debug("table exists", slog.String("entity", e.Name), slog.String("table", ref.String()))
			return nil
		}
	}

	if err := m.gateway.CreateTable(ctx, ref, fields); err != nil {
		return fmt.Errorf("create table %s: %w", ref, err)
	}
	m.logger.Info("table created", slog.String("entity", e.Name), slog.String("table", ref.String()))
	return nil
}

func (m *Manager) drop(ctx context.Context, e *model.Entity) error {
	ref := m.TableRef(e)
	if err := m.gateway.DropTable(ctx, ref); err != nil {
		return fmt.Errorf("drop table %s: %w", ref, err)
	}
	m.logger.Info("table dropped", slog.String("entity", e.Name), slog.String("table", ref.String()))
	return nil
}
