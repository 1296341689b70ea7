package testing

import (
	"context"
	"fmt"

	"github.com/theory-cloud/columntheory/pkg/core"
)

// Batch is the records to insert into one entity.
type Batch struct {
	Entity  string
	Records []map[string]any
}

// Fixture seeds a DB. Batches are inserted in order, so parents should come
// before the children that reference them.
type Fixture []Batch

// Load syncs every table and inserts the batches.
func (f Fixture) Load(ctx context.Context, db core.DB) error {
	if err := db.Sync(ctx, core.SyncOptions{}); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	for _, b := range f {
		m, err := db.Model(b.Entity)
		if err != nil {
			return err
		}
		if _, err := m.BulkCreate(ctx, b.Records, core.BulkOptions{}); err != nil {
			return fmt.Errorf("seed %s: %w", b.Entity, err)
		}
	}
	return nil
}

// MustLoad loads the fixture and stops the test on failure.
func (f Fixture) MustLoad(t TB, db core.DB) {
	t.Helper()
	if err := f.Load(context.Background(), db); err != nil {
		t.Fatalf("load fixture: %v", err)
	}
}
