package testing

import (
	"github.com/theory-cloud/columntheory/internal/columndb"
	"github.com/theory-cloud/columntheory/pkg/session"
	"github.com/theory-cloud/columntheory/pkg/warehouse/sqlgateway"
)

// TB is the part of testing.TB the helpers need.
type TB interface {
	Helper()
	Cleanup(func())
	Fatalf(format string, args ...any)
}

// NewSQLite opens a private in-memory SQLite warehouse that is closed when
// the test ends. A single connection keeps every statement on the same
// database.
func NewSQLite(t TB) *sqlgateway.Gateway {
	t.Helper()
	gw, err := sqlgateway.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	gw.DB().SetMaxOpenConns(1)
	t.Cleanup(func() { _ = gw.Close() })
	return gw
}

// NewDB creates a DB over a fresh SQLite warehouse. A nil cfg uses the
// defaults.
func NewDB(t TB, cfg *session.Config, opts ...columndb.Option) (*columndb.DB, *sqlgateway.Gateway) {
	t.Helper()
	gw := NewSQLite(t)
	db, err := columndb.New(cfg, gw, opts...)
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	return db, gw
}

// NewMockDB creates a DB over a TestGateway so tests can assert exactly
// which statements reach the warehouse.
func NewMockDB(t TB, cfg *session.Config, opts ...columndb.Option) (*columndb.DB, *TestGateway) {
	t.Helper()
	gw := NewTestGateway()
	db, err := columndb.New(cfg, gw.Mock, opts...)
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	return db, gw
}
