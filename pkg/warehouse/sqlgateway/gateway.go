// Package sqlgateway implements warehouse.Gateway over database/sql. It lets
// the runtime run against an in-process SQLite database in tests and local
// tooling, and against any driver that accepts @name parameters.
package sqlgateway

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/theory-cloud/columntheory/pkg/naming"
	"github.com/theory-cloud/columntheory/pkg/types"
	"github.com/theory-cloud/columntheory/pkg/warehouse"
)

// Gateway runs compiled statements through a *sql.DB.
type Gateway struct {
	db            *sql.DB
	logger        *slog.Logger
	dialect       Dialect
	slowThreshold time.Duration
}

var _ warehouse.Gateway = (*Gateway)(nil)

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger used for slow statement warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithSlowThreshold logs statements that take longer than d. Zero disables it.
func WithSlowThreshold(d time.Duration) Option {
	return func(g *Gateway) {
		g.slowThreshold = d
	}
}

// New wraps db.
func New(db *sql.DB, dialect Dialect, opts ...Option) *Gateway {
	g := &Gateway{db: db, dialect: dialect, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Open opens a database with the dialect's driver.
func Open(dialect Dialect, dsn string, opts ...Option) (*Gateway, error) {
	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect.Name, err)
	}
	return New(db, dialect, opts...), nil
}

// DB returns the underlying handle.
func (g *Gateway) DB() *sql.DB {
	return g.db
}

// Close closes the underlying handle.
func (g *Gateway) Close() error {
	return g.db.Close()
}

// Query implements warehouse.Gateway.
func (g *Gateway) Query(ctx context.Context, query string, params map[string]any) ([]warehouse.Row, error) {
	defer g.observe(ctx, query, time.Now())

	rows, err := g.db.QueryContext(ctx, query, namedArgs(params)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []warehouse.Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(warehouse.Row, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Exec implements warehouse.Gateway.
func (g *Gateway) Exec(ctx context.Context, query string, params map[string]any) (*warehouse.JobResult, error) {
	defer g.observe(ctx, query, time.Now())

	res, err := g.db.ExecContext(ctx, query, namedArgs(params)...)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	return &warehouse.JobResult{
		RowsAffected: n,
		Metadata:     map[string]any{"dialect": g.dialect.Name},
	}, nil
}

// InsertRows writes rows in one transaction. Each row's own columns are
// inserted; missing columns take the table default.
func (g *Gateway) InsertRows(ctx context.Context, table warehouse.TableRef, rows []warehouse.Row) (err error) {
	if len(rows) == 0 {
		return nil
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	name := g.dialect.TableName(table)
	for _, row := range rows {
		cols := make([]string, 0, len(row))
		for col := range row {
			cols = append(cols, col)
		}
		sort.Strings(cols)

		quoted := make([]string, len(cols))
		marks := make([]string, len(cols))
		args := make([]any, len(cols))
		for i, col := range cols {
			quoted[i] = naming.Quote(col)
			marks[i] = "?"
			if args[i], err = encodeValue(row[col]); err != nil {
				return fmt.Errorf("insert into %s: column %s: %w", table, col, err)
			}
		}

		stmt := "INSERT INTO " + name + " (" + strings.Join(quoted, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"
		if _, err = tx.ExecContext(ctx, stmt, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// TableExists implements warehouse.Gateway.
func (g *Gateway) TableExists(ctx context.Context, table warehouse.TableRef) (bool, error) {
	var name string
	err := g.db.QueryRowContext(ctx, g.dialect.TableExistsSQL, g.dialect.tableKey(table)).Scan(&name)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

// DatasetExists implements warehouse.Gateway. Dialects without datasets
// treat every dataset as present.
func (g *Gateway) DatasetExists(ctx context.Context, project, dataset string) (bool, error) {
	if g.dialect.DatasetExistsSQL == "" {
		return true, nil
	}
	var n int
	if err := g.db.QueryRowContext(ctx, g.dialect.DatasetExistsSQL, dataset).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// CreateTable implements warehouse.Gateway.
func (g *Gateway) CreateTable(ctx context.Context, table warehouse.TableRef, schema []types.Field) error {
	if len(schema) == 0 {
		return fmt.Errorf("create table %s: empty schema", table)
	}
	cols := make([]string, len(schema))
	for i, f := range schema {
		col := naming.Quote(f.Name) + " " + g.dialect.ColumnType(f)
		if f.Mode == types.ModeRequired {
			col += " NOT NULL"
		}
		cols[i] = col
	}
	_, err := g.db.ExecContext(ctx, "CREATE TABLE "+g.dialect.TableName(table)+" ("+strings.Join(cols, ", ")+")")
	return err
}

// DropTable implements warehouse.Gateway.
func (g *Gateway) DropTable(ctx context.Context, table warehouse.TableRef) error {
	_, err := g.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+g.dialect.TableName(table))
	return err
}

func (g *Gateway) observe(ctx context.Context, query string, start time.Time) {
	if g.slowThreshold <= 0 || g.logger == nil {
		return
	}
	if d := time.Since(start); d > g.slowThreshold {
		g.logger.WarnContext(ctx, "slow warehouse statement", "duration", d, "sql", query)
	}
}

// namedArgs binds params in name order so drivers and mocks see a stable sequence.
func namedArgs(params map[string]any) []any {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	args := make([]any, len(names))
	for i, name := range names {
		v, err := encodeValue(params[name])
		if err != nil {
			v = params[name]
		}
		args[i] = sql.Named(name, v)
	}
	return args
}

// encodeValue stores composite values (records, repeated fields) as JSON text.
func encodeValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if _, ok := v.([]byte); ok {
		return v, nil
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		if t, ok := v.(time.Time); ok {
			return t, nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	return v, nil
}
