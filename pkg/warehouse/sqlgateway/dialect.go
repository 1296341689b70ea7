package sqlgateway

import (
	"github.com/theory-cloud/columntheory/pkg/naming"
	"github.com/theory-cloud/columntheory/pkg/types"
	"github.com/theory-cloud/columntheory/pkg/warehouse"

	// Registers the "sqlite" driver.
	_ "modernc.org/sqlite"
)

// Dialect holds the driver specific pieces of the gateway.
type Dialect struct {
	Name   string
	Driver string
	// TableExistsSQL takes the table key as its only argument and returns a row when the table exists.
	TableExistsSQL string
	// DatasetExistsSQL takes the dataset name and returns a count. Empty means datasets are not modeled.
	DatasetExistsSQL string
	// Types maps physical warehouse types to column types. Unlisted types use Fallback.
	Types    map[string]string
	Fallback string
}

// SQLite stores each warehouse table as one SQLite table named after the
// dotted project.dataset.table path, matching how the query compiler quotes
// qualified tables.
var SQLite = Dialect{
	Name:           "sqlite",
	Driver:         "sqlite",
	TableExistsSQL: "SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
	Types: map[string]string{
		types.PhysicalInt64:     "INTEGER",
		types.PhysicalFloat64:   "REAL",
		types.PhysicalNumeric:   "NUMERIC",
		types.PhysicalBool:      "BOOLEAN",
		types.PhysicalDate:      "DATE",
		types.PhysicalDateTime:  "DATETIME",
		types.PhysicalTimestamp: "TIMESTAMP",
		types.PhysicalBytes:     "BLOB",
	},
	Fallback: "TEXT",
}

// OpenSQLite opens an SQLite gateway. Use "file::memory:?cache=shared" or a
// file path as dsn.
func OpenSQLite(dsn string, opts ...Option) (*Gateway, error) {
	return Open(SQLite, dsn, opts...)
}

// ColumnType returns the column type for f. Repeated and record fields are
// stored as JSON text.
func (d Dialect) ColumnType(f types.Field) string {
	if f.Mode == types.ModeRepeated || f.Type == types.PhysicalRecord {
		return d.Fallback
	}
	if t, ok := d.Types[f.Type]; ok {
		return t
	}
	return d.Fallback
}

// TableName quotes the table the same way the query compiler does.
func (d Dialect) TableName(table warehouse.TableRef) string {
	return naming.Quote(d.tableKey(table))
}

func (d Dialect) tableKey(table warehouse.TableRef) string {
	return table.String()
}
