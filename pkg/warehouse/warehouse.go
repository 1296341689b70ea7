// Package warehouse defines the narrow gateway the runtime uses to talk to
// the columnar warehouse. Implementations own connections, jobs and retries.
package warehouse

import (
	"context"
	"strings"

	"github.com/theory-cloud/columntheory/pkg/errors"
	"github.com/theory-cloud/columntheory/pkg/types"
)

// Row is one result row keyed by column alias.
type Row = map[string]any

// TableRef addresses a table. Project and Dataset may be empty when the
// gateway has a default.
type TableRef struct {
	Project string
	Dataset string
	Table   string
}

// String renders the dotted path, skipping empty parts.
func (r TableRef) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{r.Project, r.Dataset, r.Table} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ".")
}

// JobResult reports the outcome of a DML statement.
type JobResult struct {
	// Metadata carries gateway specific job details (job id, bytes processed).
	Metadata     map[string]any
	RowsAffected int64
}

// Gateway executes compiled statements. Params are keyed by the name used
// after @ in the SQL text.
type Gateway interface {
	// Query runs a SELECT and returns every row.
	Query(ctx context.Context, sql string, params map[string]any) ([]Row, error)

	// Exec runs UPDATE, DELETE or INSERT as a job and reports affected rows.
	Exec(ctx context.Context, sql string, params map[string]any) (*JobResult, error)

	// InsertRows streams rows into a table.
	InsertRows(ctx context.Context, table TableRef, rows []Row) error

	TableExists(ctx context.Context, table TableRef) (bool, error)
	DatasetExists(ctx context.Context, project, dataset string) (bool, error)
	CreateTable(ctx context.Context, table TableRef, schema []types.Field) error
	DropTable(ctx context.Context, table TableRef) error
}

var streamingBufferMarkers = []string{
	"streaming buffer",
	"streamingbuffer",
	"would affect rows in the streaming buffer",
}

// ClassifyError converts a gateway failure on a DML statement into the
// retryable StreamingBufferError when the warehouse refused the statement
// because recently streamed rows are not yet eligible. Any other error is
// returned unchanged.
func ClassifyError(op string, table TableRef, err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range streamingBufferMarkers {
		if strings.Contains(msg, marker) {
			return &errors.StreamingBufferError{Op: op, Table: table.String(), Err: err}
		}
	}
	return err
}
