// Package testing provides helpers for tests of code built on ColumnTheory:
// a fluent wrapper around the gateway mock, an in-process SQLite warehouse
// and record fixtures.
package testing

import (
	"errors"
	"strings"

	"github.com/stretchr/testify/mock"

	"github.com/theory-cloud/columntheory/pkg/mocks"
	"github.com/theory-cloud/columntheory/pkg/warehouse"
)

// TestGateway provides a fluent interface for setting up gateway expectations
type TestGateway struct {
	Mock *mocks.MockGateway
}

// NewTestGateway creates a gateway mock with no expectations. Any call
// without a matching expectation fails the test.
func NewTestGateway() *TestGateway {
	return &TestGateway{Mock: new(mocks.MockGateway)}
}

// sqlContaining matches statements that contain fragment. An empty fragment
// matches any statement.
func sqlContaining(fragment string) any {
	if fragment == "" {
		return mock.Anything
	}
	return mock.MatchedBy(func(sql string) bool { return strings.Contains(sql, fragment) })
}

// ExpectQuery answers the next SELECT containing fragment with rows.
func (t *TestGateway) ExpectQuery(fragment string, rows ...warehouse.Row) *TestGateway {
	if rows == nil {
		rows = []warehouse.Row{}
	}
	t.Mock.On("Query", mock.Anything, sqlContaining(fragment), mock.Anything).Return(rows, nil).Once()
	return t
}

// ExpectQueryError fails the next SELECT containing fragment.
func (t *TestGateway) ExpectQueryError(fragment string, err error) *TestGateway {
	t.Mock.On("Query", mock.Anything, sqlContaining(fragment), mock.Anything).Return(nil, err).Once()
	return t
}

// ExpectExec answers the next DML statement containing fragment.
func (t *TestGateway) ExpectExec(fragment string, rowsAffected int64) *TestGateway {
	t.Mock.On("Exec", mock.Anything, sqlContaining(fragment), mock.Anything).
		Return(&warehouse.JobResult{RowsAffected: rowsAffected}, nil).Once()
	return t
}

// ExpectExecError fails the next DML statement containing fragment.
func (t *TestGateway) ExpectExecError(fragment string, err error) *TestGateway {
	t.Mock.On("Exec", mock.Anything, sqlContaining(fragment), mock.Anything).Return(nil, err).Once()
	return t
}

// ExpectStreamingBuffer fails the next DML statement containing fragment
// the way the warehouse does when it touches freshly streamed rows.
func (t *TestGateway) ExpectStreamingBuffer(fragment string) *TestGateway {
	return t.ExpectExecError(fragment,
		errors.New("UPDATE or DELETE statement would affect rows in the streaming buffer, which is not supported"))
}

// ExpectInsert accepts the next streaming insert into table.
func (t *TestGateway) ExpectInsert(table string) *TestGateway {
	t.Mock.On("InsertRows", mock.Anything, tableNamed(table), mock.Anything).Return(nil).Once()
	return t
}

// ExpectInsertError fails the next streaming insert into table.
func (t *TestGateway) ExpectInsertError(table string, err error) *TestGateway {
	t.Mock.On("InsertRows", mock.Anything, tableNamed(table), mock.Anything).Return(err).Once()
	return t
}

func tableNamed(table string) any {
	if table == "" {
		return mock.Anything
	}
	return mock.MatchedBy(func(ref warehouse.TableRef) bool { return ref.Table == table })
}

// Inserted returns the rows passed to every InsertRows call so far.
func (t *TestGateway) Inserted() []warehouse.Row {
	var out []warehouse.Row
	for _, call := range t.Mock.Calls {
		if call.Method != "InsertRows" {
			continue
		}
		if rows, ok := call.Arguments.Get(2).([]warehouse.Row); ok {
			out = append(out, rows...)
		}
	}
	return out
}

// AssertExpectations asserts every expectation was met
func (t *TestGateway) AssertExpectations(tt mock.TestingT) {
	t.Mock.AssertExpectations(tt)
}

// AssertNoCalls asserts the gateway was never reached
func (t *TestGateway) AssertNoCalls(tt mock.TestingT) bool {
	if len(t.Mock.Calls) == 0 {
		return true
	}
	methods := make([]string, len(t.Mock.Calls))
	for i, call := range t.Mock.Calls {
		methods[i] = call.Method
	}
	tt.Errorf("expected no gateway calls, got %s", strings.Join(methods, ", "))
	return false
}

// Reset clears all expectations and recorded calls
func (t *TestGateway) Reset() {
	t.Mock.ExpectedCalls = nil
	t.Mock.Calls = nil
}
