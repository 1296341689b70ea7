// Package query compiles find requests and writes into warehouse SQL.
package query

import (
	"strings"

	"github.com/theory-cloud/columntheory/internal/expr"
)

// Filter re-exports the predicate tree type for callers of this package.
type Filter = expr.Filter

// Ops re-exports the operator map type.
type Ops = expr.Ops

// FindRequest is the declarative input to a find. It is built per call and
// never retained by the compiler.
type FindRequest struct {
	Where      Filter
	Attributes []string
	Include    []Include
	Order      []Order
	Group      []string
	Limit      int
	Offset     int
	Distinct   bool
}

// Include eager-loads a related entity in the same statement.
type Include struct {
	Where Filter
	// Entity is the target entity name. It may be omitted when As is set.
	Entity string
	// As is the association alias. It may be omitted when exactly one
	// association on the parent targets Entity.
	As         string
	Attributes []string
	Include    []Include
	Required   bool
}

// Order sorts by one field. Field may be qualified as "alias.field" to sort
// by an included entity's column.
type Order struct {
	Field string
	Desc  bool
}

// Asc builds an ascending order term.
func Asc(field string) Order { return Order{Field: field} }

// Desc builds a descending order term.
func Desc(field string) Order { return Order{Field: field, Desc: true} }

func (o Order) direction() string {
	if o.Desc {
		return "DESC"
	}
	return "ASC"
}

// AggregateFunc is an aggregate applied by Compiler.Aggregate.
type AggregateFunc string

const (
	Count AggregateFunc = "COUNT"
	Max   AggregateFunc = "MAX"
	Min   AggregateFunc = "MIN"
	Sum   AggregateFunc = "SUM"
	Avg   AggregateFunc = "AVG"
)

// Aggregate overrides the select list with one aggregate expression.
type Aggregate struct {
	Func  AggregateFunc
	Field string
	As    string
}

func (a Aggregate) alias() string {
	if a.As != "" {
		return a.As
	}
	return strings.ToLower(string(a.Func))
}

// CompiledQuery is a SELECT ready for the gateway plus the plan the result
// reassembler needs to nest its rows.
type CompiledQuery struct {
	Params map[string]any
	Plan   *Node
	SQL    string
	// CountColumn is set by FindAndCount: every row carries the total there.
	CountColumn string
	// ResultColumn is set by Aggregate.
	ResultColumn string
}

// CompiledStatement is a DML statement ready for the gateway.
type CompiledStatement struct {
	Params map[string]any
	SQL    string
	Table  string
}

// Reserved names used by composed statements.
const (
	TotalColumn      = "__total"
	countCTE         = "__count"
	dataCTE          = "__data"
	orderColumn      = "__order"
	unboundedLimit   = "9223372036854775807"
	setParamPrefix   = "set_"
	pkParamPrefix    = "pk"
	countTotalColumn = "total"
)
