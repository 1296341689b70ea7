package expr

import (
	"fmt"
	"strings"

	"github.com/theory-cloud/columntheory/pkg/errors"
)

// Op is a filter operator.
type Op string

// Supported operators. Anything else is rejected with ErrInvalidOperator.
const (
	OpEq         Op = "eq"
	OpNe         Op = "ne"
	OpGt         Op = "gt"
	OpGte        Op = "gte"
	OpLt         Op = "lt"
	OpLte        Op = "lte"
	OpLike       Op = "like"
	OpNotLike    Op = "notLike"
	OpIn         Op = "in"
	OpNotIn      Op = "notIn"
	OpBetween    Op = "between"
	OpNotBetween Op = "notBetween"
	OpContains   Op = "contains"
	OpContained  Op = "contained"
	OpIs         Op = "is"
	OpIsNot      Op = "isNot"
	OpNot        Op = "not"
	OpAny        Op = "any"
	OpAll        Op = "all"
)

// opOrder fixes the order operators of one map are AND-ed in.
var opOrder = []Op{
	OpEq, OpNe, OpGt, OpGte, OpLt, OpLte,
	OpLike, OpNotLike,
	OpIn, OpNotIn,
	OpBetween, OpNotBetween,
	OpContains, OpContained,
	OpIs, OpIsNot, OpNot,
	OpAny, OpAll,
}

var opsByName = func() map[string]Op {
	m := make(map[string]Op, len(opOrder))
	for _, op := range opOrder {
		m[strings.ToLower(string(op))] = op
	}
	return m
}()

var comparisonSQL = map[Op]string{
	OpEq:  "=",
	OpNe:  "!=",
	OpGt:  ">",
	OpGte: ">=",
	OpLt:  "<",
	OpLte: "<=",
}

// ParseOp resolves an operator name. Names are case-insensitive and may carry
// a leading "$".
func ParseOp(name string) (Op, error) {
	op, ok := opsByName[strings.ToLower(strings.TrimPrefix(name, "$"))]
	if !ok {
		return "", fmt.Errorf("%w: %q", errors.ErrInvalidOperator, name)
	}
	return op, nil
}

// Valid reports whether op is one of the supported operators.
func (op Op) Valid() bool {
	_, ok := opsByName[strings.ToLower(string(op))]
	return ok
}

// Ops is an operator map for one field: {gt: 1, lt: 10}.
type Ops map[Op]any

// toOps normalizes the operator map forms a filter value may take.
func toOps(v any) (Ops, bool, error) {
	switch m := v.(type) {
	case Ops:
		return canonicalOps(m)
	case map[Op]any:
		return canonicalOps(m)
	case map[string]any:
		return opsFromNames(m)
	case Filter:
		return opsFromNames(m)
	}
	return nil, false, nil
}

func canonicalOps(m map[Op]any) (Ops, bool, error) {
	ops := make(Ops, len(m))
	for op, val := range m {
		canonical, err := ParseOp(string(op))
		if err != nil {
			return nil, true, err
		}
		ops[canonical] = val
	}
	return ops, true, nil
}

func opsFromNames(m map[string]any) (Ops, bool, error) {
	ops := make(Ops, len(m))
	for name, val := range m {
		op, err := ParseOp(name)
		if err != nil {
			return nil, true, err
		}
		ops[op] = val
	}
	return ops, true, nil
}
