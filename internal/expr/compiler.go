// Package expr compiles filter trees into parameterized SQL predicates.
package expr

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/theory-cloud/columntheory/pkg/errors"
	"github.com/theory-cloud/columntheory/pkg/naming"
	"github.com/theory-cloud/columntheory/pkg/validation"
)

// Reserved combinator keys.
const (
	KeyAnd = "and"
	KeyOr  = "or"
)

// ParamPrefix prefixes generated predicate parameter names.
const ParamPrefix = "param"

// Filter maps a field (or a combinator key) to a literal, a slice (IN), or an
// operator map.
type Filter map[string]any

// Fragment is a compiled predicate. An empty SQL string means no constraint.
type Fragment struct {
	Params map[string]any
	SQL    string
	Next   int
}

// Empty reports whether the fragment constrains nothing.
func (f Fragment) Empty() bool {
	return f.SQL == ""
}

// FieldCheck validates a column reference before it is emitted. alias is the
// qualifier the reference will carry ("" when unqualified).
type FieldCheck func(alias, field string) error

// Options controls how column references are qualified and checked.
type Options struct {
	// Alias qualifies bare field keys. Keys of the form "alias.field" keep
	// their own qualifier.
	Alias string
	Check FieldCheck
}

// Compile compiles f with unqualified column references, numbering parameters from start.
func Compile(f Filter, start int) (Fragment, error) {
	return CompileWith(f, Options{}, start)
}

// CompileQualified compiles f with every bare column qualified by alias.
func CompileQualified(f Filter, alias string, start int) (Fragment, error) {
	return CompileWith(f, Options{Alias: alias}, start)
}

// CompileWith compiles f using opts.
func CompileWith(f Filter, opts Options, start int) (Fragment, error) {
	b := NewBuilder(start)
	sql, err := b.compileFilter(f, opts)
	if err != nil {
		return Fragment{}, err
	}
	return Fragment{SQL: sql, Params: b.params, Next: b.next}, nil
}

// Builder threads the parameter counter through one statement.
type Builder struct {
	params map[string]any
	next   int
}

// NewBuilder creates a builder whose first parameter is param<start>.
func NewBuilder(start int) *Builder {
	return &Builder{params: make(map[string]any), next: start}
}

// Param binds v under the next generated name and returns its placeholder.
func (b *Builder) Param(v any) string {
	name := fmt.Sprintf("%s%d", ParamPrefix, b.next)
	b.next++
	b.params[name] = v
	return "@" + name
}

// Params returns the parameters bound so far.
func (b *Builder) Params() map[string]any {
	return b.params
}

// Next returns the index the next parameter will use.
func (b *Builder) Next() int {
	return b.next
}

// Where compiles f into this builder's parameter space.
func (b *Builder) Where(f Filter, opts Options) (string, error) {
	return b.compileFilter(f, opts)
}

func (b *Builder) compileFilter(f Filter, opts Options) (string, error) {
	if len(f) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		var (
			part string
			err  error
		)
		switch key {
		case KeyAnd, KeyOr:
			part, err = b.compileCombinator(key, f[key], opts)
		default:
			part, err = b.compileField(key, f[key], opts)
		}
		if err != nil {
			return "", err
		}
		if part != "" {
			parts = append(parts, part)
		}
	}
	return joinParts(parts, "AND"), nil
}

func (b *Builder) compileCombinator(key string, v any, opts Options) (string, error) {
	children, err := toFilters(v)
	if err != nil {
		return "", fmt.Errorf("%s: %w", key, err)
	}

	keyword := strings.ToUpper(key)
	parts := make([]string, 0, len(children))
	for _, child := range children {
		part, err := b.compileFilter(child, opts)
		if err != nil {
			return "", err
		}
		if part == "" {
			if key == KeyOr {
				// An unconstrained branch makes the whole OR true.
				part = "TRUE"
			} else {
				continue
			}
		}
		parts = append(parts, "("+part+")")
	}
	if len(parts) == 0 {
		if key == KeyOr {
			return "FALSE", nil
		}
		return "", nil
	}
	return strings.Join(parts, " "+keyword+" "), nil
}

func (b *Builder) compileField(key string, v any, opts Options) (string, error) {
	col, err := b.column(key, opts)
	if err != nil {
		return "", err
	}

	ops, isOps, err := toOps(v)
	if err != nil {
		return "", err
	}
	if isOps {
		return b.compileOps(col, ops)
	}

	if v == nil {
		return col + " IS NULL", nil
	}
	if values, ok := sliceValues(v); ok {
		return b.in(col, values, false), nil
	}
	return col + " = " + b.Param(v), nil
}

func (b *Builder) column(key string, opts Options) (string, error) {
	alias, field := opts.Alias, key
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		alias, field = key[:i], key[i+1:]
		if err := validation.ValidateIdentifier(alias); err != nil {
			return "", err
		}
	}
	if err := validation.ValidateIdentifier(field); err != nil {
		return "", err
	}
	if opts.Check != nil {
		if err := opts.Check(alias, field); err != nil {
			return "", err
		}
	}
	return naming.Column(alias, field), nil
}

func (b *Builder) compileOps(col string, ops Ops) (string, error) {
	if len(ops) == 0 {
		return "", fmt.Errorf("%w: empty operator map for %s", errors.ErrInvalidOperator, col)
	}
	parts := make([]string, 0, len(ops))
	for _, op := range opOrder {
		v, ok := ops[op]
		if !ok {
			continue
		}
		part, err := b.compileOp(col, op, v)
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	return joinParts(parts, "AND"), nil
}

func (b *Builder) compileOp(col string, op Op, v any) (string, error) {
	switch op {
	case OpEq:
		if v == nil {
			return col + " IS NULL", nil
		}
		return col + " = " + b.Param(v), nil
	case OpNe:
		if v == nil {
			return col + " IS NOT NULL", nil
		}
		return col + " != " + b.Param(v), nil
	case OpGt, OpGte, OpLt, OpLte:
		return col + " " + comparisonSQL[op] + " " + b.Param(v), nil
	case OpLike:
		return col + " LIKE " + b.Param(v), nil
	case OpNotLike:
		return col + " NOT LIKE " + b.Param(v), nil
	case OpIn, OpNotIn:
		values, ok := sliceValues(v)
		if !ok {
			values = []any{v}
		}
		return b.in(col, values, op == OpNotIn), nil
	case OpBetween, OpNotBetween:
		values, ok := sliceValues(v)
		if !ok || len(values) != 2 {
			return "", fmt.Errorf("%w: %s requires exactly two values", errors.ErrInvalidOperator, op)
		}
		keyword := " BETWEEN "
		if op == OpNotBetween {
			keyword = " NOT BETWEEN "
		}
		return col + keyword + b.Param(values[0]) + " AND " + b.Param(values[1]), nil
	case OpContains:
		values, ok := sliceValues(v)
		if !ok {
			values = []any{v}
		}
		if len(values) == 0 {
			return "TRUE", nil
		}
		parts := make([]string, len(values))
		for i, value := range values {
			parts[i] = b.Param(value) + " IN UNNEST(" + col + ")"
		}
		return joinParts(parts, "AND"), nil
	case OpContained:
		values, ok := sliceValues(v)
		if !ok {
			values = []any{v}
		}
		return "NOT EXISTS (SELECT 1 FROM UNNEST(" + col + ") AS __v WHERE __v NOT IN UNNEST(" + b.Param(values) + "))", nil
	case OpIs, OpIsNot:
		literal, err := isLiteral(v)
		if err != nil {
			return "", err
		}
		if op == OpIsNot {
			return col + " IS NOT " + literal, nil
		}
		return col + " IS " + literal, nil
	case OpNot:
		return b.compileNot(col, v)
	case OpAny, OpAll:
		return b.compileQuantifier(col, op, v)
	}
	return "", fmt.Errorf("%w: %q", errors.ErrInvalidOperator, string(op))
}

func (b *Builder) compileNot(col string, v any) (string, error) {
	if literal, err := isLiteral(v); err == nil {
		return col + " IS NOT " + literal, nil
	}
	ops, isOps, err := toOps(v)
	if err != nil {
		return "", err
	}
	if isOps {
		inner, err := b.compileOps(col, ops)
		if err != nil {
			return "", err
		}
		if inner == "" {
			return "", nil
		}
		return "NOT (" + inner + ")", nil
	}
	if values, ok := sliceValues(v); ok {
		return b.in(col, values, true), nil
	}
	return "NOT (" + col + " = " + b.Param(v) + ")", nil
}

// compileQuantifier handles {any: [..]} and {any: {gt: [..]}} (and all).
func (b *Builder) compileQuantifier(col string, op Op, v any) (string, error) {
	cmp := OpEq
	values, ok := sliceValues(v)
	if !ok {
		ops, isOps, err := toOps(v)
		if err != nil {
			return "", err
		}
		if !isOps || len(ops) != 1 {
			return "", fmt.Errorf("%w: %s requires a list or one comparison", errors.ErrInvalidOperator, op)
		}
		for inner, innerValue := range ops {
			if _, comparable := comparisonSQL[inner]; !comparable {
				return "", fmt.Errorf("%w: %s cannot quantify %s", errors.ErrInvalidOperator, op, inner)
			}
			cmp = inner
			values, ok = sliceValues(innerValue)
			if !ok {
				values = []any{innerValue}
			}
		}
	}

	list := b.Param(values)
	if op == OpAny {
		if cmp == OpEq {
			return col + " IN UNNEST(" + list + ")", nil
		}
		return "EXISTS (SELECT 1 FROM UNNEST(" + list + ") AS __v WHERE " + col + " " + comparisonSQL[cmp] + " __v)", nil
	}
	return "NOT EXISTS (SELECT 1 FROM UNNEST(" + list + ") AS __v WHERE NOT (" + col + " " + comparisonSQL[cmp] + " __v))", nil
}

func (b *Builder) in(col string, values []any, negate bool) string {
	if len(values) == 0 {
		if negate {
			return "TRUE"
		}
		return "FALSE"
	}
	refs := make([]string, len(values))
	for i, value := range values {
		refs[i] = b.Param(value)
	}
	keyword := " IN ("
	if negate {
		keyword = " NOT IN ("
	}
	return col + keyword + strings.Join(refs, ", ") + ")"
}

func isLiteral(v any) (string, error) {
	switch v {
	case nil:
		return "NULL", nil
	case true:
		return "TRUE", nil
	case false:
		return "FALSE", nil
	}
	return "", fmt.Errorf("%w: IS only accepts null, true or false", errors.ErrInvalidOperator)
}

// sliceValues expands any slice or array except []byte, which binds as one value.
func sliceValues(v any) ([]any, bool) {
	switch s := v.(type) {
	case nil, []byte:
		return nil, false
	case []any:
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func toFilters(v any) ([]Filter, error) {
	switch s := v.(type) {
	case []Filter:
		return s, nil
	case Filter:
		return []Filter{s}, nil
	case map[string]any:
		return []Filter{s}, nil
	case []map[string]any:
		out := make([]Filter, len(s))
		for i, m := range s {
			out[i] = m
		}
		return out, nil
	case []any:
		out := make([]Filter, 0, len(s))
		for _, item := range s {
			switch m := item.(type) {
			case Filter:
				out = append(out, m)
			case map[string]any:
				out = append(out, m)
			default:
				return nil, fmt.Errorf("%w: combinator elements must be filters, got %T", errors.ErrInvalidOperator, item)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: combinator value must be a list of filters, got %T", errors.ErrInvalidOperator, v)
}

// joinParts joins predicates, parenthesizing each once there is more than one.
func joinParts(parts []string, keyword string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	wrapped := make([]string, len(parts))
	for i, p := range parts {
		wrapped[i] = "(" + p + ")"
	}
	return strings.Join(wrapped, " "+keyword+" ")
}
