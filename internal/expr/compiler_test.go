package expr_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theory-cloud/columntheory/internal/expr"
	"github.com/theory-cloud/columntheory/pkg/errors"
)

func TestCombinatorArray(t *testing.T) {
	frag, err := expr.Compile(expr.Filter{
		"and": []expr.Filter{{"a": 1}, {"b": 2}},
	}, 0)
	require.NoError(t, err)

	assert.Equal(t, "(`a` = @param0) AND (`b` = @param1)", frag.SQL)
	assert.Equal(t, map[string]any{"param0": 1, "param1": 2}, frag.Params)
	assert.Equal(t, 2, frag.Next)
}

func TestFieldArrayIsIn(t *testing.T) {
	frag, err := expr.Compile(expr.Filter{"tags": []int{1, 2, 3}}, 0)
	require.NoError(t, err)

	assert.Equal(t, "`tags` IN (@param0, @param1, @param2)", frag.SQL)
	assert.Equal(t, map[string]any{"param0": 1, "param1": 2, "param2": 3}, frag.Params)
}

func TestScalarEqualityOnePlaceholderPerLeaf(t *testing.T) {
	f := expr.Filter{"a": 1, "b": "x", "c": true, "d": 2.5}
	frag, err := expr.Compile(f, 7)
	require.NoError(t, err)

	assert.Len(t, frag.Params, len(f))
	assert.Equal(t, len(f), strings.Count(frag.SQL, "@param"))
	assert.Equal(t, 11, frag.Next)
	assert.Equal(t, "(`a` = @param7) AND (`b` = @param8) AND (`c` = @param9) AND (`d` = @param10)", frag.SQL)
}

func TestEmptyFilter(t *testing.T) {
	frag, err := expr.Compile(nil, 3)
	require.NoError(t, err)
	assert.True(t, frag.Empty())
	assert.Empty(t, frag.Params)
	assert.Equal(t, 3, frag.Next)
}

func TestOperators(t *testing.T) {
	tests := []struct {
		name   string
		filter expr.Filter
		sql    string
		params map[string]any
	}{
		{"gt", expr.Filter{"n": expr.Ops{expr.OpGt: 5}}, "`n` > @param0", map[string]any{"param0": 5}},
		{"range AND-ed in fixed order", expr.Filter{"n": expr.Ops{expr.OpLt: 10, expr.OpGte: 1}},
			"(`n` >= @param0) AND (`n` < @param1)", map[string]any{"param0": 1, "param1": 10}},
		{"string op names", expr.Filter{"n": map[string]any{"$lte": 3}}, "`n` <= @param0", map[string]any{"param0": 3}},
		{"eq nil", expr.Filter{"n": nil}, "`n` IS NULL", map[string]any{}},
		{"ne nil", expr.Filter{"n": expr.Ops{expr.OpNe: nil}}, "`n` IS NOT NULL", map[string]any{}},
		{"ne", expr.Filter{"n": expr.Ops{expr.OpNe: 1}}, "`n` != @param0", map[string]any{"param0": 1}},
		{"like", expr.Filter{"s": expr.Ops{expr.OpLike: "a%"}}, "`s` LIKE @param0", map[string]any{"param0": "a%"}},
		{"notLike", expr.Filter{"s": expr.Ops{expr.OpNotLike: "a%"}}, "`s` NOT LIKE @param0", map[string]any{"param0": "a%"}},
		{"empty in", expr.Filter{"n": expr.Ops{expr.OpIn: []any{}}}, "FALSE", map[string]any{}},
		{"empty notIn", expr.Filter{"n": expr.Ops{expr.OpNotIn: []any{}}}, "TRUE", map[string]any{}},
		{"notIn", expr.Filter{"n": expr.Ops{expr.OpNotIn: []string{"a", "b"}}}, "`n` NOT IN (@param0, @param1)",
			map[string]any{"param0": "a", "param1": "b"}},
		{"between", expr.Filter{"n": expr.Ops{expr.OpBetween: []int{1, 9}}}, "`n` BETWEEN @param0 AND @param1",
			map[string]any{"param0": 1, "param1": 9}},
		{"notBetween", expr.Filter{"n": expr.Ops{expr.OpNotBetween: []int{1, 9}}}, "`n` NOT BETWEEN @param0 AND @param1",
			map[string]any{"param0": 1, "param1": 9}},
		{"contains", expr.Filter{"tags": expr.Ops{expr.OpContains: []string{"x", "y"}}},
			"(@param0 IN UNNEST(`tags`)) AND (@param1 IN UNNEST(`tags`))", map[string]any{"param0": "x", "param1": "y"}},
		{"is", expr.Filter{"b": expr.Ops{expr.OpIs: true}}, "`b` IS TRUE", map[string]any{}},
		{"isNot", expr.Filter{"b": expr.Ops{expr.OpIsNot: nil}}, "`b` IS NOT NULL", map[string]any{}},
		{"not value", expr.Filter{"n": expr.Ops{expr.OpNot: 3}}, "NOT (`n` = @param0)", map[string]any{"param0": 3}},
		{"not ops", expr.Filter{"n": expr.Ops{expr.OpNot: expr.Ops{expr.OpGt: 3}}}, "NOT (`n` > @param0)", map[string]any{"param0": 3}},
		{"any list", expr.Filter{"n": expr.Ops{expr.OpAny: []int{1, 2}}}, "`n` IN UNNEST(@param0)", map[string]any{"param0": []any{1, 2}}},
		{"all gt", expr.Filter{"n": expr.Ops{expr.OpAll: expr.Ops{expr.OpGt: []int{1, 2}}}},
			"NOT EXISTS (SELECT 1 FROM UNNEST(@param0) AS __v WHERE NOT (`n` > __v))", map[string]any{"param0": []any{1, 2}}},
		{"bytes bind as one value", expr.Filter{"raw": []byte("ab")}, "`raw` = @param0", map[string]any{"param0": []byte("ab")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frag, err := expr.Compile(tt.filter, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.sql, frag.SQL)
			assert.Equal(t, tt.params, frag.Params)
		})
	}
}

func TestOrNestedInsideAnd(t *testing.T) {
	frag, err := expr.Compile(expr.Filter{
		"status": "open",
		"or": []any{
			map[string]any{"priority": map[string]any{"gte": 3}},
			map[string]any{"owner": nil},
		},
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, "((`priority` >= @param0) OR (`owner` IS NULL)) AND (`status` = @param1)", frag.SQL)
}

func TestEmptyCombinators(t *testing.T) {
	frag, err := expr.Compile(expr.Filter{"or": []expr.Filter{}}, 0)
	require.NoError(t, err)
	assert.Equal(t, "FALSE", frag.SQL)

	frag, err = expr.Compile(expr.Filter{"and": []expr.Filter{}}, 0)
	require.NoError(t, err)
	assert.True(t, frag.Empty())
}

func TestUnknownOperatorRejected(t *testing.T) {
	_, err := expr.Compile(expr.Filter{"n": map[string]any{"gtt": 5}}, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidOperator)
	assert.True(t, errors.IsConfiguration(err))

	_, err = expr.Compile(expr.Filter{"n": expr.Ops{"bogus": 1}}, 0)
	assert.ErrorIs(t, err, errors.ErrInvalidOperator)

	_, err = expr.Compile(expr.Filter{"n": expr.Ops{expr.OpBetween: []int{1}}}, 0)
	assert.ErrorIs(t, err, errors.ErrInvalidOperator)

	_, err = expr.Compile(expr.Filter{"n": expr.Ops{expr.OpIs: 4}}, 0)
	assert.ErrorIs(t, err, errors.ErrInvalidOperator)

	_, err = expr.Compile(expr.Filter{"or": 5}, 0)
	assert.ErrorIs(t, err, errors.ErrInvalidOperator)
}

func TestEmptyOperatorMapRejected(t *testing.T) {
	for _, v := range []any{map[string]any{}, expr.Ops{}, expr.Filter{}} {
		frag, err := expr.Compile(expr.Filter{"age": v}, 0)
		assert.ErrorIs(t, err, errors.ErrInvalidOperator)
		assert.True(t, frag.Empty())
	}
}

func TestQualifiedColumns(t *testing.T) {
	frag, err := expr.CompileQualified(expr.Filter{"amount": expr.Ops{expr.OpGt: 100}}, "orders", 4)
	require.NoError(t, err)
	assert.Equal(t, "`orders`.`amount` > @param4", frag.SQL)

	frag, err = expr.CompileQualified(expr.Filter{"orders.amount": 1, "name": "a"}, "User", 0)
	require.NoError(t, err)
	assert.Equal(t, "(`User`.`name` = @param0) AND (`orders`.`amount` = @param1)", frag.SQL)
}

func TestFieldCheck(t *testing.T) {
	var seen []string
	check := func(alias, field string) error {
		seen = append(seen, alias+"."+field)
		if field == "ssn" {
			return errors.ErrEncryptedFieldNotQueryable
		}
		return nil
	}

	_, err := expr.CompileWith(expr.Filter{"ssn": "123"}, expr.Options{Alias: "User", Check: check}, 0)
	assert.ErrorIs(t, err, errors.ErrEncryptedFieldNotQueryable)

	_, err = expr.CompileWith(expr.Filter{"orders.total": 1}, expr.Options{Alias: "User", Check: check}, 0)
	require.NoError(t, err)
	assert.Contains(t, seen, "orders.total")
}

func TestInvalidIdentifierRejected(t *testing.T) {
	_, err := expr.Compile(expr.Filter{"a`; DROP TABLE x; --": 1}, 0)
	assert.ErrorIs(t, err, errors.ErrInvalidIdentifier)
}

func TestBuilderSharesCounter(t *testing.T) {
	b := expr.NewBuilder(0)
	first, err := b.Where(expr.Filter{"a": 1}, expr.Options{Alias: "t"})
	require.NoError(t, err)
	second, err := b.Where(expr.Filter{"b": 2}, expr.Options{Alias: "u"})
	require.NoError(t, err)

	assert.Equal(t, "`t`.`a` = @param0", first)
	assert.Equal(t, "`u`.`b` = @param1", second)
	assert.Equal(t, "@param2", b.Param("x"))
	assert.Len(t, b.Params(), 3)
	assert.Equal(t, 3, b.Next())
}

func TestParseOp(t *testing.T) {
	for _, name := range []string{"eq", "$eq", "EQ", "notBetween", "notbetween", "isNot"} {
		_, err := expr.ParseOp(name)
		assert.NoError(t, err, name)
	}
	_, err := expr.ParseOp("regexp")
	assert.Error(t, err)
}

func ExampleCompile() {
	frag, _ := expr.Compile(expr.Filter{"tags": []int{1, 2, 3}}, 0)
	fmt.Println(frag.SQL)
	// Output: `tags` IN (@param0, @param1, @param2)
}
