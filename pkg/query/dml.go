package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/theory-cloud/columntheory/internal/expr"
	"github.com/theory-cloud/columntheory/pkg/errors"
	"github.com/theory-cloud/columntheory/pkg/model"
	"github.com/theory-cloud/columntheory/pkg/naming"
	"github.com/theory-cloud/columntheory/pkg/types"
)

// IncrementRequest adds By to numeric attributes of every matching row. Set
// assigns plain values in the same statement (e.g. updatedAt).
type IncrementRequest struct {
	By        map[string]any
	Set       map[string]any
	Where     Filter
	Decrement bool
}

// Update compiles UPDATE ... SET `f` = @set_f for every value, in attribute order.
func (c *Compiler) Update(entity string, values map[string]any, where Filter) (*CompiledStatement, error) {
	e, err := c.registry.Entity(entity)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, &errors.ValidationError{Err: errors.ErrValidation, Entity: e.Name, Reason: "no values to update"}
	}
	if err := checkValues(e, values); err != nil {
		return nil, err
	}

	params := make(map[string]any, len(values))
	sets := make([]string, 0, len(values))
	for _, name := range e.AttributeNames() {
		v, ok := values[name]
		if !ok {
			continue
		}
		ref := setParamPrefix + name
		params[ref] = v
		sets = append(sets, naming.Quote(name)+" = @"+ref)
	}

	return c.mutation(e, "UPDATE "+c.Table(e)+" SET "+strings.Join(sets, ", "), params, where)
}

// Increment compiles UPDATE ... SET `f` = `f` + @set_f.
func (c *Compiler) Increment(entity string, req IncrementRequest) (*CompiledStatement, error) {
	e, err := c.registry.Entity(entity)
	if err != nil {
		return nil, err
	}
	if len(req.By) == 0 {
		return nil, &errors.ValidationError{Err: errors.ErrValidation, Entity: e.Name, Reason: "no attributes to increment"}
	}
	if err := checkValues(e, req.By); err != nil {
		return nil, err
	}
	if err := checkValues(e, req.Set); err != nil {
		return nil, err
	}

	sign := " + "
	if req.Decrement {
		sign = " - "
	}

	params := make(map[string]any, len(req.By)+len(req.Set))
	sets := make([]string, 0, len(req.By)+len(req.Set))
	for _, attr := range e.Attributes() {
		by, ok := req.By[attr.Name]
		if !ok {
			continue
		}
		if !isNumber(attr.Type) {
			return nil, &errors.ValidationError{Err: errors.ErrValidation, Entity: e.Name, Attribute: attr.Name, Reason: "not numeric"}
		}
		if _, dup := req.Set[attr.Name]; dup {
			return nil, &errors.ValidationError{Err: errors.ErrValidation, Entity: e.Name, Attribute: attr.Name, Reason: "both incremented and set"}
		}
		ref := setParamPrefix + attr.Name
		params[ref] = by
		col := naming.Quote(attr.Name)
		sets = append(sets, col+" = "+col+sign+"@"+ref)
	}
	for _, name := range e.AttributeNames() {
		v, ok := req.Set[name]
		if !ok {
			continue
		}
		ref := setParamPrefix + name
		params[ref] = v
		sets = append(sets, naming.Quote(name)+" = @"+ref)
	}

	return c.mutation(e, "UPDATE "+c.Table(e)+" SET "+strings.Join(sets, ", "), params, req.Where)
}

// Delete compiles DELETE FROM ... WHERE.
func (c *Compiler) Delete(entity string, where Filter) (*CompiledStatement, error) {
	e, err := c.registry.Entity(entity)
	if err != nil {
		return nil, err
	}
	return c.mutation(e, "DELETE FROM "+c.Table(e), map[string]any{}, where)
}

// DuplicateCheck selects the primary keys among pks that already exist.
func (c *Compiler) DuplicateCheck(entity string, pks []any) (*CompiledStatement, error) {
	e, err := c.registry.Entity(entity)
	if err != nil {
		return nil, err
	}
	if len(pks) == 0 {
		return nil, fmt.Errorf("%w: duplicate check needs at least one key", errors.ErrMissingPrimaryKey)
	}

	params := make(map[string]any, len(pks))
	refs := make([]string, len(pks))
	for i, pk := range pks {
		name := pkParamPrefix + strconv.Itoa(i)
		params[name] = pk
		refs[i] = "@" + name
	}
	col := naming.Quote(e.PrimaryKey)
	return &CompiledStatement{
		SQL:    "SELECT " + col + " FROM " + c.Table(e) + " WHERE " + col + " IN (" + strings.Join(refs, ", ") + ")",
		Params: params,
		Table:  e.TableName,
	}, nil
}

// mutation appends the WHERE clause. The warehouse rejects UPDATE and DELETE
// without one, so an empty filter becomes WHERE TRUE.
func (c *Compiler) mutation(e *model.Entity, head string, params map[string]any, where Filter) (*CompiledStatement, error) {
	b := expr.NewBuilder(0)
	sql, err := b.Where(where, expr.Options{Check: func(alias, field string) error {
		if alias != "" {
			return fmt.Errorf("%w: writes cannot reference %q", errors.ErrRelationNotFound, alias)
		}
		return checkAttribute(e, field)
	}})
	if err != nil {
		return nil, err
	}
	if sql == "" {
		sql = "TRUE"
	}
	for k, v := range b.Params() {
		params[k] = v
	}
	return &CompiledStatement{
		SQL:    head + " WHERE " + sql,
		Params: params,
		Table:  e.TableName,
	}, nil
}

func checkValues(e *model.Entity, values map[string]any) error {
	for name := range values {
		if !e.HasAttribute(name) {
			return fmt.Errorf("%w: %s.%s", errors.ErrUnknownAttribute, e.Name, name)
		}
	}
	return nil
}

func isNumber(t types.LogicalType) bool {
	switch t {
	case types.Integer, types.BigInt, types.SmallInt, types.TinyInt,
		types.Float, types.Double, types.Real, types.Decimal, types.Numeric:
		return true
	}
	return false
}
