// Package reassemble nests flat, alias-prefixed warehouse rows back into
// parent/child records.
package reassemble

import (
	"fmt"
	"reflect"

	"github.com/theory-cloud/columntheory/pkg/naming"
	"github.com/theory-cloud/columntheory/pkg/query"
)

// Record is one reassembled entity. Collection includes hold []Record and
// singular includes hold Record or nil.
type Record map[string]any

// Rows reshapes rows according to plan. Without includes every row becomes
// one record. With includes, rows are grouped by parent key in first-seen
// order and children are deduplicated by their own key.
func Rows(rows []map[string]any, plan *query.Node) []Record {
	if len(plan.Children) == 0 {
		return flat(rows, plan)
	}

	aliases := plan.Aliases()
	parents := newCollection()
	for _, row := range rows {
		cols := split(row, aliases)
		key, ok := keyOf(cols[plan.Alias], plan)
		if !ok {
			// A parent without a key is a LEFT JOIN artifact, never a record.
			continue
		}
		parent := parents.get(key, plan, cols)
		merge(parent, plan, cols)
	}
	return parents.records()
}

func flat(rows []map[string]any, plan *query.Node) []Record {
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec := make(Record, len(plan.Attributes))
		for col, v := range row {
			field, ok := naming.FieldOf(col, plan.Alias)
			if !ok {
				continue
			}
			if field == plan.PrimaryKey() && !plan.ExposeKey {
				continue
			}
			rec[field] = v
		}
		out = append(out, rec)
	}
	return out
}

type object struct {
	rec         Record
	collections map[*query.Node]*collection
	singles     map[*query.Node]*object
	node        *query.Node
	key         any
}

type collection struct {
	byKey map[any]*object
	items []*object
}

func newCollection() *collection {
	return &collection{byKey: make(map[any]*object)}
}

func (c *collection) get(key any, node *query.Node, cols map[string]map[string]any) *object {
	if obj, ok := c.byKey[key]; ok {
		return obj
	}
	obj := newObject(node, key, cols[node.Alias])
	c.byKey[key] = obj
	c.items = append(c.items, obj)
	return obj
}

func (c *collection) records() []Record {
	out := make([]Record, len(c.items))
	for i, obj := range c.items {
		out[i] = obj.record()
	}
	return out
}

func newObject(node *query.Node, key any, fields map[string]any) *object {
	rec := make(Record, len(node.Attributes)+len(node.Children))
	for _, attr := range node.Attributes {
		if v, ok := fields[attr]; ok {
			rec[attr] = v
		}
	}
	return &object{
		rec:         rec,
		collections: make(map[*query.Node]*collection),
		singles:     make(map[*query.Node]*object),
		node:        node,
		key:         key,
	}
}

// merge attaches the children found in one row under obj.
func merge(obj *object, node *query.Node, cols map[string]map[string]any) {
	for _, child := range node.Children {
		if child.Association == nil {
			continue
		}
		key, ok := keyOf(cols[child.Alias], child)
		if !ok {
			// No match for this optional join in this row.
			continue
		}

		var target *object
		if child.Collection() {
			c, exists := obj.collections[child]
			if !exists {
				c = newCollection()
				obj.collections[child] = c
			}
			target = c.get(key, child, cols)
		} else {
			target = obj.singles[child]
			if target == nil || target.key != key {
				target = newObject(child, key, cols[child.Alias])
				obj.singles[child] = target
			}
		}
		merge(target, child, cols)
	}
}

func (o *object) record() Record {
	rec := o.rec
	for _, child := range o.node.Children {
		if child.Association == nil {
			continue
		}
		if child.Collection() {
			if c, ok := o.collections[child]; ok {
				rec[child.As] = c.records()
			} else {
				rec[child.As] = []Record{}
			}
			continue
		}
		if single, ok := o.singles[child]; ok {
			rec[child.As] = single.record()
		} else {
			rec[child.As] = nil
		}
	}
	return rec
}

// split buckets a row's columns by owning alias.
func split(row map[string]any, aliases []string) map[string]map[string]any {
	out := make(map[string]map[string]any, len(aliases))
	for col, v := range row {
		alias, field, ok := naming.ParseColumnAlias(col, aliases)
		if !ok {
			continue
		}
		fields := out[alias]
		if fields == nil {
			fields = make(map[string]any)
			out[alias] = fields
		}
		fields[field] = v
	}
	return out
}

// keyOf returns a map-safe form of the node's primary key value.
func keyOf(fields map[string]any, node *query.Node) (any, bool) {
	v, ok := fields[node.PrimaryKey()]
	if !ok || v == nil {
		return nil, false
	}
	switch k := v.(type) {
	case []byte:
		return string(k), true
	}
	if !reflect.TypeOf(v).Comparable() {
		return fmt.Sprint(v), true
	}
	return v, true
}

// Walk calls fn for every record of node in records, depth first, so callers
// can post-process values such as encrypted attributes.
func Walk(records []Record, node *query.Node, fn func(*query.Node, Record) error) error {
	for _, rec := range records {
		if err := walkRecord(rec, node, fn); err != nil {
			return err
		}
	}
	return nil
}

func walkRecord(rec Record, node *query.Node, fn func(*query.Node, Record) error) error {
	if rec == nil {
		return nil
	}
	if err := fn(node, rec); err != nil {
		return err
	}
	for _, child := range node.Children {
		switch v := rec[child.As].(type) {
		case []Record:
			if err := Walk(v, child, fn); err != nil {
				return err
			}
		case Record:
			if err := walkRecord(v, child, fn); err != nil {
				return err
			}
		}
	}
	return nil
}
