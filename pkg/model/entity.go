// Package model provides entity registration and association metadata for ColumnTheory
package model

import (
	"fmt"
	"sync"

	"github.com/theory-cloud/columntheory/pkg/errors"
	"github.com/theory-cloud/columntheory/pkg/naming"
	"github.com/theory-cloud/columntheory/pkg/types"
	"github.com/theory-cloud/columntheory/pkg/validation"
)

// Timestamp attribute names added by Definition.Timestamps.
const (
	CreatedAtAttribute = "createdAt"
	UpdatedAtAttribute = "updatedAt"
)

// Definition describes an entity to register.
type Definition struct {
	Name       string
	TableName  string
	Attributes []types.Attribute
	Timestamps bool
}

// Entity is a registered table mapping. Attribute shapes are fixed at
// registration; association registration may only add missing foreign keys.
type Entity struct {
	associations map[string]Association
	index        map[string]int
	Name         string
	TableName    string
	PrimaryKey   string
	attrs        []types.Attribute
	Timestamps   bool
	mu           sync.RWMutex
}

func newEntity(def Definition, convention naming.Convention) (*Entity, error) {
	if err := validation.ValidateIdentifier(def.Name); err != nil {
		return nil, fmt.Errorf("entity name: %w", err)
	}

	tableName := def.TableName
	if tableName == "" {
		tableName = naming.DefaultTableName(def.Name)
	}
	if err := validation.ValidateIdentifier(tableName); err != nil {
		return nil, fmt.Errorf("table name for %s: %w", def.Name, err)
	}

	e := &Entity{
		Name:         def.Name,
		TableName:    tableName,
		Timestamps:   def.Timestamps,
		index:        make(map[string]int, len(def.Attributes)+3),
		associations: make(map[string]Association),
	}

	attrs := make([]types.Attribute, 0, len(def.Attributes)+3)
	attrs = append(attrs, def.Attributes...)

	e.PrimaryKey = primaryKeyOf(attrs)
	if e.PrimaryKey == "" {
		e.PrimaryKey = "id"
		if i := indexOf(attrs, "id"); i >= 0 {
			attrs[i].PrimaryKey = true
		} else {
			pk := types.Attribute{Name: "id", Type: types.Integer, PrimaryKey: true}
			attrs = append([]types.Attribute{pk}, attrs...)
		}
	}

	if def.Timestamps {
		for _, name := range []string{
			naming.ConvertAttrName(CreatedAtAttribute, convention),
			naming.ConvertAttrName(UpdatedAtAttribute, convention),
		} {
			if indexOf(attrs, name) < 0 {
				attrs = append(attrs, types.Attribute{Name: name, Type: types.Timestamp, Default: types.DefaultNow})
			}
		}
	}

	for _, attr := range attrs {
		if err := e.addAttribute(attr); err != nil {
			return nil, err
		}
	}

	pk, _ := e.Attribute(e.PrimaryKey)
	if pk.Encrypted {
		return nil, fmt.Errorf("%w: primary key %s.%s cannot be encrypted", errors.ErrInvalidModel, e.Name, pk.Name)
	}

	return e, nil
}

func (e *Entity) addAttribute(attr types.Attribute) error {
	if err := validation.ValidateIdentifier(attr.Name); err != nil {
		return fmt.Errorf("attribute of %s: %w", e.Name, err)
	}
	if _, exists := e.index[attr.Name]; exists {
		return fmt.Errorf("%w: duplicate attribute %s.%s", errors.ErrInvalidModel, e.Name, attr.Name)
	}
	if err := types.Validate(attr); err != nil {
		return fmt.Errorf("attribute %s.%s: %w", e.Name, attr.Name, err)
	}
	e.index[attr.Name] = len(e.attrs)
	e.attrs = append(e.attrs, attr)
	return nil
}

// ensureAttribute adds attr when no attribute with that name exists.
func (e *Entity) ensureAttribute(attr types.Attribute) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.index[attr.Name]; exists {
		return nil
	}
	return e.addAttribute(attr)
}

// Attribute returns the named attribute.
func (e *Entity) Attribute(name string) (types.Attribute, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	i, ok := e.index[name]
	if !ok {
		return types.Attribute{}, false
	}
	return e.attrs[i], true
}

// HasAttribute reports whether name is a registered attribute.
func (e *Entity) HasAttribute(name string) bool {
	_, ok := e.Attribute(name)
	return ok
}

// Attributes returns a copy of the attributes in registration order.
func (e *Entity) Attributes() []types.Attribute {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]types.Attribute, len(e.attrs))
	copy(out, e.attrs)
	return out
}

// AttributeNames returns attribute names in registration order.
func (e *Entity) AttributeNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, len(e.attrs))
	for i, attr := range e.attrs {
		names[i] = attr.Name
	}
	return names
}

// EncryptedAttributes lists attributes stored as ciphertext.
func (e *Entity) EncryptedAttributes() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var names []string
	for _, attr := range e.attrs {
		if attr.Encrypted {
			names = append(names, attr.Name)
		}
	}
	return names
}

// Schema resolves the physical schema of every attribute.
func (e *Entity) Schema() ([]types.Field, error) {
	return types.ResolveAll(e.Attributes())
}

// Association returns the association registered under alias.
func (e *Entity) Association(alias string) (Association, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.associations[alias]
	return a, ok
}

// Associations returns the registered associations keyed by alias.
func (e *Entity) Associations() map[string]Association {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]Association, len(e.associations))
	for k, v := range e.associations {
		out[k] = v
	}
	return out
}

func primaryKeyOf(attrs []types.Attribute) string {
	for _, attr := range attrs {
		if attr.PrimaryKey {
			return attr.Name
		}
	}
	return ""
}

func indexOf(attrs []types.Attribute, name string) int {
	for i, attr := range attrs {
		if attr.Name == name {
			return i
		}
	}
	return -1
}
