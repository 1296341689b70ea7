package model

import (
	"fmt"
	"sync"

	"github.com/theory-cloud/columntheory/pkg/errors"
	"github.com/theory-cloud/columntheory/pkg/naming"
	"github.com/theory-cloud/columntheory/pkg/types"
	"github.com/theory-cloud/columntheory/pkg/validation"
)

// Registry manages registered entities and their associations. It is owned
// by one DB instance; nothing here is process-global.
type Registry struct {
	entities   map[string]*Entity
	order      []string
	convention naming.Convention
	mu         sync.RWMutex
}

// NewRegistry creates a new registry using camelCase generated names
func NewRegistry() *Registry {
	return NewRegistryWithConvention(naming.CamelCase)
}

// NewRegistryWithConvention creates a registry that generates foreign keys and
// timestamp attributes in the given convention.
func NewRegistryWithConvention(convention naming.Convention) *Registry {
	return &Registry{
		entities:   make(map[string]*Entity),
		convention: convention,
	}
}

// Convention returns the naming convention for generated attribute names.
func (r *Registry) Convention() naming.Convention {
	return r.convention
}

// Define registers an entity.
func (r *Registry) Define(def Definition) (*Entity, error) {
	entity, err := newEntity(def, r.convention)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entities[entity.Name]; exists {
		return nil, fmt.Errorf("%w: entity %s already defined", errors.ErrInvalidModel, entity.Name)
	}
	r.entities[entity.Name] = entity
	r.order = append(r.order, entity.Name)
	return entity, nil
}

// Entity retrieves a registered entity by name.
func (r *Registry) Entity(name string) (*Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entityLocked(name)
}

func (r *Registry) entityLocked(name string) (*Entity, error) {
	entity, ok := r.entities[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrEntityNotFound, name)
	}
	return entity, nil
}

// Entities returns every entity in registration order.
func (r *Registry) Entities() []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entity, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entities[name])
	}
	return out
}

// AssociationOptions overrides the generated alias and keys of an association.
type AssociationOptions struct {
	As         string
	ForeignKey string
	OtherKey   string
	Through    string
	SourceKey  string
	TargetKey  string
}

// Associate builds an association of the given kind with generated defaults
// and registers it on source.
func (r *Registry) Associate(kind Kind, source, target string, opts AssociationOptions) (Association, error) {
	rel := Relation{SourceEntity: source, TargetEntity: target, As: opts.As}

	var assoc Association
	switch kind {
	case KindOwnsOne:
		if rel.As == "" {
			rel.As = naming.SingularAlias(target)
		}
		fk := opts.ForeignKey
		if fk == "" {
			fk = naming.ForeignKey(source, r.convention)
		}
		assoc = OwnsOne{Relation: rel, ForeignKey: fk, SourceKey: opts.SourceKey}
	case KindOwnedBy:
		if rel.As == "" {
			rel.As = naming.SingularAlias(target)
		}
		fk := opts.ForeignKey
		if fk == "" {
			fk = naming.ForeignKey(rel.As, r.convention)
		}
		assoc = OwnedBy{Relation: rel, ForeignKey: fk, TargetKey: opts.TargetKey}
	case KindHasMany:
		if rel.As == "" {
			rel.As = naming.PluralAlias(target)
		}
		fk := opts.ForeignKey
		if fk == "" {
			fk = naming.ForeignKey(source, r.convention)
		}
		assoc = HasMany{Relation: rel, ForeignKey: fk, SourceKey: opts.SourceKey}
	case KindManyToMany:
		if rel.As == "" {
			rel.As = naming.PluralAlias(target)
		}
		fk := opts.ForeignKey
		if fk == "" {
			fk = naming.ForeignKey(source, r.convention)
		}
		// Through and OtherKey have no defaults.
		assoc = ManyToMany{
			Relation:   rel,
			Through:    opts.Through,
			ForeignKey: fk,
			OtherKey:   opts.OtherKey,
			SourceKey:  opts.SourceKey,
			TargetKey:  opts.TargetKey,
		}
	default:
		return nil, fmt.Errorf("%w: unknown association kind %v", errors.ErrInvalidModel, kind)
	}

	if err := r.Register(source, assoc); err != nil {
		return nil, err
	}
	return r.mustLookup(source, rel.As), nil
}

// Register stores assoc on source under its alias. Owned-by registration adds
// the foreign key to source when missing; owns-one and has-many add it to the
// target; many-to-many adds both keys to the junction entity.
func (r *Registry) Register(source string, assoc Association) error {
	if assoc == nil {
		return fmt.Errorf("%w: nil association", errors.ErrInvalidModel)
	}
	if assoc.Source() != "" && assoc.Source() != source {
		return fmt.Errorf("%w: association declares source %s but is registered on %s", errors.ErrInvalidModel, assoc.Source(), source)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	src, err := r.entityLocked(source)
	if err != nil {
		return err
	}
	tgt, err := r.entityLocked(assoc.Target())
	if err != nil {
		return fmt.Errorf("association target: %w", err)
	}

	alias := assoc.Alias()
	if err := validation.ValidateIdentifier(alias); err != nil {
		return fmt.Errorf("association alias on %s: %w", source, err)
	}
	if _, exists := src.Association(alias); exists {
		return fmt.Errorf("%w: %s.%s", errors.ErrAliasConflict, source, alias)
	}

	normalized, err := r.normalize(src, tgt, assoc)
	if err != nil {
		return err
	}

	src.mu.Lock()
	src.associations[alias] = normalized
	src.mu.Unlock()
	return nil
}

func (r *Registry) normalize(src, tgt *Entity, assoc Association) (Association, error) {
	switch a := assoc.(type) {
	case OwnedBy:
		a.SourceEntity = src.Name
		if a.TargetKey == "" {
			a.TargetKey = tgt.PrimaryKey
		}
		key, err := requireAttribute(tgt, a.TargetKey)
		if err != nil {
			return nil, err
		}
		if err := backfillForeignKey(src, a.ForeignKey, key); err != nil {
			return nil, err
		}
		return a, nil
	case OwnsOne:
		a.SourceEntity = src.Name
		if a.SourceKey == "" {
			a.SourceKey = src.PrimaryKey
		}
		key, err := requireAttribute(src, a.SourceKey)
		if err != nil {
			return nil, err
		}
		if err := backfillForeignKey(tgt, a.ForeignKey, key); err != nil {
			return nil, err
		}
		return a, nil
	case HasMany:
		a.SourceEntity = src.Name
		if a.SourceKey == "" {
			a.SourceKey = src.PrimaryKey
		}
		key, err := requireAttribute(src, a.SourceKey)
		if err != nil {
			return nil, err
		}
		if err := backfillForeignKey(tgt, a.ForeignKey, key); err != nil {
			return nil, err
		}
		return a, nil
	case ManyToMany:
		a.SourceEntity = src.Name
		if a.Through == "" || a.OtherKey == "" {
			return nil, fmt.Errorf("%w: %s.%s requires Through and OtherKey", errors.ErrMissingJunction, src.Name, a.As)
		}
		junction, err := r.entityLocked(a.Through)
		if err != nil {
			return nil, fmt.Errorf("%w: junction entity %s is not defined", errors.ErrMissingJunction, a.Through)
		}
		if a.SourceKey == "" {
			a.SourceKey = src.PrimaryKey
		}
		if a.TargetKey == "" {
			a.TargetKey = tgt.PrimaryKey
		}
		sourceKey, err := requireAttribute(src, a.SourceKey)
		if err != nil {
			return nil, err
		}
		targetKey, err := requireAttribute(tgt, a.TargetKey)
		if err != nil {
			return nil, err
		}
		if err := backfillForeignKey(junction, a.ForeignKey, sourceKey); err != nil {
			return nil, err
		}
		if err := backfillForeignKey(junction, a.OtherKey, targetKey); err != nil {
			return nil, err
		}
		return a, nil
	}
	return nil, fmt.Errorf("%w: unsupported association %T", errors.ErrInvalidModel, assoc)
}

func requireAttribute(e *Entity, name string) (types.Attribute, error) {
	attr, ok := e.Attribute(name)
	if !ok {
		return types.Attribute{}, fmt.Errorf("%w: %s has no attribute %s", errors.ErrInvalidModel, e.Name, name)
	}
	return attr, nil
}

// backfillForeignKey adds a nullable key column typed like the key it references.
func backfillForeignKey(holder *Entity, name string, references types.Attribute) error {
	if err := validation.ValidateIdentifier(name); err != nil {
		return fmt.Errorf("foreign key on %s: %w", holder.Name, err)
	}
	typ := references.Type
	if typ == "" {
		typ = types.Integer
	}
	return holder.ensureAttribute(types.Attribute{
		Name:      name,
		Type:      typ,
		Precision: references.Precision,
		Scale:     references.Scale,
	})
}

// Lookup returns the association registered on source under alias.
func (r *Registry) Lookup(source, alias string) (Association, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.entities[source]
	if !ok {
		return nil, false
	}
	return src.Association(alias)
}

// LookupTarget returns the association on source under alias only when it
// also points at target. A registered alias that points elsewhere is a
// configuration error, never a silent join against the wrong table.
func (r *Registry) LookupTarget(source, alias, target string) (Association, error) {
	assoc, ok := r.Lookup(source, alias)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not associated to %s as %q", errors.ErrRelationNotFound, target, source, alias)
	}
	if assoc.Target() != target {
		return nil, fmt.Errorf("%w: %s.%s targets %s, not %s", errors.ErrRelationNotFound, source, alias, assoc.Target(), target)
	}
	return assoc, nil
}

func (r *Registry) mustLookup(source, alias string) Association {
	assoc, _ := r.Lookup(source, alias)
	return assoc
}
