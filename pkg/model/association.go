package model

import "fmt"

// Kind identifies the shape of an association.
type Kind int

const (
	KindOwnsOne Kind = iota + 1
	KindOwnedBy
	KindHasMany
	KindManyToMany
)

func (k Kind) String() string {
	switch k {
	case KindOwnsOne:
		return "owns-one"
	case KindOwnedBy:
		return "owned-by"
	case KindHasMany:
		return "has-many"
	case KindManyToMany:
		return "many-to-many"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// IsCollection reports whether the association loads a list of targets.
func (k Kind) IsCollection() bool {
	return k == KindHasMany || k == KindManyToMany
}

// Association is one of OwnsOne, OwnedBy, HasMany or ManyToMany. Callers
// resolve the concrete shape with a type switch.
type Association interface {
	Kind() Kind
	Alias() string
	Source() string
	Target() string
	isAssociation()
}

// Relation holds what every association kind shares.
type Relation struct {
	SourceEntity string
	TargetEntity string
	As           string
}

func (r Relation) Alias() string  { return r.As }
func (r Relation) Source() string { return r.SourceEntity }
func (r Relation) Target() string { return r.TargetEntity }
func (Relation) isAssociation()   {}

// OwnsOne joins target.ForeignKey = source.SourceKey and yields one target.
type OwnsOne struct {
	Relation
	ForeignKey string
	SourceKey  string
}

func (OwnsOne) Kind() Kind { return KindOwnsOne }

// OwnedBy joins source.ForeignKey = target.TargetKey and yields one target.
type OwnedBy struct {
	Relation
	ForeignKey string
	TargetKey  string
}

func (OwnedBy) Kind() Kind { return KindOwnedBy }

// HasMany joins target.ForeignKey = source.SourceKey and yields a list.
type HasMany struct {
	Relation
	ForeignKey string
	SourceKey  string
}

func (HasMany) Kind() Kind { return KindHasMany }

// ManyToMany joins through a junction entity:
// source.SourceKey = junction.ForeignKey and junction.OtherKey = target.TargetKey.
type ManyToMany struct {
	Relation
	Through    string
	ForeignKey string
	OtherKey   string
	SourceKey  string
	TargetKey  string
}

func (ManyToMany) Kind() Kind { return KindManyToMany }
