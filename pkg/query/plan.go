package query

import (
	"fmt"

	"github.com/theory-cloud/columntheory/pkg/errors"
	"github.com/theory-cloud/columntheory/pkg/model"
	"github.com/theory-cloud/columntheory/pkg/naming"
)

// Node is one entity in a compiled select: the root or an include. The same
// tree drives column aliasing in the compiler and nesting in the reassembler.
type Node struct {
	// Association is nil for the root.
	Association model.Association
	Entity      *model.Entity
	Where       Filter
	parent      *Node
	junction    *model.Entity
	// Alias qualifies this node's columns in SQL and prefixes its column aliases.
	Alias string
	// As is the key the node is stored under in its parent record.
	As string
	// Attributes are the attributes exposed in results.
	Attributes []string
	// Selected are the attributes read from the warehouse: Attributes plus
	// the primary key when it was not requested.
	Selected []string
	Children []*Node
	Required bool
	// ExposeKey reports whether the primary key appears in results.
	ExposeKey bool
	restricts bool
}

// Kind returns the association kind, or 0 for the root.
func (n *Node) Kind() model.Kind {
	if n.Association == nil {
		return 0
	}
	return n.Association.Kind()
}

// Collection reports whether the node loads a list into its parent.
func (n *Node) Collection() bool {
	return n.Kind().IsCollection()
}

// PrimaryKey returns the primary key attribute of the node's entity.
func (n *Node) PrimaryKey() string {
	return n.Entity.PrimaryKey
}

// Parent returns the enclosing node, or nil for the root.
func (n *Node) Parent() *Node {
	return n.parent
}

// Walk visits n and its descendants in pre-order.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, child := range n.Children {
		child.Walk(fn)
	}
}

// Aliases lists every node alias in the tree.
func (n *Node) Aliases() []string {
	var out []string
	n.Walk(func(node *Node) { out = append(out, node.Alias) })
	return out
}

// hasCollection reports whether any include below n fans out rows.
func (n *Node) hasCollection() bool {
	for _, child := range n.Children {
		if child.Collection() || child.hasCollection() {
			return true
		}
	}
	return false
}

// markRestricting flags includes that can remove parents: required or
// filtered includes and anything above them.
func (n *Node) markRestricting() bool {
	restricts := n.Required || len(n.Where) > 0
	for _, child := range n.Children {
		if child.markRestricting() {
			restricts = true
		}
	}
	n.restricts = restricts
	return restricts
}

type planner struct {
	registry *model.Registry
	aliases  map[string]*Node
}

func (c *Compiler) plan(entityName string, attributes []string, includes []Include) (*Node, map[string]*Node, error) {
	entity, err := c.registry.Entity(entityName)
	if err != nil {
		return nil, nil, err
	}

	root := &Node{Entity: entity, Alias: entity.TableName}
	if err := selectAttributes(root, attributes); err != nil {
		return nil, nil, err
	}

	p := &planner{registry: c.registry, aliases: map[string]*Node{root.Alias: root}}
	for _, inc := range includes {
		if err := p.include(root, inc, 1); err != nil {
			return nil, nil, err
		}
	}
	root.markRestricting()
	return root, p.aliases, nil
}

func (p *planner) include(parent *Node, inc Include, depth int) error {
	if depth > maxIncludeDepth {
		return fmt.Errorf("%w: includes nested deeper than %d", errors.ErrInvalidModel, maxIncludeDepth)
	}

	assoc, err := p.resolve(parent.Entity, inc)
	if err != nil {
		return err
	}
	target, err := p.registry.Entity(assoc.Target())
	if err != nil {
		return err
	}

	nestedParent := ""
	if parent.parent != nil {
		nestedParent = parent.Alias
	}
	node := &Node{
		Association: assoc,
		Entity:      target,
		Where:       inc.Where,
		parent:      parent,
		Alias:       naming.NestedAlias(nestedParent, assoc.Alias()),
		As:          assoc.Alias(),
		Required:    inc.Required,
	}
	if err := selectAttributes(node, inc.Attributes); err != nil {
		return err
	}

	if err := p.reserve(node.Alias, node); err != nil {
		return err
	}
	if m2m, ok := assoc.(model.ManyToMany); ok {
		if node.junction, err = p.registry.Entity(m2m.Through); err != nil {
			return fmt.Errorf("%w: %v", errors.ErrMissingJunction, err)
		}
		// Junction aliases are taken but never addressable from filters.
		if err := p.reserve(naming.JunctionAlias(node.Alias), nil); err != nil {
			return err
		}
	}

	parent.Children = append(parent.Children, node)
	for _, child := range inc.Include {
		if err := p.include(node, child, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (p *planner) reserve(alias string, node *Node) error {
	if _, taken := p.aliases[alias]; taken {
		return fmt.Errorf("%w: alias %s used twice in one query", errors.ErrAliasConflict, alias)
	}
	p.aliases[alias] = node
	return nil
}

// resolve finds the association an include refers to. Alias and target must
// agree; an alias pointing at a different entity is a configuration error.
func (p *planner) resolve(source *model.Entity, inc Include) (model.Association, error) {
	switch {
	case inc.As != "" && inc.Entity != "":
		return p.registry.LookupTarget(source.Name, inc.As, inc.Entity)
	case inc.As != "":
		assoc, ok := p.registry.Lookup(source.Name, inc.As)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no association %q", errors.ErrRelationNotFound, source.Name, inc.As)
		}
		return assoc, nil
	case inc.Entity != "":
		var found []model.Association
		for _, assoc := range source.Associations() {
			if assoc.Target() == inc.Entity {
				found = append(found, assoc)
			}
		}
		switch len(found) {
		case 0:
			return nil, fmt.Errorf("%w: %s is not associated to %s", errors.ErrRelationNotFound, inc.Entity, source.Name)
		case 1:
			return found[0], nil
		}
		return nil, fmt.Errorf("%w: %s is associated to %s more than once; set As", errors.ErrRelationNotFound, inc.Entity, source.Name)
	}
	return nil, fmt.Errorf("%w: include needs an entity or an alias", errors.ErrRelationNotFound)
}

// selectAttributes fills Attributes, Selected and ExposeKey. Without a list
// every attribute is exposed in registration order; with one the primary key
// is read for deduplication but exposed only when listed.
func selectAttributes(n *Node, requested []string) error {
	pk := n.Entity.PrimaryKey
	if len(requested) == 0 {
		n.Attributes = n.Entity.AttributeNames()
		n.Selected = n.Attributes
		n.ExposeKey = true
		return nil
	}

	seen := make(map[string]bool, len(requested))
	attrs := make([]string, 0, len(requested))
	for _, name := range requested {
		if !n.Entity.HasAttribute(name) {
			return fmt.Errorf("%w: %s.%s", errors.ErrUnknownAttribute, n.Entity.Name, name)
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		attrs = append(attrs, name)
	}

	n.Attributes = attrs
	n.ExposeKey = seen[pk]
	n.Selected = attrs
	if !n.ExposeKey {
		n.Selected = append([]string{pk}, attrs...)
	}
	return nil
}

const maxIncludeDepth = 8
