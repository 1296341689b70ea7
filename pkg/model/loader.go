package model

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/theory-cloud/columntheory/pkg/errors"
	"github.com/theory-cloud/columntheory/pkg/types"
)

// DefinitionFile is the YAML form of a set of entities and associations.
//
//	entities:
//	  - name: User
//	    timestamps: true
//	    attributes:
//	      - {name: id, type: integer, primaryKey: true}
//	      - {name: name, type: string, required: true}
//	associations:
//	  - {kind: hasMany, source: User, target: Order}
type DefinitionFile struct {
	Entities     []EntityDoc      `yaml:"entities"`
	Associations []AssociationDoc `yaml:"associations"`
}

// EntityDoc is one entity in a DefinitionFile.
type EntityDoc struct {
	Name       string         `yaml:"name"`
	Table      string         `yaml:"table"`
	Attributes []AttributeDoc `yaml:"attributes"`
	Timestamps bool           `yaml:"timestamps"`
}

// AttributeDoc is one attribute in a DefinitionFile.
type AttributeDoc struct {
	Default    any            `yaml:"default"`
	Name       string         `yaml:"name"`
	Type       string         `yaml:"type"`
	Fields     []AttributeDoc `yaml:"fields"`
	Precision  int            `yaml:"precision"`
	Scale      int            `yaml:"scale"`
	Required   bool           `yaml:"required"`
	PrimaryKey bool           `yaml:"primaryKey"`
	Repeated   bool           `yaml:"repeated"`
	Encrypted  bool           `yaml:"encrypted"`
}

// AssociationDoc is one association in a DefinitionFile.
type AssociationDoc struct {
	Kind       string `yaml:"kind"`
	Source     string `yaml:"source"`
	Target     string `yaml:"target"`
	As         string `yaml:"as"`
	ForeignKey string `yaml:"foreignKey"`
	OtherKey   string `yaml:"otherKey"`
	Through    string `yaml:"through"`
	SourceKey  string `yaml:"sourceKey"`
	TargetKey  string `yaml:"targetKey"`
}

// LoadDefinitions reads a definition file from disk.
func LoadDefinitions(path string) (*DefinitionFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definitions: %w", err)
	}
	return ParseDefinitions(data)
}

// ParseDefinitions decodes a YAML definition file.
func ParseDefinitions(data []byte) (*DefinitionFile, error) {
	var doc DefinitionFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse definitions: %v", errors.ErrInvalidModel, err)
	}
	return &doc, nil
}

// Apply defines every entity and then registers every association, in file order.
func (d *DefinitionFile) Apply(r *Registry) error {
	for _, e := range d.Entities {
		def, err := e.Definition()
		if err != nil {
			return err
		}
		if _, err := r.Define(def); err != nil {
			return err
		}
	}
	for _, a := range d.Associations {
		kind, err := ParseKind(a.Kind)
		if err != nil {
			return err
		}
		if _, err := r.Associate(kind, a.Source, a.Target, AssociationOptions{
			As:         a.As,
			ForeignKey: a.ForeignKey,
			OtherKey:   a.OtherKey,
			Through:    a.Through,
			SourceKey:  a.SourceKey,
			TargetKey:  a.TargetKey,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Definition converts the document form into a Definition.
func (e EntityDoc) Definition() (Definition, error) {
	attrs, err := convertAttributes(e.Attributes)
	if err != nil {
		return Definition{}, fmt.Errorf("entity %s: %w", e.Name, err)
	}
	return Definition{
		Name:       e.Name,
		TableName:  e.Table,
		Attributes: attrs,
		Timestamps: e.Timestamps,
	}, nil
}

func convertAttributes(docs []AttributeDoc) ([]types.Attribute, error) {
	attrs := make([]types.Attribute, 0, len(docs))
	for _, doc := range docs {
		typ, err := types.ParseLogicalType(doc.Type)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", doc.Name, err)
		}
		fields, err := convertAttributes(doc.Fields)
		if err != nil {
			return nil, err
		}
		def := doc.Default
		if s, ok := def.(string); ok {
			if sentinel, ok := types.ParseSentinel(s); ok {
				def = sentinel
			}
		}
		attr := types.Attribute{
			Name:       doc.Name,
			Type:       typ,
			Default:    def,
			Precision:  doc.Precision,
			Scale:      doc.Scale,
			Required:   doc.Required,
			PrimaryKey: doc.PrimaryKey,
			Repeated:   doc.Repeated,
			Encrypted:  doc.Encrypted,
		}
		if len(fields) > 0 {
			attr.Fields = fields
		}
		attrs = append(attrs, attr)
	}
	return attrs, nil
}

// ParseKind accepts both the descriptive and the conventional ORM spellings.
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.NewReplacer("-", "", "_", "").Replace(name)) {
	case "ownsone", "hasone":
		return KindOwnsOne, nil
	case "ownedby", "belongsto":
		return KindOwnedBy, nil
	case "hasmany":
		return KindHasMany, nil
	case "manytomany", "belongstomany":
		return KindManyToMany, nil
	}
	return 0, fmt.Errorf("%w: unknown association kind %q", errors.ErrInvalidModel, name)
}
